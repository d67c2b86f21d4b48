package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a grower's priced, stocked inventory item.
type Product struct {
	ID             string
	GrowerID       string
	Name           string
	Description    string
	MinimumPrice   decimal.Decimal
	AuctionPrice   *decimal.Decimal
	Stock          int
	AuctionClockID *string
	Position       int
	AuctionedCount int
	AuctionedAt    *time.Time
	Version        Version // optimistic locking
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewProduct(id, growerID, name, description string, minimumPrice decimal.Decimal, stock int, now time.Time) (*Product, error) {
	if growerID == "" {
		return nil, NewValidationError(EntityProduct, "grower_id", "is required")
	}
	if name == "" {
		return nil, NewValidationError(EntityProduct, "name", "is required")
	}
	if minimumPrice.IsNegative() {
		return nil, NewValidationError(EntityProduct, "minimum_price", "must not be negative")
	}
	if stock < 0 {
		return nil, NewValidationError(EntityProduct, "stock", "must not be negative")
	}

	return &Product{
		ID:           id,
		GrowerID:     growerID,
		Name:         name,
		Description:  description,
		MinimumPrice: minimumPrice,
		Stock:        stock,
		Version:      InitialVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (p *Product) AttachedTo(clockID string) bool {
	return p.AuctionClockID != nil && *p.AuctionClockID == clockID
}

// AttachToClock links the product to a clock at the given position. The
// caller is responsible for checking that a previous clock is terminal and
// clearing the link first.
func (p *Product) AttachToClock(clockID string, position int) error {
	if p.AuctionClockID != nil && *p.AuctionClockID != clockID {
		return NewValidationError(EntityProduct, "auction_clock_id", "product is attached to another auction clock")
	}
	if p.Stock == 0 {
		return NewValidationError(EntityProduct, "stock", "product has no stock to auction")
	}
	if position < 0 {
		return NewValidationError(EntityProduct, "position", "must not be negative")
	}
	p.AuctionClockID = &clockID
	p.Position = position
	return nil
}

func (p *Product) Detach() error {
	if p.AuctionedCount > 0 {
		return NewValidationError(EntityProduct, "auctioned_count", "product already has committed order lines")
	}
	p.AuctionClockID = nil
	p.Position = 0
	p.AuctionPrice = nil
	return nil
}

// ReleaseFromClock clears the clock link of a product whose clock ended,
// keeping its sales history.
func (p *Product) ReleaseFromClock() {
	p.AuctionClockID = nil
	p.Position = 0
}

func (p *Product) SetAuctionPrice(price decimal.Decimal) error {
	if price.LessThan(p.MinimumPrice) {
		return NewValidationError(EntityProduct, "auction_price", "must not be below minimum price "+p.MinimumPrice.String())
	}
	p.AuctionPrice = &price
	return nil
}

// DecreaseStock never lets stock go negative. Reaching zero marks the
// product fully auctioned.
func (p *Product) DecreaseStock(amount int, now time.Time) error {
	if amount < 1 {
		return NewValidationError(EntityProduct, "quantity", "must be at least 1")
	}
	if amount > p.Stock {
		return NewValidationError(EntityProduct, "stock", "insufficient stock")
	}
	p.Stock -= amount
	if p.Stock == 0 {
		p.AuctionedAt = &now
	}
	return nil
}

func (p *Product) IncreaseStock(amount int) error {
	if amount < 1 {
		return NewValidationError(EntityProduct, "quantity", "must be at least 1")
	}
	p.Stock += amount
	p.AuctionedAt = nil
	return nil
}

func (p *Product) IncreaseAuctionedCount() {
	p.AuctionedCount++
}

// Biddable reports whether the product can still be sold on its clock.
func (p *Product) Biddable() bool {
	return p.AuctionClockID != nil && p.Stock > 0
}

func (p *Product) FullyAuctioned() bool {
	return p.AuctionedAt != nil && p.Stock == 0
}

// ProductChanges holds a grower edit; nil fields are left untouched.
type ProductChanges struct {
	Name         *string
	Description  *string
	MinimumPrice *decimal.Decimal
	Stock        *int
}

func (p *Product) UpdateDetails(ch ProductChanges) error {
	if ch.Name != nil && *ch.Name == "" {
		return NewValidationError(EntityProduct, "name", "is required")
	}
	if ch.MinimumPrice != nil {
		if ch.MinimumPrice.IsNegative() {
			return NewValidationError(EntityProduct, "minimum_price", "must not be negative")
		}
		if p.AuctionPrice != nil && p.AuctionPrice.LessThan(*ch.MinimumPrice) {
			return NewValidationError(EntityProduct, "minimum_price", "must not exceed current auction price "+p.AuctionPrice.String())
		}
	}
	if ch.Stock != nil {
		if *ch.Stock < 0 {
			return NewValidationError(EntityProduct, "stock", "must not be negative")
		}
		if p.AuctionClockID != nil {
			return NewValidationError(EntityProduct, "stock", "cannot be changed while attached to an auction clock")
		}
	}

	if ch.Name != nil {
		p.Name = *ch.Name
	}
	if ch.Description != nil {
		p.Description = *ch.Description
	}
	if ch.MinimumPrice != nil {
		p.MinimumPrice = *ch.MinimumPrice
	}
	if ch.Stock != nil {
		p.Stock = *ch.Stock
		if p.Stock > 0 {
			p.AuctionedAt = nil
		}
	}
	return nil
}

// ReferencePrice is the price used for clock bounds.
func (p *Product) ReferencePrice() decimal.Decimal {
	if p.AuctionPrice != nil {
		return *p.AuctionPrice
	}
	return p.MinimumPrice
}
