package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusDelivered OrderStatus = "delivered"
)

// Order aggregates the lines one buyer won within one clock session.
type Order struct {
	ID             string
	BuyerID        string
	AuctionClockID string
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
	Version        Version
}

func NewOrder(id, buyerID, clockID string, now time.Time) (*Order, error) {
	if buyerID == "" {
		return nil, NewValidationError(EntityOrder, "buyer_id", "is required")
	}
	return &Order{
		ID:             id,
		BuyerID:        buyerID,
		AuctionClockID: clockID,
		Status:         OrderStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        InitialVersion,
	}, nil
}

func (o *Order) Open() bool { return o.Status == OrderStatusOpen }

// Touch marks the order modified so appending a line goes through the
// version check.
func (o *Order) Touch(now time.Time) {
	o.UpdatedAt = now
}

func (o *Order) Close(now time.Time) error {
	if o.Status != OrderStatusOpen {
		return NewValidationError(EntityOrder, "status", "only open orders can be closed")
	}
	o.Status = OrderStatusClosed
	o.ClosedAt = &now
	o.UpdatedAt = now
	return nil
}

type OrderLine struct {
	ID                            string
	OrderID                       string
	ProductID                     string
	AuctionClockID                string
	Quantity                      int
	PriceAtPurchase               decimal.Decimal
	ProductMinimumPriceAtPurchase decimal.Decimal
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
	Version                       Version
}

// NewOrderLine snapshots the product's minimum price at placement time.
func NewOrderLine(id, orderID string, product *Product, clockID string, quantity int, price decimal.Decimal, now time.Time) (*OrderLine, error) {
	line := &OrderLine{
		ID:                            id,
		OrderID:                       orderID,
		ProductID:                     product.ID,
		AuctionClockID:                clockID,
		Quantity:                      quantity,
		PriceAtPurchase:               price,
		ProductMinimumPriceAtPurchase: product.MinimumPrice,
		CreatedAt:                     now,
		UpdatedAt:                     now,
		Version:                       InitialVersion,
	}
	if err := line.validate(quantity); err != nil {
		return nil, err
	}
	return line, nil
}

func (l *OrderLine) validate(quantity int) error {
	if quantity < 1 {
		return NewValidationError(EntityOrderLine, "quantity", "must be at least 1")
	}
	if l.PriceAtPurchase.LessThan(l.ProductMinimumPriceAtPurchase) {
		return NewValidationError(EntityOrderLine, "price_at_purchase", "must not be below minimum price "+l.ProductMinimumPriceAtPurchase.String())
	}
	return nil
}

// CorrectQuantity re-validates against the snapshot taken at placement and
// returns the stock delta (positive means more stock is consumed).
func (l *OrderLine) CorrectQuantity(quantity int, now time.Time) (int, error) {
	if err := l.validate(quantity); err != nil {
		return 0, err
	}
	delta := quantity - l.Quantity
	l.Quantity = quantity
	l.UpdatedAt = now
	return delta, nil
}

func (l *OrderLine) Total() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
