package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/core/service"
)

// Request bodies are shared by the HTTP and gRPC surfaces. Identifiers that
// HTTP carries in the path are filled in from the route before validation.

type CreateProductRequest struct {
	GrowerID     string          `json:"grower_id" validate:"required"`
	Name         string          `json:"name" validate:"required,max=255"`
	Description  string          `json:"description"`
	MinimumPrice decimal.Decimal `json:"minimum_price"`
	Stock        int             `json:"stock" validate:"gte=0"`
}

func (r CreateProductRequest) input() service.CreateProductInput {
	return service.CreateProductInput{
		GrowerID:     r.GrowerID,
		Name:         r.Name,
		Description:  r.Description,
		MinimumPrice: r.MinimumPrice,
		Stock:        r.Stock,
	}
}

type UpdateProductRequest struct {
	ProductID       string           `json:"product_id" validate:"required"`
	Name            *string          `json:"name,omitempty"`
	Description     *string          `json:"description,omitempty"`
	MinimumPrice    *decimal.Decimal `json:"minimum_price,omitempty"`
	Stock           *int             `json:"stock,omitempty" validate:"omitempty,gte=0"`
	ExpectedVersion int64            `json:"expected_version" validate:"gte=0"`
}

func (r UpdateProductRequest) input() service.UpdateProductInput {
	return service.UpdateProductInput{
		ProductID: r.ProductID,
		Changes: domain.ProductChanges{
			Name:         r.Name,
			Description:  r.Description,
			MinimumPrice: r.MinimumPrice,
			Stock:        r.Stock,
		},
		ExpectedVersion: domain.Version(r.ExpectedVersion),
	}
}

type ClockItemRequest struct {
	ProductID    string          `json:"product_id" validate:"required"`
	AuctionPrice decimal.Decimal `json:"auction_price"`
}

type CreateClockRequest struct {
	OwnerID         string             `json:"owner_id" validate:"required"`
	ScheduledAt     time.Time          `json:"scheduled_at" validate:"required"`
	DurationSeconds int                `json:"duration_seconds" validate:"gt=0"`
	Region          string             `json:"region" validate:"required"`
	Country         string             `json:"country" validate:"required"`
	Items           []ClockItemRequest `json:"items" validate:"dive"`
}

func (r CreateClockRequest) input() service.CreateClockInput {
	items := make([]service.ClockItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, service.ClockItem{ProductID: it.ProductID, AuctionPrice: it.AuctionPrice})
	}
	return service.CreateClockInput{
		OwnerID:         r.OwnerID,
		ScheduledAt:     r.ScheduledAt,
		DurationSeconds: r.DurationSeconds,
		Region:          r.Region,
		Country:         r.Country,
		Items:           items,
	}
}

type TransitionClockRequest struct {
	ClockID         string `json:"auction_clock_id" validate:"required"`
	Status          string `json:"status" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

type AttachProductRequest struct {
	ClockID         string          `json:"auction_clock_id" validate:"required"`
	ProductID       string          `json:"product_id" validate:"required"`
	AuctionPrice    decimal.Decimal `json:"auction_price"`
	ExpectedVersion int64           `json:"expected_version" validate:"gte=0"`
}

func (r AttachProductRequest) input() service.AttachProductInput {
	return service.AttachProductInput{
		ClockID:              r.ClockID,
		ProductID:            r.ProductID,
		AuctionPrice:         r.AuctionPrice,
		ExpectedClockVersion: domain.Version(r.ExpectedVersion),
	}
}

type PlaceBidRequest struct {
	RequestID              string          `json:"request_id"`
	BuyerID                string          `json:"buyer_id" validate:"required"`
	ClockID                string          `json:"auction_clock_id" validate:"required"`
	ProductID              string          `json:"product_id" validate:"required"`
	Quantity               int             `json:"quantity" validate:"gt=0"`
	OfferedPrice           decimal.Decimal `json:"offered_price"`
	ExpectedProductVersion int64           `json:"expected_product_version" validate:"gte=0"`
}

func (r PlaceBidRequest) input() service.PlaceBidInput {
	return service.PlaceBidInput{
		RequestID:              r.RequestID,
		BuyerID:                r.BuyerID,
		ClockID:                r.ClockID,
		ProductID:              r.ProductID,
		Quantity:               r.Quantity,
		OfferedPrice:           r.OfferedPrice,
		ExpectedProductVersion: domain.Version(r.ExpectedProductVersion),
	}
}

type CorrectOrderLineRequest struct {
	OrderLineID     string `json:"order_line_id" validate:"required"`
	Quantity        int    `json:"quantity" validate:"gt=0"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}
