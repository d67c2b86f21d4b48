package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/flower-auction/internal/core/domain"
)

type ProductSummary struct {
	ID             string           `json:"id"`
	GrowerID       string           `json:"grower_id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	MinimumPrice   decimal.Decimal  `json:"minimum_price"`
	AuctionPrice   *decimal.Decimal `json:"auction_price,omitempty"`
	Stock          int              `json:"stock"`
	AuctionClockID *string          `json:"auction_clock_id,omitempty"`
	Position       int              `json:"position"`
	AuctionedCount int              `json:"auctioned_count"`
	AuctionedAt    *time.Time       `json:"auctioned_at,omitempty"`
	Version        domain.Version   `json:"version"`
}

func newProductSummary(p *domain.Product) ProductSummary {
	return ProductSummary{
		ID:             p.ID,
		GrowerID:       p.GrowerID,
		Name:           p.Name,
		Description:    p.Description,
		MinimumPrice:   p.MinimumPrice,
		AuctionPrice:   p.AuctionPrice,
		Stock:          p.Stock,
		AuctionClockID: p.AuctionClockID,
		Position:       p.Position,
		AuctionedCount: p.AuctionedCount,
		AuctionedAt:    p.AuctionedAt,
		Version:        p.Version,
	}
}

type ClockItemSummary struct {
	ProductID    string           `json:"product_id"`
	Position     int              `json:"position"`
	MinimumPrice decimal.Decimal  `json:"minimum_price"`
	AuctionPrice *decimal.Decimal `json:"auction_price,omitempty"`
	Stock        int              `json:"stock"`
	Biddable     bool             `json:"biddable"`
	SoldOut      bool             `json:"sold_out"`
	Version      domain.Version   `json:"version"`
}

type AuctionClockSummary struct {
	ID              string             `json:"id"`
	OwnerID         string             `json:"owner_id"`
	Status          domain.ClockStatus `json:"status"`
	ScheduledAt     time.Time          `json:"scheduled_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	EndedAt         *time.Time         `json:"ended_at,omitempty"`
	DurationSeconds int                `json:"duration_seconds"`
	HighestPrice    decimal.Decimal    `json:"highest_price"`
	LowestPrice     decimal.Decimal    `json:"lowest_price"`
	Region          string             `json:"region"`
	Country         string             `json:"country"`
	PeakedLiveViews int                `json:"peaked_live_views"`
	Version         domain.Version     `json:"version"`
	Items           []ClockItemSummary `json:"items"`
}

func newClockSummary(c *domain.AuctionClock, products []*domain.Product) AuctionClockSummary {
	s := AuctionClockSummary{
		ID:              c.ID,
		OwnerID:         c.AuctioneerID,
		Status:          c.Status,
		ScheduledAt:     c.ScheduledAt,
		StartedAt:       c.StartedAt,
		EndedAt:         c.EndedAt,
		DurationSeconds: c.DurationSeconds,
		HighestPrice:    c.HighestPrice,
		LowestPrice:     c.LowestPrice,
		Region:          c.Region,
		Country:         c.Country,
		PeakedLiveViews: c.PeakedLiveViews,
		Version:         c.Version,
		Items:           make([]ClockItemSummary, 0, len(products)),
	}
	for _, p := range products {
		s.Items = append(s.Items, ClockItemSummary{
			ProductID:    p.ID,
			Position:     p.Position,
			MinimumPrice: p.MinimumPrice,
			AuctionPrice: p.AuctionPrice,
			Stock:        p.Stock,
			Biddable:     c.AcceptsBids() && p.Biddable(),
			SoldOut:      p.FullyAuctioned(),
			Version:      p.Version,
		})
	}
	return s
}

// OrderLineSummary carries the post-commit product state so a bidder can
// place the next bid without another read.
type OrderLineSummary struct {
	ID                            string          `json:"id"`
	OrderID                       string          `json:"order_id"`
	BuyerID                       string          `json:"buyer_id"`
	AuctionClockID                string          `json:"auction_clock_id"`
	ProductID                     string          `json:"product_id"`
	Quantity                      int             `json:"quantity"`
	PriceAtPurchase               decimal.Decimal `json:"price_at_purchase"`
	ProductMinimumPriceAtPurchase decimal.Decimal `json:"product_minimum_price_at_purchase"`
	CreatedAt                     time.Time       `json:"created_at"`
	Version                       domain.Version  `json:"version"`
	OrderVersion                  domain.Version  `json:"order_version"`
	ProductStock                  int             `json:"product_stock"`
	ProductVersion                domain.Version  `json:"product_version"`
}

func newOrderLineSummary(l *domain.OrderLine, o *domain.Order, p *domain.Product) OrderLineSummary {
	return OrderLineSummary{
		ID:                            l.ID,
		OrderID:                       l.OrderID,
		BuyerID:                       o.BuyerID,
		AuctionClockID:                l.AuctionClockID,
		ProductID:                     l.ProductID,
		Quantity:                      l.Quantity,
		PriceAtPurchase:               l.PriceAtPurchase,
		ProductMinimumPriceAtPurchase: l.ProductMinimumPriceAtPurchase,
		CreatedAt:                     l.CreatedAt,
		Version:                       l.Version,
		OrderVersion:                  o.Version,
		ProductStock:                  p.Stock,
		ProductVersion:                p.Version,
	}
}

type OrderSummary struct {
	ID             string             `json:"id"`
	BuyerID        string             `json:"buyer_id"`
	AuctionClockID string             `json:"auction_clock_id"`
	Status         domain.OrderStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	ClosedAt       *time.Time         `json:"closed_at,omitempty"`
	Version        domain.Version     `json:"version"`
	Total          decimal.Decimal    `json:"total"`
	Lines          []OrderLineSummary `json:"lines"`
}

func newOrderSummary(o *domain.Order, lines []*domain.OrderLine) OrderSummary {
	s := OrderSummary{
		ID:             o.ID,
		BuyerID:        o.BuyerID,
		AuctionClockID: o.AuctionClockID,
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
		ClosedAt:       o.ClosedAt,
		Version:        o.Version,
		Total:          decimal.Zero,
		Lines:          make([]OrderLineSummary, 0, len(lines)),
	}
	for _, l := range lines {
		s.Total = s.Total.Add(l.Total())
		s.Lines = append(s.Lines, OrderLineSummary{
			ID:                            l.ID,
			OrderID:                       l.OrderID,
			BuyerID:                       o.BuyerID,
			AuctionClockID:                l.AuctionClockID,
			ProductID:                     l.ProductID,
			Quantity:                      l.Quantity,
			PriceAtPurchase:               l.PriceAtPurchase,
			ProductMinimumPriceAtPurchase: l.ProductMinimumPriceAtPurchase,
			CreatedAt:                     l.CreatedAt,
			Version:                       l.Version,
			OrderVersion:                  o.Version,
		})
	}
	return s
}
