package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ClockStatus string

const (
	ClockStatusScheduled ClockStatus = "scheduled"
	ClockStatusStarted   ClockStatus = "started"
	ClockStatusPaused    ClockStatus = "paused"
	ClockStatusEnded     ClockStatus = "ended"
	ClockStatusStopped   ClockStatus = "stopped"
)

func (s ClockStatus) Valid() bool {
	switch s {
	case ClockStatusScheduled, ClockStatusStarted, ClockStatusPaused, ClockStatusEnded, ClockStatusStopped:
		return true
	}
	return false
}

func (s ClockStatus) Terminal() bool {
	return s == ClockStatusEnded || s == ClockStatusStopped
}

// CanTransition reports whether the clock state graph has an edge from -> to.
func CanTransition(from, to ClockStatus) bool {
	switch from {
	case ClockStatusScheduled:
		return to == ClockStatusStarted
	case ClockStatusStarted:
		return to == ClockStatusPaused || to == ClockStatusEnded || to == ClockStatusStopped
	case ClockStatusPaused:
		return to == ClockStatusStarted || to == ClockStatusEnded || to == ClockStatusStopped
	}
	return false
}

// AuctionClock groups products for one timed selling session.
type AuctionClock struct {
	ID              string
	AuctioneerID    string
	Status          ClockStatus
	ScheduledAt     time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds int
	HighestPrice    decimal.Decimal
	LowestPrice     decimal.Decimal
	Region          string
	Country         string
	PeakedLiveViews int
	Version         Version
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewAuctionClock(id, auctioneerID string, scheduledAt time.Time, durationSeconds int, region, country string, now time.Time) (*AuctionClock, error) {
	if auctioneerID == "" {
		return nil, NewValidationError(EntityClock, "owner_id", "is required")
	}
	if durationSeconds <= 0 {
		return nil, NewValidationError(EntityClock, "duration_seconds", "must be positive")
	}
	if scheduledAt.IsZero() {
		return nil, NewValidationError(EntityClock, "scheduled_at", "is required")
	}

	return &AuctionClock{
		ID:              id,
		AuctioneerID:    auctioneerID,
		Status:          ClockStatusScheduled,
		ScheduledAt:     scheduledAt,
		DurationSeconds: durationSeconds,
		HighestPrice:    decimal.Zero,
		LowestPrice:     decimal.Zero,
		Region:          region,
		Country:         country,
		Version:         InitialVersion,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Transition moves the clock along one edge of the state graph. An invalid
// request leaves the clock untouched.
func (c *AuctionClock) Transition(target ClockStatus, now time.Time) error {
	if !CanTransition(c.Status, target) {
		return &StateTransitionError{ClockID: c.ID, From: c.Status, To: target}
	}

	switch target {
	case ClockStatusStarted:
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
	case ClockStatusEnded, ClockStatusStopped:
		c.EndedAt = &now
	}
	c.Status = target
	c.UpdatedAt = now
	return nil
}

func (c *AuctionClock) AcceptsBids() bool {
	return c.Status == ClockStatusStarted
}

func (c *AuctionClock) AcceptsItems() bool {
	return c.Status == ClockStatusScheduled || c.Status == ClockStatusStarted || c.Status == ClockStatusPaused
}

func (c *AuctionClock) Deletable() bool {
	return c.Status == ClockStatusScheduled
}

// RecomputePriceBounds derives highest and lowest price from the attached
// products. With no products both bounds are zero.
func (c *AuctionClock) RecomputePriceBounds(products []*Product) {
	if len(products) == 0 {
		c.HighestPrice = decimal.Zero
		c.LowestPrice = decimal.Zero
		return
	}

	highest := products[0].ReferencePrice()
	lowest := highest
	for _, p := range products[1:] {
		price := p.ReferencePrice()
		if price.GreaterThan(highest) {
			highest = price
		}
		if price.LessThan(lowest) {
			lowest = price
		}
	}
	c.HighestPrice = highest
	c.LowestPrice = lowest
}

func (c *AuctionClock) RecordPeakViews(peak int) {
	if peak > c.PeakedLiveViews {
		c.PeakedLiveViews = peak
	}
}
