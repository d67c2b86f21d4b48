package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/flower-auction/internal/adapter/storage"
	"github.com/rl1809/flower-auction/internal/core/domain"
)

type fixture struct {
	store     *storage.MemoryStore
	cache     *storage.MemoryCache
	events    *EventQueue
	products  *ProductService
	clocks    *ClockService
	placement *PlacementService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &fixture{
		store:  storage.NewMemoryStore(),
		cache:  storage.NewMemoryCache(),
		events: NewEventQueue(1000, logger),
	}
	deps := Deps{Store: f.store, Cache: f.cache, Events: f.events, Logger: logger}
	f.products = NewProductService(deps)
	f.clocks = NewClockService(deps)
	f.placement = NewPlacementService(deps)
	return f
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) product(t *testing.T, minimum string, stock int) ProductSummary {
	t.Helper()
	p, err := f.products.CreateProduct(context.Background(), CreateProductInput{
		GrowerID:     "grower-1",
		Name:         "Tulip Red Bunch",
		MinimumPrice: price(minimum),
		Stock:        stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) scheduledClock(t *testing.T, items ...ClockItem) AuctionClockSummary {
	t.Helper()
	c, err := f.clocks.CreateAuctionClock(context.Background(), CreateClockInput{
		OwnerID:         "auctioneer-1",
		ScheduledAt:     time.Now().Add(time.Hour),
		DurationSeconds: 600,
		Region:          "Noord-Holland",
		Country:         "NL",
		Items:           items,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) startedClock(t *testing.T, items ...ClockItem) AuctionClockSummary {
	t.Helper()
	c := f.scheduledClock(t, items...)
	started, err := f.clocks.TransitionClockStatus(context.Background(), c.ID, domain.ClockStatusStarted, c.Version)
	require.NoError(t, err)
	return started
}

// drainEvents returns the events queued so far without blocking.
func (f *fixture) drainEvents() []domain.Event {
	var events []domain.Event
	for {
		select {
		case e := <-f.events.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}
