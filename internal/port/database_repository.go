package port

import (
	"context"

	"github.com/rl1809/flower-auction/internal/core/domain"
)

// Store scopes a unit of work. Writes made through the Tx are invisible to
// other transactions until fn returns nil and the commit succeeds; any
// error rolls everything back.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes read-with-version and compare-and-swap writes per aggregate.
// Update methods persist the aggregate with version expected+1 only if the
// stored version still equals expected, and set the new version on the
// passed value. A mismatch returns *domain.ConcurrencyConflictError, a
// missing row *domain.NotFoundError.
type Tx interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	InsertProduct(ctx context.Context, p *domain.Product) error
	UpdateProduct(ctx context.Context, p *domain.Product, expected domain.Version) error
	ListProductsByClock(ctx context.Context, clockID string) ([]*domain.Product, error)

	GetClock(ctx context.Context, id string) (*domain.AuctionClock, error)
	// GetClockShared reads the clock for a write that depends on its status.
	// No other transaction can change the clock between this read and the
	// commit: it waits, or one side fails with
	// *domain.ConcurrencyConflictError.
	GetClockShared(ctx context.Context, id string) (*domain.AuctionClock, error)
	InsertClock(ctx context.Context, c *domain.AuctionClock) error
	UpdateClock(ctx context.Context, c *domain.AuctionClock, expected domain.Version) error
	DeleteClock(ctx context.Context, id string, expected domain.Version) error

	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	// FindOrder returns the buyer's order for a clock or *domain.NotFoundError.
	FindOrder(ctx context.Context, buyerID, clockID string) (*domain.Order, error)
	// InsertOrder fails with *domain.ConcurrencyConflictError when another
	// transaction already created the order for the same buyer and clock.
	InsertOrder(ctx context.Context, o *domain.Order) error
	UpdateOrder(ctx context.Context, o *domain.Order, expected domain.Version) error
	// ListOrdersByClock sees every order committed before it runs. No order
	// for the clock can be created or changed by another transaction between
	// the scan and the commit: it waits, or one side fails with
	// *domain.ConcurrencyConflictError.
	ListOrdersByClock(ctx context.Context, clockID string) ([]*domain.Order, error)

	GetOrderLine(ctx context.Context, id string) (*domain.OrderLine, error)
	InsertOrderLine(ctx context.Context, l *domain.OrderLine) error
	UpdateOrderLine(ctx context.Context, l *domain.OrderLine, expected domain.Version) error
	ListOrderLines(ctx context.Context, orderID string) ([]*domain.OrderLine, error)
}
