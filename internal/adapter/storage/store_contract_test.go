package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

// runStoreContract checks the behaviour every port.Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) port.Store) {
	t.Run("ProductRoundTrip", func(t *testing.T) { testProductRoundTrip(t, newStore(t)) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ConcurrentWriters", func(t *testing.T) { testConcurrentWriters(t, newStore(t)) })
	t.Run("OrderPerBuyerAndClock", func(t *testing.T) { testOrderPerBuyerAndClock(t, newStore(t)) })
	t.Run("ClockLifecycle", func(t *testing.T) { testClockLifecycle(t, newStore(t)) })
	t.Run("OrderLines", func(t *testing.T) { testOrderLines(t, newStore(t)) })
}

func mustProduct(t *testing.T, stock int) *domain.Product {
	t.Helper()
	p, err := domain.NewProduct(uuid.NewString(), "grower-1", "Chrysant Baltica", "white", decimal.RequireFromString("2.50"), stock, time.Now().UTC().Truncate(time.Second))
	require.NoError(t, err)
	return p
}

func mustClock(t *testing.T) *domain.AuctionClock {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	c, err := domain.NewAuctionClock(uuid.NewString(), "auctioneer-1", now.Add(time.Hour), 900, "Zuid-Holland", "NL", now)
	require.NoError(t, err)
	return c
}

func insertProduct(t *testing.T, store port.Store, p *domain.Product) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.InsertProduct(ctx, p)
	})
	require.NoError(t, err)
}

func getProduct(t *testing.T, store port.Store, id string) *domain.Product {
	t.Helper()
	var p *domain.Product
	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		return err
	})
	require.NoError(t, err)
	return p
}

func testProductRoundTrip(t *testing.T, store port.Store) {
	p := mustProduct(t, 10)
	clockID := "clock-x"
	price := decimal.RequireFromString("3.25")
	p.AuctionClockID = &clockID
	p.AuctionPrice = &price
	p.Position = 4
	insertProduct(t, store, p)

	got := getProduct(t, store, p.ID)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.GrowerID, got.GrowerID)
	assert.True(t, p.MinimumPrice.Equal(got.MinimumPrice))
	require.NotNil(t, got.AuctionPrice)
	assert.True(t, price.Equal(*got.AuctionPrice))
	require.NotNil(t, got.AuctionClockID)
	assert.Equal(t, clockID, *got.AuctionClockID)
	assert.Equal(t, 4, got.Position)
	assert.Equal(t, 10, got.Stock)
	assert.Nil(t, got.AuctionedAt)
	assert.Equal(t, domain.InitialVersion, got.Version)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))

	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		_, err := tx.GetProduct(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.InsertProduct(ctx, p)
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func testCompareAndSwap(t *testing.T, store port.Store) {
	p := mustProduct(t, 10)
	insertProduct(t, store, p)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		cur, err := tx.GetProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		cur.Stock = 7
		if err := tx.UpdateProduct(ctx, cur, cur.Version); err != nil {
			return err
		}
		assert.Equal(t, domain.Version(2), cur.Version)

		// A second write in the same transaction builds on the first.
		cur.Stock = 6
		return tx.UpdateProduct(ctx, cur, cur.Version)
	})
	require.NoError(t, err)

	got := getProduct(t, store, p.ID)
	assert.Equal(t, 6, got.Stock)
	assert.Equal(t, domain.Version(3), got.Version)

	stale := *got
	stale.Stock = 1
	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.UpdateProduct(ctx, &stale, domain.InitialVersion)
	})
	var conflict *domain.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.EntityProduct, conflict.Entity)
	assert.Equal(t, domain.InitialVersion, conflict.Expected)
	assert.Equal(t, domain.Version(3), conflict.Current)

	assert.Equal(t, 6, getProduct(t, store, p.ID).Stock)
}

func testUpdateMissing(t *testing.T, store port.Store) {
	p := mustProduct(t, 1)
	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.UpdateProduct(ctx, p, p.Version)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testRollback(t *testing.T, store port.Store) {
	p := mustProduct(t, 10)
	insertProduct(t, store, p)
	o, err := domain.NewOrder(uuid.NewString(), "buyer-1", uuid.NewString(), time.Now().UTC())
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		cur, err := tx.GetProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		cur.Stock = 0
		if err := tx.UpdateProduct(ctx, cur, cur.Version); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got := getProduct(t, store, p.ID)
	assert.Equal(t, 10, got.Stock)
	assert.Equal(t, domain.InitialVersion, got.Version)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		_, err := tx.GetOrder(ctx, o.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testConcurrentWriters(t *testing.T, store port.Store) {
	p := mustProduct(t, 100)
	insertProduct(t, store, p)

	const writers = 10
	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
				cur, err := tx.GetProduct(ctx, p.ID)
				if err != nil {
					return err
				}
				cur.Stock -= i + 1
				// Every writer asserts the version all of them started from.
				return tx.UpdateProduct(ctx, cur, p.Version)
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrConcurrencyConflict):
				conflictCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
	assert.Equal(t, int32(writers-1), conflictCount.Load())
	assert.Equal(t, p.Version.Next(), getProduct(t, store, p.ID).Version)
}

func testOrderPerBuyerAndClock(t *testing.T, store port.Store) {
	clockID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)
	first, err := domain.NewOrder(uuid.NewString(), "buyer-1", clockID, now)
	require.NoError(t, err)
	second, err := domain.NewOrder(uuid.NewString(), "buyer-1", clockID, now)
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.InsertOrder(ctx, first)
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.InsertOrder(ctx, second)
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		found, err := tx.FindOrder(ctx, "buyer-1", clockID)
		if err != nil {
			return err
		}
		assert.Equal(t, first.ID, found.ID)

		_, err = tx.FindOrder(ctx, "buyer-2", clockID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		orders, err := tx.ListOrdersByClock(ctx, clockID)
		assert.Len(t, orders, 1)
		return err
	})
	require.NoError(t, err)
}

func testClockLifecycle(t *testing.T, store port.Store) {
	c := mustClock(t)
	p1, p2 := mustProduct(t, 5), mustProduct(t, 5)
	require.NoError(t, p1.AttachToClock(c.ID, 1))
	require.NoError(t, p2.AttachToClock(c.ID, 0))
	insertProduct(t, store, p1)
	insertProduct(t, store, p2)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.InsertClock(ctx, c)
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		cur, err := tx.GetClock(ctx, c.ID)
		if err != nil {
			return err
		}
		if err := cur.Transition(domain.ClockStatusStarted, time.Now().UTC().Truncate(time.Second)); err != nil {
			return err
		}
		return tx.UpdateClock(ctx, cur, cur.Version)
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		cur, err := tx.GetClockShared(ctx, c.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, domain.ClockStatusStarted, cur.Status)
		assert.NotNil(t, cur.StartedAt)
		assert.Equal(t, domain.Version(2), cur.Version)

		products, err := tx.ListProductsByClock(ctx, c.ID)
		if err != nil {
			return err
		}
		require.Len(t, products, 2)
		assert.Equal(t, p2.ID, products[0].ID)
		assert.Equal(t, p1.ID, products[1].ID)
		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.DeleteClock(ctx, c.ID, domain.InitialVersion)
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.DeleteClock(ctx, c.ID, domain.Version(2))
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		_, err := tx.GetClockShared(ctx, c.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testOrderLines(t *testing.T, store port.Store) {
	p := mustProduct(t, 5)
	insertProduct(t, store, p)
	now := time.Now().UTC().Truncate(time.Second)
	clockID := uuid.NewString()
	o, err := domain.NewOrder(uuid.NewString(), "buyer-1", clockID, now)
	require.NoError(t, err)
	line, err := domain.NewOrderLine(uuid.NewString(), o.ID, p, clockID, 2, decimal.RequireFromString("3"), now)
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return tx.InsertOrderLine(ctx, line)
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		cur, err := tx.GetOrderLine(ctx, line.ID)
		if err != nil {
			return err
		}
		if _, err := cur.CorrectQuantity(3, now); err != nil {
			return err
		}
		return tx.UpdateOrderLine(ctx, cur, cur.Version)
	})
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		lines, err := tx.ListOrderLines(ctx, o.ID)
		if err != nil {
			return err
		}
		require.Len(t, lines, 1)
		assert.Equal(t, 3, lines[0].Quantity)
		assert.Equal(t, domain.Version(2), lines[0].Version)
		assert.True(t, decimal.RequireFromString("2.50").Equal(lines[0].ProductMinimumPriceAtPurchase))
		assert.True(t, decimal.RequireFromString("3").Equal(lines[0].PriceAtPurchase))
		return nil
	})
	require.NoError(t, err)
}
