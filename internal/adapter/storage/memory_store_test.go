package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) port.Store { return NewMemoryStore() })
}

func TestMemoryStore_ReadsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	p := mustProduct(t, 5)
	insertProduct(t, store, p)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		cur, err := tx.GetProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		cur.Stock = 0
		if err := tx.UpdateProduct(ctx, cur, cur.Version); err != nil {
			return err
		}

		// Uncommitted writes stay invisible to other transactions.
		outside := getProduct(t, store, p.ID)
		assert.Equal(t, 5, outside.Stock)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, getProduct(t, store, p.ID).Stock)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	p := mustProduct(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	err := store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		_, err := tx.GetProduct(ctx, p.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	p := mustProduct(t, 5)
	insertProduct(t, store, p)

	p.Stock = 99
	got := getProduct(t, store, p.ID)
	assert.Equal(t, 5, got.Stock)

	got.Stock = 42
	assert.Equal(t, 5, getProduct(t, store, p.ID).Stock)
}

func insertClock(t *testing.T, store port.Store, c *domain.AuctionClock) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.InsertClock(ctx, c)
	})
	require.NoError(t, err)
}

func TestMemoryStore_SharedClockReadFailsAfterClockChange(t *testing.T) {
	store := NewMemoryStore()
	c := mustClock(t)
	insertClock(t, store, c)
	p := mustProduct(t, 5)
	insertProduct(t, store, p)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		if _, err := tx.GetClockShared(ctx, c.ID); err != nil {
			return err
		}

		inner := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
			cur, err := tx.GetClock(ctx, c.ID)
			if err != nil {
				return err
			}
			cur.Region = "Westland"
			return tx.UpdateClock(ctx, cur, cur.Version)
		})
		require.NoError(t, inner)

		cur, err := tx.GetProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		cur.Stock = 4
		return tx.UpdateProduct(ctx, cur, cur.Version)
	})
	var conflict *domain.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.EntityClock, conflict.Entity)
	assert.Equal(t, 5, getProduct(t, store, p.ID).Stock)
}

func TestMemoryStore_PlainClockReadIsNotValidated(t *testing.T) {
	store := NewMemoryStore()
	c := mustClock(t)
	insertClock(t, store, c)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		if _, err := tx.GetClock(ctx, c.ID); err != nil {
			return err
		}
		return store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
			return tx.DeleteClock(ctx, c.ID, c.Version)
		})
	})
	assert.NoError(t, err)
}

func TestMemoryStore_OrderScanConflictsWithLaterOrder(t *testing.T) {
	store := NewMemoryStore()
	c := mustClock(t)
	insertClock(t, store, c)
	now := time.Now().UTC().Truncate(time.Second)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		orders, err := tx.ListOrdersByClock(ctx, c.ID)
		if err != nil {
			return err
		}
		assert.Empty(t, orders)

		inner := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
			o, err := domain.NewOrder(uuid.NewString(), "buyer-1", c.ID, now)
			if err != nil {
				return err
			}
			return tx.InsertOrder(ctx, o)
		})
		require.NoError(t, inner)

		cur, err := tx.GetClock(ctx, c.ID)
		if err != nil {
			return err
		}
		cur.Region = "Westland"
		return tx.UpdateClock(ctx, cur, cur.Version)
	})
	var conflict *domain.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.EntityOrder, conflict.Entity)
}

func TestMemoryStore_OrderScanIgnoresOtherClocks(t *testing.T) {
	store := NewMemoryStore()
	c := mustClock(t)
	insertClock(t, store, c)
	now := time.Now().UTC().Truncate(time.Second)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		if _, err := tx.ListOrdersByClock(ctx, c.ID); err != nil {
			return err
		}
		return store.WithTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
			o, err := domain.NewOrder(uuid.NewString(), "buyer-1", uuid.NewString(), now)
			if err != nil {
				return err
			}
			return tx.InsertOrder(ctx, o)
		})
	})
	assert.NoError(t, err)
}
