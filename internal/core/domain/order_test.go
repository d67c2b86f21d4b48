package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderLine_SnapshotsMinimumPrice(t *testing.T) {
	p := newTestProduct(t, "1.20", 10)

	line, err := NewOrderLine("l-1", "o-1", p, "clock-1", 3, decimal.RequireFromString("1.50"), testNow)
	require.NoError(t, err)

	p.MinimumPrice = decimal.RequireFromString("2")
	assert.True(t, decimal.RequireFromString("1.20").Equal(line.ProductMinimumPriceAtPurchase))
	assert.True(t, decimal.RequireFromString("4.50").Equal(line.Total()))

	_, err = NewOrderLine("l-2", "o-1", p, "clock-1", 1, decimal.RequireFromString("1.50"), testNow)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "price_at_purchase", verr.Field)

	_, err = NewOrderLine("l-3", "o-1", p, "clock-1", 0, decimal.RequireFromString("5"), testNow)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity", verr.Field)
}

func TestOrderLine_CorrectQuantity(t *testing.T) {
	p := newTestProduct(t, "1", 10)
	line, err := NewOrderLine("l-1", "o-1", p, "clock-1", 4, decimal.RequireFromString("1"), testNow)
	require.NoError(t, err)

	later := testNow.Add(time.Minute)
	delta, err := line.CorrectQuantity(6, later)
	require.NoError(t, err)
	assert.Equal(t, 2, delta)
	assert.Equal(t, later, line.UpdatedAt)

	delta, err = line.CorrectQuantity(1, later)
	require.NoError(t, err)
	assert.Equal(t, -5, delta)

	_, err = line.CorrectQuantity(0, later)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, line.Quantity)
}

func TestOrder_Close(t *testing.T) {
	o, err := NewOrder("o-1", "buyer-1", "clock-1", testNow)
	require.NoError(t, err)
	assert.True(t, o.Open())

	require.NoError(t, o.Close(testNow))
	assert.False(t, o.Open())
	assert.NotNil(t, o.ClosedAt)
	assert.ErrorIs(t, o.Close(testNow), ErrValidation)

	_, err = NewOrder("o-2", "", "clock-1", testNow)
	assert.ErrorIs(t, err, ErrValidation)
}
