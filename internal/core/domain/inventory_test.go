package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProduct(t *testing.T, minimum string, stock int) *Product {
	t.Helper()
	p, err := NewProduct("p-1", "grower-1", "Rose Avalanche", "", decimal.RequireFromString(minimum), stock, testNow)
	require.NoError(t, err)
	return p
}

func TestProduct_DecreaseStock(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		amount    int
		wantStock int
		wantErr   bool
		auctioned bool
	}{
		{"partial", 10, 3, 7, false, false},
		{"last units", 3, 3, 0, false, true},
		{"more than stock", 2, 3, 2, true, false},
		{"zero amount", 2, 0, 2, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProduct(t, "1", tt.stock)
			err := p.DecreaseStock(tt.amount, testNow)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStock, p.Stock)
			assert.Equal(t, tt.auctioned, p.AuctionedAt != nil)
			assert.Equal(t, tt.auctioned, p.FullyAuctioned())
		})
	}
}

func TestProduct_IncreaseStockClearsAuctioned(t *testing.T) {
	p := newTestProduct(t, "1", 1)
	require.NoError(t, p.DecreaseStock(1, testNow))
	require.NoError(t, p.IncreaseStock(1))
	assert.Equal(t, 1, p.Stock)
	assert.Nil(t, p.AuctionedAt)
	assert.ErrorIs(t, p.IncreaseStock(0), ErrValidation)
}

func TestProduct_AttachAndDetach(t *testing.T) {
	p := newTestProduct(t, "1", 5)
	require.NoError(t, p.AttachToClock("clock-1", 2))
	assert.True(t, p.AttachedTo("clock-1"))
	assert.True(t, p.Biddable())

	err := p.AttachToClock("clock-2", 0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "auction_clock_id", verr.Field)

	p.IncreaseAuctionedCount()
	assert.ErrorIs(t, p.Detach(), ErrValidation)

	p.ReleaseFromClock()
	assert.False(t, p.AttachedTo("clock-1"))
	assert.False(t, p.Biddable())
	assert.Equal(t, 1, p.AuctionedCount)
}

func TestProduct_AttachWithoutStock(t *testing.T) {
	p := newTestProduct(t, "1", 0)
	assert.ErrorIs(t, p.AttachToClock("clock-1", 0), ErrValidation)
}

func TestProduct_SetAuctionPrice(t *testing.T) {
	p := newTestProduct(t, "2.50", 5)
	assert.ErrorIs(t, p.SetAuctionPrice(decimal.RequireFromString("2.49")), ErrValidation)
	assert.Nil(t, p.AuctionPrice)

	require.NoError(t, p.SetAuctionPrice(decimal.RequireFromString("2.50")))
	assert.True(t, decimal.RequireFromString("2.50").Equal(p.ReferencePrice()))
}

func TestProduct_UpdateDetails(t *testing.T) {
	p := newTestProduct(t, "1", 5)
	require.NoError(t, p.SetAuctionPrice(decimal.RequireFromString("3")))

	above := decimal.RequireFromString("4")
	err := p.UpdateDetails(ProductChanges{MinimumPrice: &above})
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, decimal.RequireFromString("1").Equal(p.MinimumPrice), "rejected edit leaves product untouched")

	empty := ""
	assert.ErrorIs(t, p.UpdateDetails(ProductChanges{Name: &empty}), ErrValidation)

	name, stock := "Rose Red", 9
	require.NoError(t, p.UpdateDetails(ProductChanges{Name: &name, Stock: &stock}))
	assert.Equal(t, "Rose Red", p.Name)
	assert.Equal(t, 9, p.Stock)
}
