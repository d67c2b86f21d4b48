package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/flower-auction/internal/core/domain"
)

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)

	p, err := f.products.CreateProduct(context.Background(), CreateProductInput{
		GrowerID:     "grower-1",
		Name:         "Rose Avalanche",
		Description:  "60cm, 20 stems",
		MinimumPrice: price("0.45"),
		Stock:        100,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.InitialVersion, p.Version)
	assert.Nil(t, p.AuctionClockID)

	_, err = f.products.CreateProduct(context.Background(), CreateProductInput{
		GrowerID: "grower-1", Name: "x", MinimumPrice: price("-1"), Stock: 1,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.products.CreateProduct(context.Background(), CreateProductInput{
		GrowerID: "grower-1", Name: "x", MinimumPrice: price("1"), Stock: -1,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateProduct(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10", 5)

	name := "Tulip Yellow"
	stock := 7
	updated, err := f.products.UpdateProduct(context.Background(), UpdateProductInput{
		ProductID:       p.ID,
		Changes:         domain.ProductChanges{Name: &name, Stock: &stock},
		ExpectedVersion: p.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 7, updated.Stock)
	assert.Equal(t, p.Version.Next(), updated.Version)

	_, err = f.products.UpdateProduct(context.Background(), UpdateProductInput{
		ProductID:       p.ID,
		Changes:         domain.ProductChanges{Name: &name},
		ExpectedVersion: p.Version,
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestUpdateProduct_StockLockedWhileAttached(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10", 5)
	f.scheduledClock(t, ClockItem{ProductID: p.ID, AuctionPrice: price("12")})

	stock := 50
	_, err := f.products.UpdateProduct(context.Background(), UpdateProductInput{
		ProductID: p.ID,
		Changes:   domain.ProductChanges{Stock: &stock},
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "stock", verr.Field)

	tooHigh := price("13")
	_, err = f.products.UpdateProduct(context.Background(), UpdateProductInput{
		ProductID: p.ID,
		Changes:   domain.ProductChanges{MinimumPrice: &tooHigh},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "minimum_price", verr.Field)
}

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.products.GetProduct(context.Background(), "missing")

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.EntityProduct, nf.Entity)
}
