package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

type CreateProductInput struct {
	GrowerID     string
	Name         string
	Description  string
	MinimumPrice decimal.Decimal
	Stock        int
}

type UpdateProductInput struct {
	ProductID       string
	Changes         domain.ProductChanges
	ExpectedVersion domain.Version
}

type ProductService struct {
	base
}

func NewProductService(deps Deps) *ProductService {
	return &ProductService{base: newBase(deps)}
}

func (s *ProductService) CreateProduct(ctx context.Context, in CreateProductInput) (summary ProductSummary, err error) {
	ctx, span := s.startSpan(ctx, "ProductService.CreateProduct", attribute.String("grower_id", in.GrowerID))
	defer func() { endSpan(span, err) }()

	product, err := domain.NewProduct(s.newID(), in.GrowerID, in.Name, in.Description, in.MinimumPrice, in.Stock, s.timestamp())
	if err != nil {
		return ProductSummary{}, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.InsertProduct(ctx, product)
	})
	if err != nil {
		s.logRejection("create product failed", err, zap.String("grower_id", in.GrowerID))
		return ProductSummary{}, err
	}

	s.logger.Info("product created", zap.String("product_id", product.ID), zap.Int("stock", product.Stock))
	return newProductSummary(product), nil
}

// UpdateProduct applies a grower edit. Stock is only editable while the
// product is not attached to a clock; bids change it through placement.
func (s *ProductService) UpdateProduct(ctx context.Context, in UpdateProductInput) (summary ProductSummary, err error) {
	ctx, span := s.startSpan(ctx, "ProductService.UpdateProduct", attribute.String("product_id", in.ProductID))
	defer func() { endSpan(span, err) }()

	var product *domain.Product
	err = s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		p, err := tx.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if err := p.Version.Check(domain.EntityProduct, p.ID, in.ExpectedVersion); err != nil {
			return err
		}
		if err := p.UpdateDetails(in.Changes); err != nil {
			return err
		}
		p.UpdatedAt = s.timestamp()
		if err := tx.UpdateProduct(ctx, p, p.Version); err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		s.logRejection("update product rejected", err, zap.String("product_id", in.ProductID))
		return ProductSummary{}, err
	}
	return newProductSummary(product), nil
}

func (s *ProductService) GetProduct(ctx context.Context, productID string) (ProductSummary, error) {
	var product *domain.Product
	err := s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		product = p
		return err
	})
	if err != nil {
		return ProductSummary{}, err
	}
	return newProductSummary(product), nil
}
