package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

type PlaceBidInput struct {
	// RequestID deduplicates client retries of the same bid. Optional.
	RequestID              string
	BuyerID                string
	ClockID                string
	ProductID              string
	Quantity               int
	OfferedPrice           decimal.Decimal
	ExpectedProductVersion domain.Version
}

// PlacementService turns bids into order lines. It takes no in-process
// locks and never retries: every write is a version checked update inside a
// single store transaction, and conflicts go back to the caller.
type PlacementService struct {
	base
}

func NewPlacementService(deps Deps) *PlacementService {
	return &PlacementService{base: newBase(deps)}
}

func (s *PlacementService) PlaceBid(ctx context.Context, in PlaceBidInput) (summary OrderLineSummary, err error) {
	ctx, span := s.startSpan(ctx, "PlacementService.PlaceBid",
		attribute.String("buyer_id", in.BuyerID),
		attribute.String("clock_id", in.ClockID),
		attribute.String("product_id", in.ProductID),
		attribute.Int("quantity", in.Quantity),
	)
	defer func() { endSpan(span, err) }()

	if err := validateBid(in); err != nil {
		return OrderLineSummary{}, err
	}

	if in.RequestID != "" {
		idempotencyKey := fmt.Sprintf("bid:%s:%s", in.BuyerID, in.RequestID)
		ok, serr := s.cache.SetIdempotency(ctx, idempotencyKey)
		if serr != nil {
			return OrderLineSummary{}, &domain.StorageUnavailableError{Op: "idempotency check", Err: serr}
		}
		if !ok {
			return OrderLineSummary{}, ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if rerr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), idempotencyKey); rerr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("key", idempotencyKey), zap.Error(rerr))
			}
		}()
	}

	var (
		line    *domain.OrderLine
		order   *domain.Order
		product *domain.Product
		created bool
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		clock, err := tx.GetClockShared(ctx, in.ClockID)
		if err != nil {
			return err
		}
		if !clock.AcceptsBids() {
			return &domain.ClockNotBiddableError{ClockID: clock.ID, Status: clock.Status}
		}

		p, err := tx.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if !p.AttachedTo(clock.ID) {
			return domain.NewValidationError(domain.EntityProduct, "auction_clock_id", "product is not attached to auction clock "+clock.ID)
		}
		if err := p.Version.Check(domain.EntityProduct, p.ID, in.ExpectedProductVersion); err != nil {
			return err
		}
		if in.OfferedPrice.LessThan(p.MinimumPrice) {
			return domain.NewValidationError(domain.EntityOrderLine, "offered_price", "must not be below minimum price "+p.MinimumPrice.String())
		}

		now := s.timestamp()
		readVersion := p.Version
		if err := p.DecreaseStock(in.Quantity, now); err != nil {
			return err
		}
		p.IncreaseAuctionedCount()
		if err := p.SetAuctionPrice(in.OfferedPrice); err != nil {
			return err
		}
		p.UpdatedAt = now

		o, err := tx.FindOrder(ctx, in.BuyerID, clock.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			o, err = domain.NewOrder(s.newID(), in.BuyerID, clock.ID, now)
			if err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		case !o.Open():
			return domain.NewValidationError(domain.EntityOrder, "status", "order is "+string(o.Status))
		}

		l, err := domain.NewOrderLine(s.newID(), o.ID, p, clock.ID, in.Quantity, in.OfferedPrice, now)
		if err != nil {
			return err
		}

		// Product first, order second: concurrent bids on the same product
		// fail on the product row before touching the buyer's order.
		if err := tx.UpdateProduct(ctx, p, readVersion); err != nil {
			return err
		}
		if created {
			err = tx.InsertOrder(ctx, o)
		} else {
			o.Touch(now)
			err = tx.UpdateOrder(ctx, o, o.Version)
		}
		if err != nil {
			return err
		}
		if err := tx.InsertOrderLine(ctx, l); err != nil {
			return err
		}

		line, order, product = l, o, p
		return nil
	})
	if err != nil {
		s.logRejection("bid rejected", err,
			zap.String("buyer_id", in.BuyerID),
			zap.String("clock_id", in.ClockID),
			zap.String("product_id", in.ProductID),
			zap.Int("quantity", in.Quantity),
		)
		return OrderLineSummary{}, err
	}

	s.logger.Info("bid placed",
		zap.String("order_line_id", line.ID),
		zap.String("order_id", order.ID),
		zap.Bool("order_created", created),
		zap.String("product_id", product.ID),
		zap.Int("quantity", line.Quantity),
		zap.String("price", line.PriceAtPurchase.String()),
		zap.Int("stock_left", product.Stock),
	)
	s.emit(domain.EventOrderLinePlaced, line.ID, map[string]any{
		"order_id":   order.ID,
		"buyer_id":   order.BuyerID,
		"clock_id":   line.AuctionClockID,
		"product_id": line.ProductID,
		"quantity":   line.Quantity,
		"price":      line.PriceAtPurchase.String(),
	})
	return newOrderLineSummary(line, order, product), nil
}

func validateBid(in PlaceBidInput) error {
	switch {
	case in.BuyerID == "":
		return domain.NewValidationError(domain.EntityOrder, "buyer_id", "is required")
	case in.ClockID == "":
		return domain.NewValidationError(domain.EntityOrderLine, "auction_clock_id", "is required")
	case in.ProductID == "":
		return domain.NewValidationError(domain.EntityOrderLine, "product_id", "is required")
	case in.Quantity < 1:
		return domain.NewValidationError(domain.EntityOrderLine, "quantity", "must be at least 1")
	case in.OfferedPrice.IsNegative():
		return domain.NewValidationError(domain.EntityOrderLine, "offered_price", "must not be negative")
	}
	return nil
}

// CorrectOrderLineQuantity re-validates the line against the minimum price
// snapshot taken at placement and moves the difference in and out of the
// product's stock under the same version checks as a bid. Lines of an ended
// or stopped clock are final.
func (s *PlacementService) CorrectOrderLineQuantity(ctx context.Context, lineID string, quantity int, expected domain.Version) (summary OrderLineSummary, err error) {
	ctx, span := s.startSpan(ctx, "PlacementService.CorrectOrderLineQuantity",
		attribute.String("order_line_id", lineID),
		attribute.Int("quantity", quantity),
		attribute.Int64("expected_version", int64(expected)),
	)
	defer func() { endSpan(span, err) }()

	var (
		line    *domain.OrderLine
		order   *domain.Order
		product *domain.Product
		delta   int
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		l, err := tx.GetOrderLine(ctx, lineID)
		if err != nil {
			return err
		}
		if err := l.Version.Check(domain.EntityOrderLine, l.ID, expected); err != nil {
			return err
		}
		o, err := tx.GetOrder(ctx, l.OrderID)
		if err != nil {
			return err
		}
		if !o.Open() {
			return domain.NewValidationError(domain.EntityOrder, "status", "order is "+string(o.Status))
		}
		clock, err := tx.GetClockShared(ctx, l.AuctionClockID)
		if err != nil {
			return err
		}
		if clock.Status.Terminal() {
			return &domain.ClockNotBiddableError{ClockID: clock.ID, Status: clock.Status}
		}
		p, err := tx.GetProduct(ctx, l.ProductID)
		if err != nil {
			return err
		}

		now := s.timestamp()
		lineVersion, productVersion := l.Version, p.Version
		delta, err = l.CorrectQuantity(quantity, now)
		if err != nil {
			return err
		}
		switch {
		case delta > 0:
			err = p.DecreaseStock(delta, now)
		case delta < 0:
			err = p.IncreaseStock(-delta)
		}
		if err != nil {
			return err
		}
		if delta != 0 {
			p.UpdatedAt = now
			if err := tx.UpdateProduct(ctx, p, productVersion); err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderLine(ctx, l, lineVersion); err != nil {
			return err
		}
		o.Touch(now)
		if err := tx.UpdateOrder(ctx, o, o.Version); err != nil {
			return err
		}

		line, order, product = l, o, p
		return nil
	})
	if err != nil {
		s.logRejection("order line correction rejected", err,
			zap.String("order_line_id", lineID),
			zap.Int("quantity", quantity),
		)
		return OrderLineSummary{}, err
	}

	s.logger.Info("order line corrected",
		zap.String("order_line_id", line.ID),
		zap.Int("quantity", line.Quantity),
		zap.Int("delta", delta),
	)
	s.emit(domain.EventOrderLineCorrected, line.ID, map[string]any{
		"order_id":   order.ID,
		"product_id": line.ProductID,
		"quantity":   line.Quantity,
		"delta":      delta,
	})
	return newOrderLineSummary(line, order, product), nil
}

func (s *PlacementService) GetOrder(ctx context.Context, orderID string) (OrderSummary, error) {
	var (
		order *domain.Order
		lines []*domain.OrderLine
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		lines, err = tx.ListOrderLines(ctx, o.ID)
		order = o
		return err
	})
	if err != nil {
		return OrderSummary{}, err
	}
	return newOrderSummary(order, lines), nil
}
