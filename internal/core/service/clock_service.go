package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

type ClockItem struct {
	ProductID    string
	AuctionPrice decimal.Decimal
}

type CreateClockInput struct {
	OwnerID         string
	ScheduledAt     time.Time
	DurationSeconds int
	Region          string
	Country         string
	// Items keep their slice order as clock position.
	Items []ClockItem
}

type AttachProductInput struct {
	ClockID              string
	ProductID            string
	AuctionPrice         decimal.Decimal
	ExpectedClockVersion domain.Version
}

type LiveViews struct {
	ClockID string `json:"clock_id"`
	Current int    `json:"current"`
	Peak    int    `json:"peak"`
}

type ClockService struct {
	base
}

func NewClockService(deps Deps) *ClockService {
	return &ClockService{base: newBase(deps)}
}

func (s *ClockService) CreateAuctionClock(ctx context.Context, in CreateClockInput) (summary AuctionClockSummary, err error) {
	ctx, span := s.startSpan(ctx, "ClockService.CreateAuctionClock",
		attribute.String("owner_id", in.OwnerID),
		attribute.Int("items", len(in.Items)),
	)
	defer func() { endSpan(span, err) }()

	now := s.timestamp()
	clock, err := domain.NewAuctionClock(s.newID(), in.OwnerID, in.ScheduledAt, in.DurationSeconds, in.Region, in.Country, now)
	if err != nil {
		return AuctionClockSummary{}, err
	}

	seen := make(map[string]struct{}, len(in.Items))
	for _, item := range in.Items {
		if item.ProductID == "" {
			return AuctionClockSummary{}, domain.NewValidationError(domain.EntityClock, "items", "product id is required")
		}
		if _, dup := seen[item.ProductID]; dup {
			return AuctionClockSummary{}, domain.NewValidationError(domain.EntityClock, "items", "product "+item.ProductID+" listed twice")
		}
		seen[item.ProductID] = struct{}{}
	}

	var products []*domain.Product
	err = s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		products = make([]*domain.Product, 0, len(in.Items))
		for position, item := range in.Items {
			p, err := s.attach(ctx, tx, clock.ID, item.ProductID, item.AuctionPrice, position, now)
			if err != nil {
				return err
			}
			products = append(products, p)
		}
		clock.RecomputePriceBounds(products)
		return tx.InsertClock(ctx, clock)
	})
	if err != nil {
		s.logRejection("create auction clock rejected", err, zap.String("owner_id", in.OwnerID))
		return AuctionClockSummary{}, err
	}

	s.logger.Info("auction clock created",
		zap.String("clock_id", clock.ID),
		zap.Int("items", len(products)),
		zap.Time("scheduled_at", clock.ScheduledAt),
	)
	s.emit(domain.EventClockCreated, clock.ID, map[string]any{
		"owner_id": clock.AuctioneerID,
		"items":    len(products),
	})
	return newClockSummary(clock, products), nil
}

// attach links a product to the clock at position and writes it back under
// its version. The caller recomputes the clock's price bounds.
func (s *ClockService) attach(ctx context.Context, tx port.Tx, clockID, productID string, price decimal.Decimal, position int, now time.Time) (*domain.Product, error) {
	p, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.AttachedTo(clockID) {
		return nil, domain.NewValidationError(domain.EntityProduct, "auction_clock_id", "product is already attached to this auction clock")
	}
	if err := releaseStaleClock(ctx, tx, p, clockID); err != nil {
		return nil, err
	}
	if err := p.AttachToClock(clockID, position); err != nil {
		return nil, err
	}
	if err := p.SetAuctionPrice(price); err != nil {
		return nil, err
	}
	p.UpdatedAt = now
	if err := tx.UpdateProduct(ctx, p, p.Version); err != nil {
		return nil, err
	}
	return p, nil
}

// TransitionClockStatus moves the clock along the state graph. Ending or
// stopping a clock closes its open orders and records the peak live view
// count in the same transaction.
func (s *ClockService) TransitionClockStatus(ctx context.Context, clockID string, target domain.ClockStatus, expected domain.Version) (summary AuctionClockSummary, err error) {
	ctx, span := s.startSpan(ctx, "ClockService.TransitionClockStatus",
		attribute.String("clock_id", clockID),
		attribute.String("target", string(target)),
		attribute.Int64("expected_version", int64(expected)),
	)
	defer func() { endSpan(span, err) }()

	if !target.Valid() {
		return AuctionClockSummary{}, domain.NewValidationError(domain.EntityClock, "status", "unknown status "+string(target))
	}

	var (
		clock    *domain.AuctionClock
		products []*domain.Product
		from     domain.ClockStatus
		closed   int
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		c, err := tx.GetClock(ctx, clockID)
		if err != nil {
			return err
		}
		if err := c.Version.Check(domain.EntityClock, c.ID, expected); err != nil {
			return err
		}
		from = c.Status
		now := s.timestamp()
		if err := c.Transition(target, now); err != nil {
			return err
		}

		if target.Terminal() {
			c.RecordPeakViews(s.peakViews(ctx, c.ID))
		}
		// The clock row is written before the order scan so that placements
		// holding the clock either commit first and show up in the scan or
		// see the terminal status.
		if err := tx.UpdateClock(ctx, c, c.Version); err != nil {
			return err
		}

		if target.Terminal() {
			orders, err := tx.ListOrdersByClock(ctx, c.ID)
			if err != nil {
				return err
			}
			for _, o := range orders {
				if !o.Open() {
					continue
				}
				if err := o.Close(now); err != nil {
					return err
				}
				if err := tx.UpdateOrder(ctx, o, o.Version); err != nil {
					return err
				}
				closed++
			}
		}
		products, err = tx.ListProductsByClock(ctx, c.ID)
		if err != nil {
			return err
		}
		clock = c
		return nil
	})
	if err != nil {
		s.logRejection("clock transition rejected", err,
			zap.String("clock_id", clockID),
			zap.String("target", string(target)),
		)
		return AuctionClockSummary{}, err
	}

	s.logger.Info("clock status changed",
		zap.String("clock_id", clock.ID),
		zap.String("from", string(from)),
		zap.String("to", string(clock.Status)),
		zap.Int("orders_closed", closed),
	)
	s.emit(domain.EventClockStatusChanged, clock.ID, map[string]any{
		"from":    string(from),
		"to":      string(clock.Status),
		"version": int64(clock.Version),
	})
	return newClockSummary(clock, products), nil
}

// peakViews reads the live view peak; a cache failure must not block ending
// a clock, so it falls back to zero.
func (s *ClockService) peakViews(ctx context.Context, clockID string) int {
	if s.cache == nil {
		return 0
	}
	peak, err := s.cache.PeakViews(ctx, clockID)
	if err != nil {
		s.logger.Warn("failed to read peak live views", zap.String("clock_id", clockID), zap.Error(err))
		return 0
	}
	return peak
}

func (s *ClockService) AttachProduct(ctx context.Context, in AttachProductInput) (summary AuctionClockSummary, err error) {
	ctx, span := s.startSpan(ctx, "ClockService.AttachProduct",
		attribute.String("clock_id", in.ClockID),
		attribute.String("product_id", in.ProductID),
	)
	defer func() { endSpan(span, err) }()

	var (
		clock    *domain.AuctionClock
		products []*domain.Product
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		c, err := tx.GetClock(ctx, in.ClockID)
		if err != nil {
			return err
		}
		if err := c.Version.Check(domain.EntityClock, c.ID, in.ExpectedClockVersion); err != nil {
			return err
		}
		if !c.AcceptsItems() {
			return domain.NewValidationError(domain.EntityClock, "status", "auction clock is "+string(c.Status)+" and no longer accepts items")
		}

		attached, err := tx.ListProductsByClock(ctx, c.ID)
		if err != nil {
			return err
		}
		position := 0
		for _, p := range attached {
			if p.Position >= position {
				position = p.Position + 1
			}
		}

		now := s.timestamp()
		p, err := s.attach(ctx, tx, c.ID, in.ProductID, in.AuctionPrice, position, now)
		if err != nil {
			return err
		}
		products = append(attached, p)
		c.RecomputePriceBounds(products)
		c.UpdatedAt = now
		if err := tx.UpdateClock(ctx, c, c.Version); err != nil {
			return err
		}
		clock = c
		return nil
	})
	if err != nil {
		s.logRejection("attach product rejected", err,
			zap.String("clock_id", in.ClockID),
			zap.String("product_id", in.ProductID),
		)
		return AuctionClockSummary{}, err
	}

	s.emit(domain.EventProductAttached, clock.ID, map[string]any{"product_id": in.ProductID})
	return newClockSummary(clock, products), nil
}

func (s *ClockService) DetachProduct(ctx context.Context, clockID, productID string, expected domain.Version) (summary AuctionClockSummary, err error) {
	ctx, span := s.startSpan(ctx, "ClockService.DetachProduct",
		attribute.String("clock_id", clockID),
		attribute.String("product_id", productID),
	)
	defer func() { endSpan(span, err) }()

	var (
		clock    *domain.AuctionClock
		products []*domain.Product
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		c, err := tx.GetClock(ctx, clockID)
		if err != nil {
			return err
		}
		if err := c.Version.Check(domain.EntityClock, c.ID, expected); err != nil {
			return err
		}
		if !c.AcceptsItems() {
			return domain.NewValidationError(domain.EntityClock, "status", "auction clock is "+string(c.Status)+" and no longer accepts item changes")
		}

		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !p.AttachedTo(c.ID) {
			return domain.NewValidationError(domain.EntityProduct, "auction_clock_id", "product is not attached to this auction clock")
		}
		if err := p.Detach(); err != nil {
			return err
		}
		now := s.timestamp()
		p.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, p, p.Version); err != nil {
			return err
		}

		products, err = tx.ListProductsByClock(ctx, c.ID)
		if err != nil {
			return err
		}
		c.RecomputePriceBounds(products)
		c.UpdatedAt = now
		if err := tx.UpdateClock(ctx, c, c.Version); err != nil {
			return err
		}
		clock = c
		return nil
	})
	if err != nil {
		s.logRejection("detach product rejected", err,
			zap.String("clock_id", clockID),
			zap.String("product_id", productID),
		)
		return AuctionClockSummary{}, err
	}

	s.emit(domain.EventProductDetached, clock.ID, map[string]any{"product_id": productID})
	return newClockSummary(clock, products), nil
}

// DeleteAuctionClock removes a clock that never started and detaches all of
// its products.
func (s *ClockService) DeleteAuctionClock(ctx context.Context, clockID string, expected domain.Version) (err error) {
	ctx, span := s.startSpan(ctx, "ClockService.DeleteAuctionClock", attribute.String("clock_id", clockID))
	defer func() { endSpan(span, err) }()

	var detached int
	err = s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		c, err := tx.GetClock(ctx, clockID)
		if err != nil {
			return err
		}
		if err := c.Version.Check(domain.EntityClock, c.ID, expected); err != nil {
			return err
		}
		if !c.Deletable() {
			return domain.NewValidationError(domain.EntityClock, "status", "only scheduled auction clocks can be deleted")
		}

		products, err := tx.ListProductsByClock(ctx, c.ID)
		if err != nil {
			return err
		}
		now := s.timestamp()
		for _, p := range products {
			if err := p.Detach(); err != nil {
				return err
			}
			p.UpdatedAt = now
			if err := tx.UpdateProduct(ctx, p, p.Version); err != nil {
				return err
			}
		}
		detached = len(products)
		return tx.DeleteClock(ctx, c.ID, c.Version)
	})
	if err != nil {
		s.logRejection("delete auction clock rejected", err, zap.String("clock_id", clockID))
		return err
	}

	s.logger.Info("auction clock deleted", zap.String("clock_id", clockID), zap.Int("detached", detached))
	s.emit(domain.EventClockDeleted, clockID, map[string]any{"detached": detached})
	return nil
}

func (s *ClockService) GetAuctionClock(ctx context.Context, clockID string) (AuctionClockSummary, error) {
	var (
		clock    *domain.AuctionClock
		products []*domain.Product
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		c, err := tx.GetClock(ctx, clockID)
		if err != nil {
			return err
		}
		products, err = tx.ListProductsByClock(ctx, c.ID)
		clock = c
		return err
	})
	if err != nil {
		return AuctionClockSummary{}, err
	}
	return newClockSummary(clock, products), nil
}

// JoinClock counts a live viewer on a clock that has not finished yet.
func (s *ClockService) JoinClock(ctx context.Context, clockID string) (LiveViews, error) {
	if err := s.requireLiveClock(ctx, clockID); err != nil {
		return LiveViews{}, err
	}
	current, peak, err := s.cache.JoinClock(ctx, clockID)
	if err != nil {
		return LiveViews{}, &domain.StorageUnavailableError{Op: "join clock", Err: err}
	}
	return LiveViews{ClockID: clockID, Current: current, Peak: peak}, nil
}

func (s *ClockService) LeaveClock(ctx context.Context, clockID string) (LiveViews, error) {
	current, err := s.cache.LeaveClock(ctx, clockID)
	if err != nil {
		return LiveViews{}, &domain.StorageUnavailableError{Op: "leave clock", Err: err}
	}
	peak, err := s.cache.PeakViews(ctx, clockID)
	if err != nil {
		return LiveViews{}, &domain.StorageUnavailableError{Op: "leave clock", Err: err}
	}
	return LiveViews{ClockID: clockID, Current: current, Peak: peak}, nil
}

func (s *ClockService) requireLiveClock(ctx context.Context, clockID string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx port.Tx) error {
		c, err := tx.GetClock(ctx, clockID)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			return domain.NewValidationError(domain.EntityClock, "status", "auction clock is "+string(c.Status))
		}
		return nil
	})
}
