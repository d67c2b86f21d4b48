package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

const tracerName = "github.com/rl1809/flower-auction/internal/core/service"

var ErrDuplicateRequest = errors.New("duplicate request")

// Deps are the collaborators shared by every use case.
type Deps struct {
	Store  port.Store
	Cache  port.CacheRepository
	Events *EventQueue
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

type base struct {
	store  port.Store
	cache  port.CacheRepository
	events *EventQueue
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

func newBase(d Deps) base {
	b := base{
		store:  d.Store,
		cache:  d.Cache,
		events: d.Events,
		logger: d.Logger,
		tracer: otel.Tracer(tracerName),
		now:    d.Now,
		newID:  d.NewID,
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newID == nil {
		b.newID = uuid.NewString
	}
	return b
}

func (b *base) timestamp() time.Time {
	return b.now().UTC()
}

func (b *base) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (b *base) emit(eventType domain.EventType, aggregateID string, payload map[string]any) {
	if b.events == nil {
		return
	}
	b.events.Publish(domain.Event{
		ID:          b.newID(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  b.timestamp(),
		Payload:     payload,
	})
}

// logRejection logs expected business rejections quietly and anything else
// as an error.
func (b *base) logRejection(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	switch {
	case errors.Is(err, domain.ErrStorageUnavailable):
		b.logger.Error(msg, fields...)
	case errors.Is(err, domain.ErrConcurrencyConflict):
		b.logger.Info(msg, fields...)
	default:
		b.logger.Debug(msg, fields...)
	}
}

// releaseStaleClock clears the product's link to a clock that has ended so
// it can be scheduled again. A link to a live clock is left for
// AttachToClock to reject.
func releaseStaleClock(ctx context.Context, tx port.Tx, p *domain.Product, clockID string) error {
	if p.AuctionClockID == nil || *p.AuctionClockID == clockID {
		return nil
	}
	previous, err := tx.GetClock(ctx, *p.AuctionClockID)
	if errors.Is(err, domain.ErrNotFound) {
		p.ReleaseFromClock()
		return nil
	}
	if err != nil {
		return err
	}
	if previous.Status.Terminal() {
		p.ReleaseFromClock()
	}
	return nil
}
