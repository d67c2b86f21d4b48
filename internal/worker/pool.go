package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/port"
)

const defaultPublishTimeout = 5 * time.Second

// Pool drains committed domain events into a publisher. Workers exit when the
// queue is closed and fully drained.
type Pool struct {
	publisher port.EventPublisher
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewPool(publisher port.EventPublisher, timeout time.Duration, logger *zap.Logger) *Pool {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{publisher: publisher, timeout: timeout, logger: logger}
}

func (p *Pool) Start(workers int, queue <-chan domain.Event) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.loop(id, queue)
		}(i)
	}
	p.logger.Info("started event workers", zap.Int("count", workers))
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) loop(id int, queue <-chan domain.Event) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)

		if err := p.publisher.Publish(ctx, event); err != nil {
			// The state change is already committed; the event is lost.
			p.logger.Error("failed to publish event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.String("aggregate_id", event.AggregateID),
				zap.Error(err),
			)
		} else {
			p.logger.Debug("published event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
			)
		}

		cancel()
	}
}
