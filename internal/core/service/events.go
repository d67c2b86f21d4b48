package service

import (
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/flower-auction/internal/core/domain"
)

// EventQueue buffers committed domain events for the publishing workers.
// Publish never blocks: a full or closed queue drops the event.
type EventQueue struct {
	mu     sync.RWMutex
	closed bool
	queue  chan domain.Event
	logger *zap.Logger
}

func NewEventQueue(queueSize int, logger *zap.Logger) *EventQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventQueue{
		queue:  make(chan domain.Event, queueSize),
		logger: logger,
	}
}

func (q *EventQueue) Publish(event domain.Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("event queue closed, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("aggregate_id", event.AggregateID),
		)
		return
	}
	select {
	case q.queue <- event:
	default:
		q.logger.Warn("event queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("aggregate_id", event.AggregateID),
		)
	}
}

func (q *EventQueue) Events() <-chan domain.Event {
	return q.queue
}

// Close ends the Events channel once buffered events are drained. Handlers
// still running after shutdown may keep publishing; those events are dropped.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.queue)
}
