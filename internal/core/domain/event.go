package domain

import "time"

type EventType string

const (
	EventClockCreated       EventType = "clock.created"
	EventClockStatusChanged EventType = "clock.status_changed"
	EventOrderLinePlaced    EventType = "order_line.placed"
	EventOrderLineCorrected EventType = "order_line.corrected"
	EventProductAttached    EventType = "clock.product_attached"
	EventProductDetached    EventType = "clock.product_detached"
	EventClockDeleted       EventType = "clock.deleted"
)

// Event is published after the transaction that produced it has committed.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload"`
}
