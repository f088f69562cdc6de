package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent - доменное событие, записанное в той же транзакции, что и
// изменение состояния, и доставляемое в шину отдельным воркером.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AggregateType string          `db:"aggregate_type" json:"aggregate_type"`
	AggregateID   uuid.UUID       `db:"aggregate_id" json:"aggregate_id"`
	EventType     string          `db:"event_type" json:"event_type"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Attempts      int             `db:"attempts" json:"attempts"`
	LastError     *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	PublishedAt   *time.Time      `db:"published_at" json:"published_at,omitempty"`
}

// NewOutboxEvent собирает событие, сериализуя payload в JSON.
func NewOutboxEvent(aggregateType string, aggregateID uuid.UUID, eventType string, payload any) *OutboxEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}
}
