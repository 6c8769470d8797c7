package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OutboxEvent is a domain event written in the same transaction as the state
// change it describes. Payload holds an outbox.Envelope. Rows are only ever
// stamped (published, failed), never edited otherwise.
type OutboxEvent struct {
	ID            string                    `gorm:"column:id;type:text;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null;index:ix_outbox_events_aggregate,priority:1"`
	AggregateID   string                    `gorm:"column:aggregate_id;type:text;not null;index:ix_outbox_events_aggregate,priority:2"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;serializer:json;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime;index:ix_outbox_events_unpublished,where:published_at IS NULL"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

func (e OutboxEvent) Published() bool { return e.PublishedAt != nil }

// Exhausted reports whether the publisher has given up on the row.
func (e OutboxEvent) Exhausted(maxAttempts int) bool {
	return e.PublishedAt == nil && maxAttempts > 0 && e.AttemptCount >= maxAttempts
}
