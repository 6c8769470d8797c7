package pubsub

import (
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Message is the Pub/Sub message type, re-exported so callers need one import.
type Message = pubsub.Message

const (
	AttrOutboxID      = "outbox_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrCreatedAt     = "created_at"
)

var errEmptyMessage = errors.New("pubsub message has no data")

// EventMessage carries an outbox row over Pub/Sub. The payload travels as the
// message body and the row columns as attributes.
func EventMessage(event models.OutboxEvent) *Message {
	return &Message{
		Data: event.Payload,
		Attributes: map[string]string{
			AttrOutboxID:      event.ID,
			AttrEventType:     string(event.EventType),
			AttrAggregateType: string(event.AggregateType),
			AttrAggregateID:   event.AggregateID,
			AttrCreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// EventFromMessage rebuilds the outbox row a message was published from.
func EventFromMessage(msg *Message) (models.OutboxEvent, error) {
	if msg == nil || len(msg.Data) == 0 {
		return models.OutboxEvent{}, errEmptyMessage
	}
	eventType, err := enums.ParseOutboxEventType(msg.Attributes[AttrEventType])
	if err != nil {
		return models.OutboxEvent{}, err
	}
	aggregateType, err := enums.ParseOutboxAggregateType(msg.Attributes[AttrAggregateType])
	if err != nil {
		return models.OutboxEvent{}, err
	}
	event := models.OutboxEvent{
		ID:            msg.Attributes[AttrOutboxID],
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   msg.Attributes[AttrAggregateID],
		Payload:       msg.Data,
	}
	if event.ID == "" {
		event.ID = msg.ID
	}
	if event.ID == "" {
		return models.OutboxEvent{}, fmt.Errorf("message missing %s", AttrOutboxID)
	}
	if raw := msg.Attributes[AttrCreatedAt]; raw != "" {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			event.CreatedAt = at
		}
	}
	return event, nil
}
