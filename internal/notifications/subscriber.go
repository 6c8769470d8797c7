package notifications

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type eventHandler interface {
	Handle(ctx context.Context, event models.OutboxEvent) error
}

// Subscriber feeds outbox events published to the orders topic into the
// email consumer.
type Subscriber struct {
	subscription receiver
	handler      eventHandler
	logg         *logger.Logger
}

func NewSubscriber(subscription receiver, handler eventHandler, logg *logger.Logger) (*Subscriber, error) {
	if subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if handler == nil {
		return nil, fmt.Errorf("event handler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Subscriber{subscription: subscription, handler: handler, logg: logg}, nil
}

// Run receives until ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked. Messages that cannot
// be decoded are acked so they do not redeliver forever.
func (s *Subscriber) process(ctx context.Context, msg *pubsub.Message) bool {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes[pubsub.AttrEventType],
	})

	event, err := pubsub.EventFromMessage(msg)
	if err != nil {
		s.logg.Error(logCtx, "dropping undecodable message", err)
		return true
	}
	if err := s.handler.Handle(ctx, event); err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "event handling failed; redelivering")
		return false
	}
	return true
}
