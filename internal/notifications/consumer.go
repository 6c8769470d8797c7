package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/email"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	emailConsumer        = "order-emails"
	notificationIDPrefix = "ntf_"
)

type eventClaimer interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// Consumer turns order outbox events into customer emails.
type Consumer struct {
	repo        Repository
	sender      email.Sender
	decoders    *outbox.Decoders
	idempotency eventClaimer
	logg        *logger.Logger
}

type ConsumerParams struct {
	Repo     Repository
	Sender   email.Sender
	Decoders *outbox.Decoders
	// Idempotency is optional; the unique event id on the delivery log still
	// prevents duplicates without Redis.
	Idempotency eventClaimer
	Logger      *logger.Logger
}

// NewConsumer builds an order email consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoders := params.Decoders
	if decoders == nil {
		var err error
		if decoders, err = payloads.Decoders(); err != nil {
			return nil, fmt.Errorf("order decoders: %w", err)
		}
	}
	return &Consumer{
		repo:        params.Repo,
		sender:      params.Sender,
		decoders:    decoders,
		idempotency: params.Idempotency,
		logg:        params.Logger,
	}, nil
}

// Handle processes one outbox row. A nil error means the row can be marked
// published; an error leaves it for another attempt.
func (c *Consumer) Handle(ctx context.Context, event models.OutboxEvent) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	})

	envelope, err := outbox.ParseEnvelope(event.Payload)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return fmt.Errorf("decode envelope: %w", err)
	}
	eventID := envelope.EventID
	if eventID == "" {
		eventID = event.ID
	}

	decoded, err := c.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if errors.Is(err, outbox.ErrNoDecoder) {
		c.logg.Warn(logCtx, "skipping event without decoder")
		return nil
	}
	if err != nil {
		c.logg.Error(logCtx, "failed to decode event data", err)
		return fmt.Errorf("decode %s: %w", event.EventType, err)
	}

	msg, kind, orderID, ok, err := c.compose(decoded)
	if err != nil {
		c.logg.Error(logCtx, "failed to render email", err)
		return err
	}
	if !ok {
		c.logg.Debug(logCtx, "no email for event")
		return nil
	}
	logCtx = c.logg.WithOrderID(logCtx, orderID)

	sent, err := c.repo.ExistsForEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("check delivery log: %w", err)
	}
	if sent {
		c.logg.Info(logCtx, "email already sent")
		return nil
	}

	if c.idempotency != nil {
		claimed, err := c.idempotency.Claim(ctx, emailConsumer, eventID)
		if err != nil {
			c.logg.Error(logCtx, "idempotency check failed", err)
			return err
		}
		if !claimed {
			c.logg.Info(logCtx, "event already processed")
			return nil
		}
	}

	messageID, err := c.sender.Send(ctx, msg)
	if errors.Is(err, email.ErrDisabled) {
		c.logg.Warn(logCtx, "email delivery disabled; skipping")
		return nil
	}
	if err != nil {
		c.forget(ctx, logCtx, eventID)
		c.logg.Error(logCtx, "email send failed", err)
		return err
	}

	row := &models.Notification{
		ID:        notificationIDPrefix + uuid.NewString(),
		EventID:   eventID,
		OrderID:   orderID,
		Kind:      kind,
		Recipient: strings.Join(msg.To, ","),
		Subject:   msg.Subject,
	}
	if messageID != "" {
		row.ProviderMessageID = &messageID
	}
	if _, err := c.repo.Create(ctx, row); err != nil {
		// The email is out; a failed log write must not resend it.
		c.logg.Error(logCtx, "failed to record delivery", err)
		return nil
	}
	c.logg.Info(c.logg.WithField(logCtx, "kind", kind), "order email sent")
	return nil
}

func (c *Consumer) compose(decoded interface{}) (email.Message, enums.NotificationType, string, bool, error) {
	switch evt := decoded.(type) {
	case payloads.OrderConfirmedEvent:
		if strings.TrimSpace(evt.Email) == "" {
			return email.Message{}, "", "", false, nil
		}
		msg, err := renderConfirmation(evt)
		return msg, enums.NotificationOrderConfirmation, evt.OrderID, err == nil, err
	case payloads.OrderStatusChangedEvent:
		if strings.TrimSpace(evt.Email) == "" {
			return email.Message{}, "", "", false, nil
		}
		kind := enums.NotificationOrderStatus
		switch evt.To {
		case enums.OrderStatusShipped:
			kind = enums.NotificationOrderShipped
		case enums.OrderStatusDelivered, enums.OrderStatusCancelled:
		default:
			return email.Message{}, "", "", false, nil
		}
		msg, err := renderStatus(evt)
		return msg, kind, evt.OrderID, err == nil, err
	default:
		return email.Message{}, "", "", false, nil
	}
}

func (c *Consumer) forget(ctx, logCtx context.Context, eventID string) {
	if c.idempotency == nil {
		return
	}
	if err := c.idempotency.Release(ctx, emailConsumer, eventID); err != nil {
		c.logg.Error(logCtx, "failed to clear idempotency key", err)
	}
}
