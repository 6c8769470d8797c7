package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Service exposes the delivery log to admins.
type Service interface {
	ListByOrder(ctx context.Context, orderID string) ([]Delivery, error)
}

// Delivery is one email sent for an order.
type Delivery struct {
	ID                string                 `json:"id"`
	EventID           string                 `json:"event_id"`
	Kind              enums.NotificationType `json:"kind"`
	Recipient         string                 `json:"recipient"`
	Subject           string                 `json:"subject"`
	ProviderMessageID string                 `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

type service struct {
	repo Repository
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID string) ([]Delivery, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	out := make([]Delivery, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDelivery(row))
	}
	return out, nil
}

func toDelivery(row models.Notification) Delivery {
	d := Delivery{
		ID:        row.ID,
		EventID:   row.EventID,
		Kind:      row.Kind,
		Recipient: row.Recipient,
		Subject:   row.Subject,
		CreatedAt: row.CreatedAt,
	}
	if row.ProviderMessageID != nil {
		d.ProviderMessageID = *row.ProviderMessageID
	}
	return d
}
