package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Notification records an email sent for an order event. EventID is unique so
// a redelivered outbox event never produces a second row.
type Notification struct {
	ID                string                 `gorm:"column:id;type:text;primaryKey"`
	EventID           string                 `gorm:"column:event_id;type:text;not null;uniqueIndex:ux_notifications_event_id"`
	OrderID           string                 `gorm:"column:order_id;type:text;not null;index:ix_notifications_order_id"`
	Kind              enums.NotificationType `gorm:"column:kind;type:text;not null"`
	Recipient         string                 `gorm:"column:recipient;type:text;not null"`
	Subject           string                 `gorm:"column:subject;type:text;not null"`
	ProviderMessageID *string                `gorm:"column:provider_message_id;type:text"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }
