package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the immutable record of a settled checkout. CartID is unique so a
// cart converts at most once.
type Order struct {
	ID              string                 `gorm:"column:id;type:text;primaryKey"`
	UserID          string                 `gorm:"column:user_id;type:text;not null;index:ix_orders_user_created,priority:1"`
	CartID          string                 `gorm:"column:cart_id;type:text;not null;uniqueIndex:ux_orders_cart_id"`
	TotalAmount     int64                  `gorm:"column:total_amount;not null"`
	CurrencyCode    string                 `gorm:"column:currency_code;type:text;not null"`
	Status          enums.OrderStatus      `gorm:"column:status;type:text;not null;default:'confirmed'"`
	PaymentMethod   enums.PaymentMethod    `gorm:"column:payment_method;type:text;not null"`
	TransactionID   string                 `gorm:"column:transaction_id;type:text;not null"`
	Customer        *types.Customer        `gorm:"column:customer;type:jsonb;serializer:json"`
	ShippingAddress *types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Tracking        *types.Tracking        `gorm:"column:tracking;type:jsonb;serializer:json"`
	Items           []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime;index:ix_orders_user_created,priority:2"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
