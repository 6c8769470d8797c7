package payloads

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// OrderLine is the per-item snapshot carried by order events.
type OrderLine struct {
	Title        string `json:"title"`
	Quantity     int    `json:"quantity"`
	UnitAmount   int64  `json:"unit_amount"`
	CurrencyCode string `json:"currency_code"`
}

// OrderConfirmedEvent is emitted in the checkout transaction.
type OrderConfirmedEvent struct {
	OrderID         string                 `json:"order_id"`
	Email           string                 `json:"email"`
	CustomerName    string                 `json:"customer_name,omitempty"`
	Total           int64                  `json:"total"`
	CurrencyCode    string                 `json:"currency_code"`
	PaymentMethod   enums.PaymentMethod    `json:"payment_method"`
	Items           []OrderLine            `json:"items"`
	ShippingAddress *types.ShippingAddress `json:"shipping_address,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// OrderStatusChangedEvent is emitted whenever an admin moves an order forward
// or cancels it.
type OrderStatusChangedEvent struct {
	OrderID  string            `json:"order_id"`
	Email    string            `json:"email,omitempty"`
	From     enums.OrderStatus `json:"from"`
	To       enums.OrderStatus `json:"to"`
	Tracking *types.Tracking   `json:"tracking,omitempty"`
}
