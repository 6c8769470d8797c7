package orders

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the API view of a placed order.
type Order struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	CartID          string                 `json:"cart_id"`
	Items           []Item                 `json:"items"`
	Total           int64                  `json:"total"`
	CurrencyCode    string                 `json:"currency_code"`
	Status          enums.OrderStatus      `json:"status"`
	PaymentMethod   enums.PaymentMethod    `json:"payment_method"`
	TransactionID   string                 `json:"transaction_id"`
	Customer        *types.Customer        `json:"customer,omitempty"`
	ShippingAddress *types.ShippingAddress `json:"shipping_address,omitempty"`
	Tracking        *types.Tracking        `json:"tracking,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type Item struct {
	ID        string      `json:"id"`
	ProductID string      `json:"product_id"`
	VariantID string      `json:"variant_id"`
	Title     string      `json:"title"`
	Quantity  int         `json:"quantity"`
	Price     types.Money `json:"price"`
}

// LineInput is a cart line copied into the order.
type LineInput struct {
	ProductID string
	VariantID string
	Title     string
	Quantity  int
	Price     types.Money
}

// CreateOrderInput is assembled by checkout once payment succeeded.
type CreateOrderInput struct {
	UserID          string
	CartID          string
	Lines           []LineInput
	CurrencyCode    string
	PaymentMethod   enums.PaymentMethod
	TransactionID   string
	Customer        *types.Customer
	ShippingAddress *types.ShippingAddress
}

func toDTO(m *models.Order) *Order {
	out := &Order{
		ID:              m.ID,
		UserID:          m.UserID,
		CartID:          m.CartID,
		Items:           make([]Item, 0, len(m.Items)),
		Total:           m.TotalAmount,
		CurrencyCode:    m.CurrencyCode,
		Status:          m.Status,
		PaymentMethod:   m.PaymentMethod,
		TransactionID:   m.TransactionID,
		Customer:        m.Customer,
		ShippingAddress: m.ShippingAddress,
		Tracking:        m.Tracking,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	for _, item := range m.Items {
		currency, err := types.ParseCurrency(item.CurrencyCode)
		if err != nil {
			currency = types.Currency{Family: enums.CurrencyFamilyFiat, Code: item.CurrencyCode}
		}
		out.Items = append(out.Items, Item{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			Price:     types.Money{Amount: item.UnitAmount, Currency: currency},
		})
	}
	return out
}
