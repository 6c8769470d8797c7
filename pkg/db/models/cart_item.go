package models

import "time"

// CartItem is one line of a Cart; VariantID is unique within the cart.
type CartItem struct {
	ID           string    `gorm:"column:id;type:text;primaryKey"`
	CartID       string    `gorm:"column:cart_id;type:text;not null;uniqueIndex:ux_cart_items_cart_variant"`
	ProductID    string    `gorm:"column:product_id;type:text;not null"`
	VariantID    string    `gorm:"column:variant_id;type:text;not null;uniqueIndex:ux_cart_items_cart_variant"`
	Title        string    `gorm:"column:title;type:text;not null"`
	Quantity     int       `gorm:"column:quantity;not null"`
	UnitAmount   int64     `gorm:"column:unit_amount;not null"`
	CurrencyCode string    `gorm:"column:currency_code;type:text;not null"`
	Position     int       `gorm:"column:position;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartItem) TableName() string { return "cart_items" }
