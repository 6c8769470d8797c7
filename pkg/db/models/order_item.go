package models

// OrderItem is a snapshot of a cart line taken at checkout.
type OrderItem struct {
	ID           string `gorm:"column:id;type:text;primaryKey"`
	OrderID      string `gorm:"column:order_id;type:text;not null;index"`
	ProductID    string `gorm:"column:product_id;type:text;not null"`
	VariantID    string `gorm:"column:variant_id;type:text;not null"`
	Title        string `gorm:"column:title;type:text;not null"`
	Quantity     int    `gorm:"column:quantity;not null"`
	UnitAmount   int64  `gorm:"column:unit_amount;not null"`
	CurrencyCode string `gorm:"column:currency_code;type:text;not null"`
	Position     int    `gorm:"column:position;not null;default:0"`
}

func (OrderItem) TableName() string { return "order_items" }
