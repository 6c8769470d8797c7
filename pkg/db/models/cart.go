package models

import "time"

// Cart is a shopper's basket keyed by the cart cookie id.
type Cart struct {
	ID        string     `gorm:"column:id;type:text;primaryKey"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Cart) TableName() string { return "carts" }
