package models

import "time"

// InventoryItem tracks stocked and held counts per variant. Holds never
// exceed stock.
type InventoryItem struct {
	VariantID   string    `gorm:"column:variant_id;type:text;primaryKey"`
	ProductID   string    `gorm:"column:product_id;type:text;not null"`
	SKU         string    `gorm:"column:sku;type:text"`
	StockedQty  int       `gorm:"column:stocked_qty;not null;default:0"`
	ReservedQty int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string { return "inventory_items" }
