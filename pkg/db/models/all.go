package models

// All lists every persisted model, parents before children.
func All() []any {
	return []any{
		&Cart{},
		&CartItem{},
		&PointBalance{},
		&PointLedgerEntry{},
		&Order{},
		&OrderItem{},
		&InventoryItem{},
		&OutboxEvent{},
		&Notification{},
	}
}
