package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PointBalance is the single balance row per user. Balance never drops below zero.
type PointBalance struct {
	UserID    string    `gorm:"column:user_id;type:text;primaryKey"`
	Balance   int64     `gorm:"column:balance;not null;default:0;check:chk_point_balances_non_negative,balance >= 0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PointBalance) TableName() string { return "point_balances" }

// PointLedgerEntry is the append-only audit trail of balance mutations.
type PointLedgerEntry struct {
	ID            string                `gorm:"column:id;type:text;primaryKey"`
	UserID        string                `gorm:"column:user_id;type:text;not null;index"`
	Type          enums.LedgerEntryType `gorm:"column:type;type:text;not null"`
	Amount        int64                 `gorm:"column:amount;not null"`
	BalanceAfter  int64                 `gorm:"column:balance_after;not null"`
	TransactionID string                `gorm:"column:transaction_id;type:text;not null"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (PointLedgerEntry) TableName() string { return "point_ledger_entries" }
