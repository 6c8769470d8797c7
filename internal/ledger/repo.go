package ledger

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for point balances and their audit trail.
// Balance mutations are single conditional statements so concurrent callers
// never observe or produce a negative balance.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBalance(ctx context.Context, userID string) (*models.PointBalance, error)
	EnsureAccount(ctx context.Context, userID string, opening int64) (bool, error)
	Increment(ctx context.Context, userID string, amount int64) (int64, error)
	DecrementIfSufficient(ctx context.Context, userID string, amount int64) (int64, bool, error)
	AppendEntry(ctx context.Context, entry *models.PointLedgerEntry) error
	ListEntries(ctx context.Context, userID string, limit int) ([]models.PointLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindBalance returns nil without error when the user has no account.
func (r *repository) FindBalance(ctx context.Context, userID string) (*models.PointBalance, error) {
	var row models.PointBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) EnsureAccount(ctx context.Context, userID string, opening int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&models.PointBalance{UserID: userID, Balance: opening})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Increment(ctx context.Context, userID string, amount int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PointBalance{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return r.readBalance(ctx, userID)
}

// DecrementIfSufficient reports ok=false and leaves the row untouched when the
// balance is below amount or the account does not exist.
func (r *repository) DecrementIfSufficient(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PointBalance{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	balance, err := r.readBalance(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

func (r *repository) AppendEntry(ctx context.Context, entry *models.PointLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListEntries(ctx context.Context, userID string, limit int) ([]models.PointLedgerEntry, error) {
	var entries []models.PointLedgerEntry
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) readBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.WithContext(ctx).
		Model(&models.PointBalance{}).
		Where("user_id = ?", userID).
		Select("balance").
		Scan(&balance).Error
	return balance, err
}
