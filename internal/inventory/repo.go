package inventory

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists stock counts. Every mutation is a single guarded UPDATE
// so concurrent holds cannot oversell.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, variantID string) (*models.InventoryItem, error)
	InsertMissing(ctx context.Context, items []models.InventoryItem) (int64, error)
	Reserve(ctx context.Context, variantID string, qty int) (bool, error)
	Release(ctx context.Context, variantID string, qty int) error
	ConsumeHeld(ctx context.Context, variantID string, qty int) (bool, error)
	ConsumeAvailable(ctx context.Context, variantID string, qty int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Find returns nil without error for untracked variants.
func (r *repository) Find(ctx context.Context, variantID string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("variant_id = ?", variantID).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) InsertMissing(ctx context.Context, items []models.InventoryItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "variant_id"}}, DoNothing: true}).
		Create(&items)
	return res.RowsAffected, res.Error
}

func (r *repository) Reserve(ctx context.Context, variantID string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("variant_id = ? AND stocked_qty - reserved_qty >= ?", variantID, qty).
		Update("reserved_qty", gorm.Expr("reserved_qty + ?", qty))
	return res.RowsAffected == 1, res.Error
}

// Release floors the held count at zero.
func (r *repository) Release(ctx context.Context, variantID string, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("variant_id = ?", variantID).
		Update("reserved_qty", gorm.Expr("CASE WHEN reserved_qty > ? THEN reserved_qty - ? ELSE 0 END", qty, qty)).
		Error
}

// ConsumeHeld ships qty units that were previously held.
func (r *repository) ConsumeHeld(ctx context.Context, variantID string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("variant_id = ? AND reserved_qty >= ? AND stocked_qty >= ?", variantID, qty, qty).
		Updates(map[string]any{
			"stocked_qty":  gorm.Expr("stocked_qty - ?", qty),
			"reserved_qty": gorm.Expr("reserved_qty - ?", qty),
		})
	return res.RowsAffected == 1, res.Error
}

// ConsumeAvailable ships qty units out of the unheld remainder.
func (r *repository) ConsumeAvailable(ctx context.Context, variantID string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("variant_id = ? AND stocked_qty - reserved_qty >= ?", variantID, qty).
		Update("stocked_qty", gorm.Expr("stocked_qty - ?", qty))
	return res.RowsAffected == 1, res.Error
}
