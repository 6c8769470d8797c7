package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"gorm.io/gorm"
)

// Record is the public view of a variant's stock.
type Record struct {
	VariantID string `json:"variant_id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku,omitempty"`
	Stocked   int    `json:"stocked_quantity"`
	Reserved  int    `json:"reserved_quantity"`
	Available int    `json:"available_quantity"`
}

// Service is the only mutator of stock counts. Methods taking a tx join the
// caller's transaction; a nil tx runs standalone.
type Service interface {
	Initialize(ctx context.Context, records []Record) (int64, error)
	Get(ctx context.Context, variantID string) (*Record, error)
	CheckAvailability(ctx context.Context, variantID string, qty int) (bool, error)
	Reserve(ctx context.Context, tx *gorm.DB, variantID string, qty int) error
	Release(ctx context.Context, tx *gorm.DB, variantID string, qty int) error
	Fulfill(ctx context.Context, tx *gorm.DB, variantID string, qty int) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

// Initialize creates records for variants not tracked yet; existing counts are
// left alone.
func (s *service) Initialize(ctx context.Context, records []Record) (int64, error) {
	items := make([]models.InventoryItem, 0, len(records))
	seen := map[string]struct{}{}
	for _, rec := range records {
		id := strings.TrimSpace(rec.VariantID)
		if id == "" {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
		}
		if rec.Stocked < 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "stocked quantity must not be negative").
				WithDetails(map[string]any{"variant_id": id})
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		items = append(items, models.InventoryItem{
			VariantID:  id,
			ProductID:  rec.ProductID,
			SKU:        rec.SKU,
			StockedQty: rec.Stocked,
		})
	}
	created, err := s.repo.InsertMissing(ctx, items)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "initialize inventory")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, variantID string) (*Record, error) {
	item, err := s.find(ctx, s.repo, variantID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
	}
	rec := toRecord(*item)
	return &rec, nil
}

// CheckAvailability reports false for untracked variants.
func (s *service) CheckAvailability(ctx context.Context, variantID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	item, err := s.find(ctx, s.repo, variantID)
	if err != nil || item == nil {
		return false, err
	}
	return item.StockedQty-item.ReservedQty >= qty, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, variantID string, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.Reserve(ctx, variantID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve inventory")
	}
	if ok {
		return nil
	}
	return s.outOfStock(ctx, repo, variantID, qty)
}

// Release is a no-op for untracked variants and never drives holds below zero.
func (s *service) Release(ctx context.Context, tx *gorm.DB, variantID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	if err := s.repo.WithTx(tx).Release(ctx, variantID, qty); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release inventory")
	}
	return nil
}

// Fulfill permanently removes qty units, consuming the cart's hold when one is
// present and the unheld remainder otherwise.
func (s *service) Fulfill(ctx context.Context, tx *gorm.DB, variantID string, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.ConsumeHeld(ctx, variantID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fulfill inventory")
	}
	if ok {
		return nil
	}
	ok, err = repo.ConsumeAvailable(ctx, variantID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fulfill inventory")
	}
	if ok {
		return nil
	}
	return s.outOfStock(ctx, repo, variantID, qty)
}

func (s *service) find(ctx context.Context, repo Repository, variantID string) (*models.InventoryItem, error) {
	if strings.TrimSpace(variantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	item, err := repo.Find(ctx, variantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory")
	}
	return item, nil
}

func (s *service) outOfStock(ctx context.Context, repo Repository, variantID string, qty int) error {
	available := 0
	if item, err := repo.Find(ctx, variantID); err == nil && item != nil {
		available = item.StockedQty - item.ReservedQty
	}
	return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").WithDetails(map[string]any{
		"variant_id": variantID,
		"requested":  qty,
		"available":  available,
	})
}

func toRecord(item models.InventoryItem) Record {
	return Record{
		VariantID: item.VariantID,
		ProductID: item.ProductID,
		SKU:       item.SKU,
		Stocked:   item.StockedQty,
		Reserved:  item.ReservedQty,
		Available: item.StockedQty - item.ReservedQty,
	}
}
