package cart

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"gorm.io/gorm"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	Find(ctx context.Context, id string) (*models.Cart, error)
	Create(ctx context.Context, id string) error
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID string, qty int) error
	DeleteItem(ctx context.Context, itemID string) error
	Delete(ctx context.Context, id string) error
	Touch(ctx context.Context, id string) error
	HasOrder(ctx context.Context, id string) (bool, error)
	ListStale(ctx context.Context, idleBefore time.Time, limit int) ([]string, error)
}

type stockHolder interface {
	Reserve(ctx context.Context, tx *gorm.DB, variantID string, qty int) error
	Release(ctx context.Context, tx *gorm.DB, variantID string, qty int) error
}
