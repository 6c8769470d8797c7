package orders

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to enums.OrderStatus) (bool, error)
	UpdateTracking(ctx context.Context, id string, from, to enums.OrderStatus, tracking types.Tracking) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type refunder interface {
	Refund(ctx context.Context, tx *gorm.DB, userID string, amount int64, transactionID string) (int64, error)
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}
