package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/locks"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	cartIDPrefix = "cart_"
	itemIDPrefix = "item_"

	// MaxQuantity caps a single line.
	MaxQuantity = 99

	lockWait = 5 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart persistence operations. Mutations run under the cart's
// lock; Clear expects the caller to hold it already.
type Service interface {
	GetOrCreate(ctx context.Context, cartID string) (*Cart, error)
	Get(ctx context.Context, cartID string) (*Cart, error)
	AddItem(ctx context.Context, cartID string, input AddItemInput) (*Cart, error)
	UpdateQuantity(ctx context.Context, cartID, itemID string, qty int) (*Cart, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (*Cart, error)
	Clear(ctx context.Context, cartID string) error
	Abandon(ctx context.Context, cartID string) error
	ListStale(ctx context.Context, idleBefore time.Time, limit int) ([]string, error)
	Lock(ctx context.Context, cartID string) (locks.Unlock, error)
}

// AddItemInput describes a catalog variant being placed in the cart.
type AddItemInput struct {
	ProductID string
	VariantID string
	Title     string
	Price     types.Money
	Quantity  int
}

type service struct {
	repo      CartRepository
	tx        txRunner
	inventory stockHolder
	locker    locks.Locker
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, inventory stockHolder, locker locks.Locker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	return &service{repo: repo, tx: tx, inventory: inventory, locker: locker}, nil
}

// LockKey names the mutex shared by cart mutations and checkout.
func LockKey(cartID string) string {
	return "cart:" + cartID
}

func (s *service) Lock(ctx context.Context, cartID string) (locks.Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	unlock, err := s.locker.Lock(lockCtx, LockKey(cartID))
	if err != nil {
		if errors.Is(err, locks.ErrNotAcquired) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart is busy")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
	}
	return unlock, nil
}

// GetOrCreate loads the cart or starts an empty one. An id that already
// converted to an order is never reused; callers get a fresh id and must
// reissue the cookie.
func (s *service) GetOrCreate(ctx context.Context, cartID string) (*Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID != "" {
		converted, err := s.repo.HasOrder(ctx, cartID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		if converted {
			cartID = ""
		}
	}
	if cartID == "" {
		cartID = cartIDPrefix + uuid.NewString()
	}
	record, err := s.repo.Find(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if record == nil {
		if err := s.repo.Create(ctx, cartID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
		}
		if record, err = s.repo.Find(ctx, cartID); err != nil || record == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
	}
	return view(record)
}

func (s *service) Get(ctx context.Context, cartID string) (*Cart, error) {
	record, err := s.load(ctx, s.repo, cartID)
	if err != nil {
		return nil, err
	}
	return view(record)
}

func view(record *models.Cart) (*Cart, error) {
	out, err := fromModel(record)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "price cart")
	}
	return out, nil
}

func (s *service) AddItem(ctx context.Context, cartID string, input AddItemInput) (*Cart, error) {
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	if err := validateAdd(input); err != nil {
		return nil, err
	}
	current, err := s.GetOrCreate(ctx, cartID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, current.ID, func(tx *gorm.DB, repo CartRepository, record *models.Cart) error {
		for _, item := range record.Items {
			if familyOf(item) != input.Price.Currency.Family {
				return pkgerrors.New(pkgerrors.CodeCurrencyConflict, "item currency conflicts with cart").
					WithDetails(map[string]any{
						"cart_currency": item.CurrencyCode,
						"item_currency": input.Price.Currency.Code,
					})
			}
		}

		projected := slices.Clone(record.Items)
		merge := -1
		for i, item := range projected {
			if item.VariantID != input.VariantID {
				continue
			}
			merge = i
			projected[i].Quantity += input.Quantity
			if projected[i].Quantity > MaxQuantity {
				return quantityError(projected[i].Quantity)
			}
			break
		}
		if merge < 0 {
			projected = append(projected, models.CartItem{UnitAmount: input.Price.Amount, Quantity: input.Quantity})
		}
		if err := checkTotal(projected); err != nil {
			return err
		}

		if err := s.inventory.Reserve(ctx, tx, input.VariantID, input.Quantity); err != nil {
			return err
		}
		if merge >= 0 {
			return repo.UpdateItemQuantity(ctx, projected[merge].ID, projected[merge].Quantity)
		}

		return repo.CreateItem(ctx, &models.CartItem{
			ID:           itemIDPrefix + uuid.NewString(),
			CartID:       record.ID,
			ProductID:    input.ProductID,
			VariantID:    input.VariantID,
			Title:        input.Title,
			Quantity:     input.Quantity,
			UnitAmount:   input.Price.Amount,
			CurrencyCode: input.Price.Currency.Code,
			Position:     nextPosition(record.Items),
		})
	})
}

// UpdateQuantity treats qty <= 0 as removal and ignores unknown items.
func (s *service) UpdateQuantity(ctx context.Context, cartID, itemID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, cartID, itemID)
	}
	if qty > MaxQuantity {
		return nil, quantityError(qty)
	}
	return s.mutate(ctx, cartID, func(tx *gorm.DB, repo CartRepository, record *models.Cart) error {
		item := findItem(record, itemID)
		if item == nil || item.Quantity == qty {
			return nil
		}
		projected := slices.Clone(record.Items)
		for i := range projected {
			if projected[i].ID == itemID {
				projected[i].Quantity = qty
			}
		}
		if err := checkTotal(projected); err != nil {
			return err
		}
		delta := qty - item.Quantity
		var err error
		if delta > 0 {
			err = s.inventory.Reserve(ctx, tx, item.VariantID, delta)
		} else {
			err = s.inventory.Release(ctx, tx, item.VariantID, -delta)
		}
		if err != nil {
			return err
		}
		return repo.UpdateItemQuantity(ctx, item.ID, qty)
	})
}

func (s *service) RemoveItem(ctx context.Context, cartID, itemID string) (*Cart, error) {
	return s.mutate(ctx, cartID, func(tx *gorm.DB, repo CartRepository, record *models.Cart) error {
		item := findItem(record, itemID)
		if item == nil {
			return nil
		}
		if err := s.inventory.Release(ctx, tx, item.VariantID, item.Quantity); err != nil {
			return err
		}
		return repo.DeleteItem(ctx, item.ID)
	})
}

// Clear drops a converted cart. Holds were consumed by fulfillment, so nothing
// is released.
func (s *service) Clear(ctx context.Context, cartID string) error {
	if err := s.repo.Delete(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return nil
}

// Abandon releases the cart's holds and deletes it. Carts that already became
// an order are deleted without releasing.
func (s *service) Abandon(ctx context.Context, cartID string) error {
	unlock, err := s.Lock(ctx, cartID)
	if err != nil {
		return err
	}
	defer func() { _ = unlock(context.Background()) }()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.Find(ctx, cartID)
		if err != nil || record == nil {
			return err
		}
		converted, err := repo.HasOrder(ctx, cartID)
		if err != nil {
			return err
		}
		if !converted {
			for _, item := range record.Items {
				if err := s.inventory.Release(ctx, tx, item.VariantID, item.Quantity); err != nil {
					return err
				}
			}
		}
		return repo.Delete(ctx, cartID)
	})
	if err != nil {
		return wrapInternal(err, "abandon cart")
	}
	return nil
}

func (s *service) ListStale(ctx context.Context, idleBefore time.Time, limit int) ([]string, error) {
	ids, err := s.repo.ListStale(ctx, idleBefore, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale carts")
	}
	return ids, nil
}

// mutate applies fn to the locked cart inside a transaction and returns the
// reloaded cart.
func (s *service) mutate(ctx context.Context, cartID string, fn func(tx *gorm.DB, repo CartRepository, record *models.Cart) error) (*Cart, error) {
	unlock, err := s.Lock(ctx, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock(context.Background()) }()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := s.load(ctx, repo, cartID)
		if err != nil {
			return err
		}
		if err := fn(tx, repo, record); err != nil {
			return err
		}
		return repo.Touch(ctx, cartID)
	})
	if err != nil {
		return nil, wrapInternal(err, "update cart")
	}
	return s.Get(ctx, cartID)
}

func (s *service) load(ctx context.Context, repo CartRepository, cartID string) (*models.Cart, error) {
	if strings.TrimSpace(cartID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	record, err := repo.Find(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return record, nil
}

func validateAdd(input AddItemInput) error {
	if strings.TrimSpace(input.VariantID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required")
	}
	if input.Quantity < 1 || input.Quantity > MaxQuantity {
		return quantityError(input.Quantity)
	}
	if input.Price.Currency.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price currency is required")
	}
	if input.Price.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.Price.Amount > types.MaxAmount {
		return pkgerrors.New(pkgerrors.CodeValidation, "price exceeds maximum").
			WithDetails(map[string]any{"max_amount": types.MaxAmount})
	}
	return nil
}

func checkTotal(items []models.CartItem) error {
	if _, err := totalOf(items); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart total exceeds maximum")
	}
	return nil
}

func quantityError(qty int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", MaxQuantity)).
		WithDetails(map[string]any{"quantity": qty})
}

func wrapInternal(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}

func findItem(record *models.Cart, itemID string) *models.CartItem {
	for i := range record.Items {
		if record.Items[i].ID == itemID {
			return &record.Items[i]
		}
	}
	return nil
}

func nextPosition(items []models.CartItem) int {
	next := 0
	for _, item := range items {
		if item.Position >= next {
			next = item.Position + 1
		}
	}
	return next
}

// Currencies lists the distinct currency codes of the cart's lines.
func (c Cart) Currencies() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 1)
	for _, item := range c.Items {
		code := item.Price.Currency.Code
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
