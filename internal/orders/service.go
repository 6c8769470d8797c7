package orders

import (
	"context"
	"fmt"
	"strings"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	orderIDPrefix     = "order_"
	orderItemIDPrefix = "order_item_"
)

// Service owns order records after checkout.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*Order, error)
	Get(ctx context.Context, orderID string) (*Order, error)
	GetForUser(ctx context.Context, userID, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	SetStatus(ctx context.Context, orderID string, status enums.OrderStatus) (*Order, error)
	MergeTracking(ctx context.Context, orderID string, patch types.TrackingPatch) (*Order, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	ledger refunder
	events emitter
}

// NewService wires the order service.
func NewService(repo Repository, tx txRunner, ledger refunder, events emitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, ledger: ledger, events: events}, nil
}

// Create persists a confirmed order inside the caller's transaction. A cart
// converts at most once.
func (s *service) Create(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*Order, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(input.CartID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "order has no items")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	order := &models.Order{
		ID:              orderIDPrefix + uuid.NewString(),
		UserID:          input.UserID,
		CartID:          input.CartID,
		CurrencyCode:    input.CurrencyCode,
		Status:          enums.OrderStatusConfirmed,
		PaymentMethod:   input.PaymentMethod,
		TransactionID:   input.TransactionID,
		Customer:        input.Customer,
		ShippingAddress: input.ShippingAddress,
		Items:           make([]models.OrderItem, 0, len(input.Lines)),
	}
	for i, line := range input.Lines {
		lineTotal, err := line.Price.Times(line.Quantity)
		if err == nil {
			order.TotalAmount, err = types.AddAmount(order.TotalAmount, lineTotal.Amount)
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order total out of range").
				WithDetails(map[string]any{"line": i})
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:           orderItemIDPrefix + uuid.NewString(),
			OrderID:      order.ID,
			ProductID:    line.ProductID,
			VariantID:    line.VariantID,
			Title:        line.Title,
			Quantity:     line.Quantity,
			UnitAmount:   line.Price.Amount,
			CurrencyCode: line.Price.Currency.Code,
			Position:     i,
		})
	}

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		if dbpkg.IsUniqueViolation(err, "cart_id") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart already checked out").
				WithDetails(map[string]any{"cart_id": input.CartID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	return toDTO(order), nil
}

func (s *service) Get(ctx context.Context, orderID string) (*Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	return toDTO(order), nil
}

// GetForUser hides orders owned by someone else behind NotFound.
func (s *service) GetForUser(ctx context.Context, userID, orderID string) (*Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return toDTO(order), nil
}

func (s *service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	rows, err := s.repo.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := make([]Order, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i]))
	}
	return out, nil
}

// SetStatus applies an admin transition. Cancelling a points order refunds the
// settled amount in the same transaction.
func (s *service) SetStatus(ctx context.Context, orderID string, status enums.OrderStatus) (*Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": status})
	}
	current, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return toDTO(current), nil
	}
	if !CanTransition(current.Status, status) {
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "illegal status transition").
			WithDetails(map[string]any{"from": current.Status, "to": status})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, orderID, current.Status, status)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
		}
		if status == enums.OrderStatusCancelled && current.PaymentMethod == enums.PaymentMethodPoints && current.TotalAmount > 0 {
			if _, err := s.ledger.Refund(ctx, tx, current.UserID, current.TotalAmount, current.TransactionID); err != nil {
				return err
			}
		}
		return s.emitStatusChanged(ctx, tx, current, status, current.Tracking)
	})
	if err != nil {
		return nil, wrapInternal(err, "update order status")
	}
	return s.Get(ctx, orderID)
}

// MergeTracking overlays the patch on the stored tracking. Shipping and
// delivery timestamps advance the status forward; terminal orders keep theirs.
func (s *service) MergeTracking(ctx context.Context, orderID string, patch types.TrackingPatch) (*Order, error) {
	if patch.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking patch is empty")
	}
	current, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}

	var base types.Tracking
	if current.Tracking != nil {
		base = *current.Tracking
	}
	merged := base.Merge(patch)

	next := current.Status
	if merged.ShippedAt != nil {
		next = advanceTo(next, enums.OrderStatusShipped)
	}
	if merged.DeliveredAt != nil {
		next = advanceTo(next, enums.OrderStatusDelivered)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateTracking(ctx, orderID, current.Status, next, merged)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
		}
		if next == current.Status {
			return nil
		}
		return s.emitStatusChanged(ctx, tx, current, next, &merged)
	})
	if err != nil {
		return nil, wrapInternal(err, "merge tracking")
	}
	return s.Get(ctx, orderID)
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, tracking *types.Tracking) error {
	evt := payloads.OrderStatusChangedEvent{
		OrderID:  order.ID,
		From:     order.Status,
		To:       to,
		Tracking: tracking,
	}
	if order.Customer != nil {
		evt.Email = order.Customer.Email
	}
	return s.events.Emit(ctx, tx, outbox.Event{
		Type:          enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data:          evt,
	})
}

func (s *service) load(ctx context.Context, repo Repository, orderID string) (*models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func wrapInternal(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
