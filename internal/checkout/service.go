package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/locks"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	fiatTxPrefix   = "fiat_tx_"
	defaultTimeout = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartStore interface {
	Get(ctx context.Context, cartID string) (*cart.Cart, error)
	Lock(ctx context.Context, cartID string) (locks.Unlock, error)
	Clear(ctx context.Context, cartID string) error
}

type pointsLedger interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Settle(ctx context.Context, tx *gorm.DB, userID string, amount int64) (*ledger.Settlement, error)
}

type orderCreator interface {
	Create(ctx context.Context, tx *gorm.DB, input orders.CreateOrderInput) (*orders.Order, error)
}

type stockFulfiller interface {
	Fulfill(ctx context.Context, tx *gorm.DB, variantID string, qty int) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, input CheckoutInput) (*Result, error)
}

// CheckoutInput captures what the shopper submitted.
type CheckoutInput struct {
	UserID          string
	CartID          string
	PaymentMethod   string
	Customer        *types.Customer
	ShippingAddress *types.ShippingAddress
}

// Result is returned on a successful checkout. Balance is set for points
// payments only.
type Result struct {
	Order   *orders.Order `json:"order"`
	Balance *int64        `json:"balance,omitempty"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Carts     cartStore
	Ledger    pointsLedger
	Orders    orderCreator
	Inventory stockFulfiller
	Outbox    outboxPublisher
	Metrics   *metrics.CheckoutMetrics
	Timeout   time.Duration
}

type service struct {
	logg      *logger.Logger
	tx        txRunner
	carts     cartStore
	ledger    pointsLedger
	orders    orderCreator
	inventory stockFulfiller
	outbox    outboxPublisher
	metrics   *metrics.CheckoutMetrics
	timeout   time.Duration
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &service{
		logg:      params.Logger,
		tx:        params.DB,
		carts:     params.Carts,
		ledger:    params.Ledger,
		orders:    params.Orders,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		timeout:   timeout,
	}, nil
}

// Execute converts the cart into an order. The cart lock is held for the whole
// run so concurrent edits and duplicate submits serialize behind it.
func (s *service) Execute(ctx context.Context, input CheckoutInput) (result *Result, err error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if strings.TrimSpace(input.CartID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	started := time.Now()
	var method enums.PaymentMethod
	defer func() {
		outcome := ""
		if err != nil {
			outcome = string(pkgerrors.CodeOf(err))
		}
		s.metrics.Observe(string(method), outcome, time.Since(started))
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = s.logg.WithCartID(ctx, input.CartID)

	unlock, err := s.carts.Lock(ctx, input.CartID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := unlock(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Warn(ctx, "release cart lock: "+relErr.Error())
		}
	}()

	current, err := s.loadCart(ctx, input.CartID)
	if err != nil {
		return nil, err
	}
	if err := pkgcheckout.ValidateCurrency(current.CurrencyCode, current.Currencies()); err != nil {
		return nil, err
	}

	cartCurrency, err := types.ParseCurrency(current.CurrencyCode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cart currency")
	}
	method, err = pkgcheckout.ResolvePaymentMethod(cartCurrency, lineCurrencies(current), input.PaymentMethod)
	if err != nil {
		return nil, err
	}

	if method == enums.PaymentMethodPoints {
		balance, err := s.ledger.GetBalance(ctx, input.UserID)
		if err != nil {
			return nil, err
		}
		if balance < current.Total {
			return nil, ledger.InsufficientBalance(balance, current.Total)
		}
	}

	var (
		order   *orders.Order
		balance *int64
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txID := fiatTxPrefix + uuid.NewString()
		if method == enums.PaymentMethodPoints {
			settlement, err := s.ledger.Settle(ctx, tx, input.UserID, current.Total)
			if err != nil {
				return err
			}
			txID = settlement.TransactionID
			balance = &settlement.Balance
		}

		created, err := s.orders.Create(ctx, tx, orders.CreateOrderInput{
			UserID:          input.UserID,
			CartID:          current.ID,
			Lines:           orderLines(current),
			CurrencyCode:    current.CurrencyCode,
			PaymentMethod:   method,
			TransactionID:   txID,
			Customer:        input.Customer,
			ShippingAddress: input.ShippingAddress,
		})
		if err != nil {
			return err
		}

		for _, item := range current.Items {
			if err := s.inventory.Fulfill(ctx, tx, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}

		if input.Customer != nil && strings.TrimSpace(input.Customer.Email) != "" {
			if err := s.outbox.Emit(ctx, tx, confirmedEvent(created, input)); err != nil {
				return err
			}
		}
		order = created
		return nil
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeCheckoutOutcomeUnknown, err, "checkout outcome unknown")
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settle checkout")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID)
	if clearErr := s.carts.Clear(context.WithoutCancel(ctx), current.ID); clearErr != nil {
		s.logg.Error(ctx, "clear converted cart", clearErr)
	}
	s.logg.Info(ctx, "checkout completed")

	return &Result{Order: order, Balance: balance}, nil
}

func (s *service) loadCart(ctx context.Context, cartID string) (*cart.Cart, error) {
	current, err := s.carts.Get(ctx, cartID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		return nil, err
	}
	if len(current.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	return current, nil
}

func lineCurrencies(c *cart.Cart) []pkgcheckout.LineCurrency {
	out := make([]pkgcheckout.LineCurrency, 0, len(c.Items))
	for _, item := range c.Items {
		out = append(out, pkgcheckout.LineCurrency{VariantID: item.VariantID, Currency: item.Price.Currency})
	}
	return out
}

func orderLines(c *cart.Cart) []orders.LineInput {
	out := make([]orders.LineInput, 0, len(c.Items))
	for _, item := range c.Items {
		out = append(out, orders.LineInput{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return out
}

func confirmedEvent(order *orders.Order, input CheckoutInput) outbox.Event {
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{
			Title:        item.Title,
			Quantity:     item.Quantity,
			UnitAmount:   item.Price.Amount,
			CurrencyCode: item.Price.Currency.Code,
		})
	}
	return outbox.Event{
		Type:          enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.Actor{UserID: input.UserID},
		Data: payloads.OrderConfirmedEvent{
			OrderID:         order.ID,
			Email:           input.Customer.Email,
			CustomerName:    input.Customer.FullName(),
			Total:           order.Total,
			CurrencyCode:    order.CurrencyCode,
			PaymentMethod:   order.PaymentMethod,
			Items:           lines,
			ShippingAddress: input.ShippingAddress,
			CreatedAt:       order.CreatedAt,
		},
	}
}
