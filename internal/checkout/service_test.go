package checkout

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/locks"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	conn      *gorm.DB
	checkout  Service
	carts     cart.Service
	ledger    ledger.Service
	orders    orders.Service
	inventory inventory.Service
	outbox    *outbox.Repository
}

type fixtureOption func(*ServiceParams)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{NowFunc: db.NowUTC})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))

	client := db.Wrap(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	inv, err := inventory.NewService(inventory.NewRepository(conn))
	require.NoError(t, err)
	_, err = inv.Initialize(context.Background(), []inventory.Record{
		{VariantID: "var_pin", ProductID: "prod_pin", Stocked: 20},
		{VariantID: "var_hat", ProductID: "prod_hat", Stocked: 20},
		{VariantID: "var_tee", ProductID: "prod_tee", Stocked: 20},
		{VariantID: "var_mug", ProductID: "prod_mug", Stocked: 20},
	})
	require.NoError(t, err)

	carts, err := cart.NewService(cart.NewRepository(conn), client, inv, locks.NewLocalLocker())
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(client, ledger.NewRepository(conn))
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	events := outbox.NewService(outboxRepo, nil)
	ordersSvc, err := orders.NewService(orders.NewRepository(conn), client, ledgerSvc, events)
	require.NoError(t, err)

	params := ServiceParams{
		Logger:    logg,
		DB:        client,
		Carts:     carts,
		Ledger:    ledgerSvc,
		Orders:    ordersSvc,
		Inventory: inv,
		Outbox:    events,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	return &fixture{conn: conn, checkout: svc, carts: carts, ledger: ledgerSvc, orders: ordersSvc, inventory: inv, outbox: outboxRepo}
}

func (f *fixture) add(t *testing.T, cartID, variantID string, price types.Money, qty int) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), cartID, cart.AddItemInput{
		ProductID: "prod_" + strings.TrimPrefix(variantID, "var_"),
		VariantID: variantID,
		Title:     variantID,
		Price:     price,
		Quantity:  qty,
	})
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, variantID string) *inventory.Record {
	t.Helper()
	rec, err := f.inventory.Get(context.Background(), variantID)
	require.NoError(t, err)
	return rec
}

func dust(amount int64) types.Money {
	return types.Money{Amount: amount, Currency: types.Points()}
}

func usd(amount int64) types.Money {
	return types.Money{Amount: amount, Currency: types.MustCurrency("usd")}
}

var customer = &types.Customer{Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}

func TestPointsCheckoutSettlesAndCreatesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.Credit(ctx, "user_1", 5000)
	require.NoError(t, err)
	f.add(t, "cart_1", "var_pin", dust(500), 2)
	f.add(t, "cart_1", "var_hat", dust(1500), 1)

	res, err := f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1", CartID: "cart_1", Customer: customer})
	require.NoError(t, err)

	require.NotNil(t, res.Order)
	assert.Equal(t, enums.OrderStatusConfirmed, res.Order.Status)
	assert.Equal(t, enums.PaymentMethodPoints, res.Order.PaymentMethod)
	assert.True(t, strings.HasPrefix(res.Order.TransactionID, "dust_tx_"))
	assert.Equal(t, int64(2500), res.Order.Total)
	assert.Equal(t, "dust", res.Order.CurrencyCode)
	require.Len(t, res.Order.Items, 2)
	require.NotNil(t, res.Balance)
	assert.Equal(t, int64(2500), *res.Balance)

	balance, err := f.ledger.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), balance)

	pin := f.stock(t, "var_pin")
	assert.Equal(t, 18, pin.Stocked)
	assert.Equal(t, 0, pin.Reserved)

	_, err = f.carts.Get(ctx, "cart_1")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	events, err := f.outbox.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderConfirmed, events[0].EventType)
	assert.Equal(t, res.Order.ID, events[0].AggregateID)

	list, err := f.orders.ListByUser(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestPointsCheckoutInsufficientBalanceMutatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.Credit(ctx, "user_1", 1000)
	require.NoError(t, err)
	f.add(t, "cart_1", "var_hat", dust(1500), 1)

	_, err = f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1", CartID: "cart_1"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientBalance, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Equal(t, int64(1000), details["balance"])
	assert.Equal(t, int64(1500), details["required"])

	balance, err := f.ledger.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	c, err := f.carts.Get(ctx, "cart_1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)
	assert.Equal(t, 1, f.stock(t, "var_hat").Reserved)

	list, err := f.orders.ListByUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFiatCheckoutAlwaysSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "cart_1", "var_tee", usd(2500), 2)

	res, err := f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1", CartID: "cart_1", PaymentMethod: "fiat"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodFiat, res.Order.PaymentMethod)
	assert.True(t, strings.HasPrefix(res.Order.TransactionID, "fiat_tx_"))
	assert.Equal(t, int64(5000), res.Order.Total)
	assert.Nil(t, res.Balance)

	events, err := f.outbox.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFiatCartRejectsPointsMethod(t *testing.T) {
	f := newFixture(t)
	f.add(t, "cart_1", "var_tee", usd(2500), 1)

	_, err := f.checkout.Execute(context.Background(), CheckoutInput{UserID: "user_1", CartID: "cart_1", PaymentMethod: "points"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestEmptyOrMissingCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1", CartID: "cart_missing"})
	assert.Equal(t, pkgerrors.CodeEmptyCart, pkgerrors.As(err).Code())

	_, err = f.carts.GetOrCreate(ctx, "cart_empty")
	require.NoError(t, err)
	_, err = f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1", CartID: "cart_empty"})
	assert.Equal(t, pkgerrors.CodeEmptyCart, pkgerrors.As(err).Code())

	_, err = f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1"})
	assert.Equal(t, pkgerrors.CodeEmptyCart, pkgerrors.As(err).Code())
}

func TestMixedCurrencyCartRejected(t *testing.T) {
	f := newFixture(t)
	f.add(t, "cart_1", "var_tee", usd(2500), 1)
	f.add(t, "cart_1", "var_mug", types.Money{Amount: 900, Currency: types.MustCurrency("eur")}, 1)

	_, err := f.checkout.Execute(context.Background(), CheckoutInput{UserID: "user_1", CartID: "cart_1"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	assert.Equal(t, pkgerrors.CodeMixedCurrency, typed.Code())
	assert.Equal(t, []string{"eur", "usd"}, typed.Details().(map[string]any)["currencies"])
}

func TestConcurrentCheckoutOfSameCartConvertsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.Credit(ctx, "user_1", 10000)
	require.NoError(t, err)
	f.add(t, "cart_1", "var_pin", dust(500), 2)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1", CartID: "cart_1"}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	balance, err := f.ledger.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), balance)
}

func TestConcurrentCheckoutsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.Credit(ctx, "user_1", 1000)
	require.NoError(t, err)
	f.add(t, "cart_a", "var_pin", dust(600), 1)
	f.add(t, "cart_b", "var_hat", dust(600), 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, cartID := range []string{"cart_a", "cart_b"} {
		wg.Add(1)
		go func(i int, cartID string) {
			defer wg.Done()
			_, errs[i] = f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1", CartID: cartID})
		}(i, cartID)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.Equal(t, pkgerrors.CodeInsufficientBalance, pkgerrors.As(err).Code())
		}
	}
	assert.Equal(t, 1, failed)

	balance, err := f.ledger.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)
}

type stalledOrders struct{}

func (stalledOrders) Create(ctx context.Context, _ *gorm.DB, _ orders.CreateOrderInput) (*orders.Order, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDeadlineDuringSettlementReportsUnknownOutcome(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) {
		p.Orders = stalledOrders{}
		p.Timeout = 50 * time.Millisecond
	})
	ctx := context.Background()
	_, err := f.ledger.Credit(ctx, "user_1", 1000)
	require.NoError(t, err)
	f.add(t, "cart_1", "var_pin", dust(500), 1)

	_, err = f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1", CartID: "cart_1"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeCheckoutOutcomeUnknown, pkgerrors.As(err).Code())

	balance, err := f.ledger.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

// fixedCarts serves a prebuilt cart, standing in for rows the cart service
// itself would refuse to write.
type fixedCarts struct {
	cart     *cart.Cart
	unlocked int
	cleared  []string
}

func (f *fixedCarts) Get(context.Context, string) (*cart.Cart, error) {
	return f.cart, nil
}

func (f *fixedCarts) Lock(context.Context, string) (locks.Unlock, error) {
	return func(context.Context) error {
		f.unlocked++
		return nil
	}, nil
}

func (f *fixedCarts) Clear(_ context.Context, cartID string) error {
	f.cleared = append(f.cleared, cartID)
	return nil
}

func TestExecuteRejectsCartMixingFamiliesUnderPointsCode(t *testing.T) {
	stub := &fixedCarts{cart: &cart.Cart{
		ID: "cart_bad",
		Items: []cart.Item{
			{ID: "item_1", VariantID: "var_pin", Quantity: 1, Price: dust(500)},
			{ID: "item_2", VariantID: "var_tee", Quantity: 1, Price: usd(2500)},
		},
		Total:        3000,
		CurrencyCode: types.PointsCode,
	}}
	f := newFixture(t, func(p *ServiceParams) { p.Carts = stub })
	ctx := context.Background()
	_, err := f.ledger.Credit(ctx, "user_1", 5000)
	require.NoError(t, err)

	_, err = f.checkout.Execute(ctx, CheckoutInput{UserID: "user_1", CartID: "cart_bad", Customer: customer})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInvalidComposition, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Equal(t, enums.PaymentMethodPoints, details["payment_method"])

	balance, err := f.ledger.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
	var orderCount int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
	assert.Empty(t, stub.cleared)
	assert.Equal(t, 1, stub.unlocked)
}
