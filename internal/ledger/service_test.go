package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&models.PointBalance{}, &models.PointLedgerEntry{}))
	return conn
}

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := db.Wrap(newTestDB(t))
	svc, err := NewService(client, NewRepository(client.DB()))
	require.NoError(t, err)
	return svc, client
}

func TestGetBalanceDefaultsToZero(t *testing.T) {
	svc, _ := newTestService(t)
	balance, err := svc.GetBalance(context.Background(), "user_unknown")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestCreditCreatesAccountAndAccumulates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	balance, err := svc.Credit(ctx, "user_1", 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance)

	balance, err = svc.Credit(ctx, "user_1", 2500)
	require.NoError(t, err)
	assert.Equal(t, int64(12500), balance)

	history, err := svc.History(ctx, "user_1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, entry := range history {
		assert.Equal(t, enums.LedgerEntryCredit, entry.Type)
	}
}

func TestCreditRejectsNonPositive(t *testing.T) {
	svc, _ := newTestService(t)
	for _, amount := range []int64{0, -5} {
		_, err := svc.Credit(context.Background(), "user_1", amount)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Provision(ctx, "user_test_1", 50000)
	require.NoError(t, err)
	assert.True(t, created)

	_, err = svc.Credit(ctx, "user_test_1", 100)
	require.NoError(t, err)

	created, err = svc.Provision(ctx, "user_test_1", 50000)
	require.NoError(t, err)
	assert.False(t, created)

	balance, err := svc.GetBalance(ctx, "user_test_1")
	require.NoError(t, err)
	assert.Equal(t, int64(50100), balance)
}

func TestSettleDebitsAndRecordsTransaction(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, "user_1", 5000)
	require.NoError(t, err)

	var settlement *Settlement
	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		settlement, err = svc.Settle(ctx, tx, "user_1", 1500)
		return err
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(settlement.TransactionID, "dust_tx_"))
	assert.Equal(t, int64(3500), settlement.Balance)

	history, err := svc.History(ctx, "user_1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	var debit *models.PointLedgerEntry
	for i := range history {
		if history[i].Type == enums.LedgerEntryDebit {
			debit = &history[i]
		}
	}
	require.NotNil(t, debit)
	assert.Equal(t, settlement.TransactionID, debit.TransactionID)
	assert.Equal(t, int64(3500), debit.BalanceAfter)
}

func TestSettleInsufficientLeavesBalanceUnchanged(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, "user_1", 1000)
	require.NoError(t, err)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := svc.Settle(ctx, tx, "user_1", 1500)
		return err
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientBalance, typed.Code())
	assert.Equal(t, map[string]any{"balance": int64(1000), "required": int64(1500)}, typed.Details())

	balance, err := svc.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestSettleRollsBackWithEnclosingTransaction(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, "user_1", 1000)
	require.NoError(t, err)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := svc.Settle(ctx, tx, "user_1", 400); err != nil {
			return err
		}
		return fmt.Errorf("order insert failed")
	})
	require.Error(t, err)

	balance, err := svc.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestConcurrentSettlesNeverOverdraw(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, "user_1", 1000)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.WithTx(ctx, func(tx *gorm.DB) error {
				_, err := svc.Settle(ctx, tx, "user_1", 300)
				return err
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	balance, err := svc.GetBalance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestRefundCreditsBack(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, "user_1", 1000)
	require.NoError(t, err)

	var balance int64
	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		settlement, err := svc.Settle(ctx, tx, "user_1", 600)
		if err != nil {
			return err
		}
		balance, err = svc.Refund(ctx, tx, "user_1", 600, settlement.TransactionID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	history, err := svc.History(ctx, "user_1", 0)
	require.NoError(t, err)
	types := map[enums.LedgerEntryType]int{}
	for _, entry := range history {
		types[entry.Type]++
	}
	assert.Equal(t, 1, types[enums.LedgerEntryRefund])
	assert.Equal(t, 1, types[enums.LedgerEntryDebit])
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(nil, NewRepository(nil))
	require.Error(t, err)
	_, err = NewService(db.Wrap(nil), nil)
	require.Error(t, err)
}
