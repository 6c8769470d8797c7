package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{NowFunc: db.NowUTC})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))
	return conn
}

type orderPlaced struct {
	OrderID string `json:"order_id"`
	Email   string `json:"email"`
}

func emit(t *testing.T, svc *Service, conn *gorm.DB, orderID string) {
	t.Helper()
	err := db.Wrap(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, Event{
			Type:          enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          orderPlaced{OrderID: orderID, Email: "ada@example.com"},
		})
	})
	require.NoError(t, err)
}

func TestEmitStoresEnvelope(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	emit(t, svc, conn, "order_1")

	rows, err := repo.FetchUnpublished(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, strings.HasPrefix(rows[0].ID, "evt_"))
	assert.Equal(t, "order_1", rows[0].AggregateID)

	env, err := ParseEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, rows[0].ID, env.EventID)
	assert.Equal(t, 1, env.Version)

	var data orderPlaced
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "ada@example.com", data.Email)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(newTestDB(t)), nil)
	err := svc.Emit(context.Background(), nil, Event{})
	require.Error(t, err)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	boom := errors.New("boom")
	err := db.Wrap(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, Event{Type: enums.EventOrderConfirmed, AggregateType: enums.AggregateOrder, AggregateID: "order_1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.FetchUnpublished(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkFailedAndPublished(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	emit(t, svc, conn, "order_1")
	emit(t, svc, conn, "order_2")

	rows, err := repo.FetchUnpublished(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkFailed(ctx, rows[0].ID, errors.New(strings.Repeat("x", 2000))))
	require.NoError(t, repo.MarkFailed(ctx, rows[0].ID, errors.New("again")))
	require.NoError(t, repo.MarkPublished(ctx, rows[1].ID))

	pending, err := repo.FetchUnpublished(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "again", *pending[0].LastError)
	assert.False(t, pending[0].Published())
	assert.True(t, pending[0].Exhausted(2))
	assert.False(t, pending[0].Exhausted(3))
}

func TestPrune(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	emit(t, svc, conn, "order_published")
	emit(t, svc, conn, "order_exhausted")
	emit(t, svc, conn, "order_pending")

	rows, err := repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	byAggregate := map[string]string{}
	for _, row := range rows {
		byAggregate[row.AggregateID] = row.ID
	}
	require.NoError(t, repo.MarkPublished(ctx, byAggregate["order_published"]))
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.MarkFailed(ctx, byAggregate["order_exhausted"], errors.New("send failed")))
	}

	cutoff := time.Now().UTC().Add(time.Minute)
	deleted, err := repo.Prune(ctx, cutoff, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	deleted, err = repo.Prune(ctx, cutoff, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	deleted, err = repo.Prune(ctx, cutoff, 5, 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	_, err = repo.Prune(ctx, cutoff, 5, 0)
	assert.Error(t, err)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "order_pending", remaining[0].AggregateID)
}

func TestEmitValidatesEvent(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(NewRepository(conn), nil)

	cases := map[string]Event{
		"unknown type":      {Type: "order.exploded", AggregateType: enums.AggregateOrder, AggregateID: "order_1"},
		"unknown aggregate": {Type: enums.EventOrderConfirmed, AggregateType: "store", AggregateID: "order_1"},
		"missing aggregate": {Type: enums.EventOrderConfirmed, AggregateType: enums.AggregateOrder, AggregateID: " "},
	}
	for name, evt := range cases {
		err := db.Wrap(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, evt)
		})
		assert.Error(t, err, name)
	}
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope(json.RawMessage(`{"event_id":"evt_1","data":{"order_id":"order_1"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, "evt_1", env.EventID)

	_, err = ParseEnvelope(nil)
	assert.Error(t, err)
	_, err = ParseEnvelope(json.RawMessage(`{"version":1}`))
	assert.Error(t, err)
	_, err = ParseEnvelope(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestDecoders(t *testing.T) {
	d := NewDecoders()
	require.NoError(t, d.Add(enums.EventOrderConfirmed, 1, JSON[orderPlaced]()))
	assert.Error(t, d.Add(enums.EventOrderConfirmed, 1, JSON[orderPlaced]()))
	assert.Error(t, d.Add(enums.EventOrderConfirmed, 0, JSON[orderPlaced]()))
	assert.Error(t, d.Add("order.exploded", 1, JSON[orderPlaced]()))
	assert.Error(t, d.Add(enums.EventOrderStatusChanged, 1, nil))

	decoded, err := d.Decode(enums.EventOrderConfirmed, 1, json.RawMessage(`{"order_id":"order_1"}`))
	require.NoError(t, err)
	assert.Equal(t, "order_1", decoded.(orderPlaced).OrderID)

	_, err = d.Decode(enums.EventOrderConfirmed, 2, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNoDecoder)

	_, err = d.Decode(enums.EventOrderConfirmed, 1, json.RawMessage(`[`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDecoder)
}

func TestPruneWithoutAttemptLimitKeepsUnpublished(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	emit(t, svc, conn, "order_failing")
	rows, err := repo.FetchUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, repo.MarkFailed(ctx, rows[0].ID, nil))

	deleted, err := repo.Prune(ctx, time.Now().UTC().Add(time.Minute), 0, 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	var stored models.OutboxEvent
	require.NoError(t, conn.First(&stored, "id = ?", rows[0].ID).Error)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "unknown error", *stored.LastError)
}

func TestTruncateErrorKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxErrorLen-1) + "é"
	out := truncateError(msg)
	assert.Equal(t, maxErrorLen-1, len(out))
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "short", truncateError("short"))
}
