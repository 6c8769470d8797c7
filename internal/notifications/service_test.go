package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/email"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg_%d", len(f.sent)), nil
}

type fakeTracker struct {
	seen    map[string]bool
	deleted []string
}

func (f *fakeTracker) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := consumer + ":" + eventID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeTracker) Release(ctx context.Context, consumer, eventID string) error {
	delete(f.seen, consumer+":"+eventID)
	f.deleted = append(f.deleted, eventID)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{NowFunc: db.NowUTC})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func newConsumer(t *testing.T, repo Repository, sender email.Sender, tracker eventClaimer) *Consumer {
	t.Helper()
	c, err := NewConsumer(ConsumerParams{
		Repo:        repo,
		Sender:      sender,
		Idempotency: tracker,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return c
}

func outboxRow(t *testing.T, id string, eventType enums.OutboxEventType, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env, err := json.Marshal(outbox.Envelope{Version: 1, EventID: id, OccurredAt: time.Now().UTC(), Data: raw})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "order_1",
		Payload:       env,
	}
}

func confirmedEvent() payloads.OrderConfirmedEvent {
	return payloads.OrderConfirmedEvent{
		OrderID:       "order_1",
		Email:         "ada@example.com",
		CustomerName:  "Ada Lovelace",
		Total:         5000,
		CurrencyCode:  "dust",
		PaymentMethod: enums.PaymentMethodPoints,
		Items: []payloads.OrderLine{
			{Title: "Pin", Quantity: 2, UnitAmount: 2500, CurrencyCode: "dust"},
		},
		ShippingAddress: &types.ShippingAddress{Address1: "1 Main St", City: "Austin", PostalCode: "78701", CountryCode: "US"},
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$25.00", FormatAmount(2500, "usd"))
	assert.Equal(t, "€0.99", FormatAmount(99, "EUR"))
	assert.Equal(t, "12.34 SEK", FormatAmount(1234, "sek"))
	assert.Equal(t, "2500 ⚡ Dust", FormatAmount(2500, "dust"))
	assert.Equal(t, "2500 ⚡ Dust", FormatAmount(2500, "xpf"))
}

func TestConsumerSendsConfirmationOnce(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	sender := &fakeSender{}
	c := newConsumer(t, repo, sender, &fakeTracker{})

	row := outboxRow(t, "evt_1", enums.EventOrderConfirmed, confirmedEvent())
	require.NoError(t, c.Handle(context.Background(), row))
	require.NoError(t, c.Handle(context.Background(), row))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{"ada@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "order_1")
	assert.Contains(t, msg.Text, "5000 ⚡ Dust")
	assert.Contains(t, msg.Text, "Pin: 2 x 2500 ⚡ Dust")
	assert.Contains(t, msg.HTML, "Ada Lovelace")
	assert.Contains(t, msg.HTML, "1 Main St")

	deliveries, err := repo.ListByOrder(context.Background(), "order_1")
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "evt_1", deliveries[0].EventID)
	assert.Equal(t, enums.NotificationOrderConfirmation, deliveries[0].Kind)
	require.NotNil(t, deliveries[0].ProviderMessageID)
	assert.Equal(t, "msg_1", *deliveries[0].ProviderMessageID)
}

func TestConsumerDedupesWithoutRedis(t *testing.T) {
	conn := openTestDB(t)
	sender := &fakeSender{}
	c := newConsumer(t, NewRepository(conn), sender, nil)

	row := outboxRow(t, "evt_1", enums.EventOrderConfirmed, confirmedEvent())
	require.NoError(t, c.Handle(context.Background(), row))
	require.NoError(t, c.Handle(context.Background(), row))
	assert.Len(t, sender.sent, 1)
}

func TestConsumerSkipsWhenDeliveryDisabled(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	c := newConsumer(t, repo, &fakeSender{err: email.ErrDisabled}, nil)

	require.NoError(t, c.Handle(context.Background(), outboxRow(t, "evt_1", enums.EventOrderConfirmed, confirmedEvent())))
	rows, err := repo.ListByOrder(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestConsumerSendFailureIsRetryable(t *testing.T) {
	conn := openTestDB(t)
	tracker := &fakeTracker{}
	sender := &fakeSender{err: errors.New("provider down")}
	c := newConsumer(t, NewRepository(conn), sender, tracker)

	row := outboxRow(t, "evt_1", enums.EventOrderConfirmed, confirmedEvent())
	require.Error(t, c.Handle(context.Background(), row))
	assert.Equal(t, []string{"evt_1"}, tracker.deleted)

	sender.err = nil
	require.NoError(t, c.Handle(context.Background(), row))
	assert.Len(t, sender.sent, 1)
}

func TestConsumerSkipsEventWithoutEmail(t *testing.T) {
	conn := openTestDB(t)
	sender := &fakeSender{}
	c := newConsumer(t, NewRepository(conn), sender, nil)

	evt := confirmedEvent()
	evt.Email = ""
	require.NoError(t, c.Handle(context.Background(), outboxRow(t, "evt_1", enums.EventOrderConfirmed, evt)))
	assert.Empty(t, sender.sent)
}

func TestConsumerStatusEmails(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	sender := &fakeSender{}
	c := newConsumer(t, repo, sender, nil)
	ctx := context.Background()

	processing := payloads.OrderStatusChangedEvent{OrderID: "order_1", Email: "ada@example.com", From: enums.OrderStatusConfirmed, To: enums.OrderStatusProcessing}
	require.NoError(t, c.Handle(ctx, outboxRow(t, "evt_1", enums.EventOrderStatusChanged, processing)))
	assert.Empty(t, sender.sent)

	shipped := payloads.OrderStatusChangedEvent{
		OrderID:  "order_1",
		Email:    "ada@example.com",
		From:     enums.OrderStatusProcessing,
		To:       enums.OrderStatusShipped,
		Tracking: &types.Tracking{Carrier: "UPS", TrackingNumber: "1Z999", TrackingURL: "https://ups.example/1Z999"},
	}
	require.NoError(t, c.Handle(ctx, outboxRow(t, "evt_2", enums.EventOrderStatusChanged, shipped)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Your order order_1 has shipped", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Text, "Tracking number: 1Z999")
	assert.Contains(t, sender.sent[0].HTML, `href="https://ups.example/1Z999"`)

	cancelled := payloads.OrderStatusChangedEvent{OrderID: "order_1", Email: "ada@example.com", From: enums.OrderStatusShipped, To: enums.OrderStatusCancelled}
	require.NoError(t, c.Handle(ctx, outboxRow(t, "evt_3", enums.EventOrderStatusChanged, cancelled)))
	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[1].Subject, "cancelled")

	rows, err := repo.ListByOrder(ctx, "order_1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	kinds := []enums.NotificationType{rows[0].Kind, rows[1].Kind}
	assert.ElementsMatch(t, []enums.NotificationType{enums.NotificationOrderShipped, enums.NotificationOrderStatus}, kinds)
}

func TestConsumerRejectsCorruptEnvelope(t *testing.T) {
	conn := openTestDB(t)
	c := newConsumer(t, NewRepository(conn), &fakeSender{}, nil)
	row := models.OutboxEvent{ID: "evt_bad", EventType: enums.EventOrderConfirmed, Payload: json.RawMessage(`"oops"`)}
	assert.Error(t, c.Handle(context.Background(), row))
}

func TestConsumerSkipsUnknownVersionButFailsBadData(t *testing.T) {
	conn := openTestDB(t)
	sender := &fakeSender{}
	c := newConsumer(t, NewRepository(conn), sender, nil)

	future := models.OutboxEvent{ID: "evt_v2", EventType: enums.EventOrderConfirmed, Payload: json.RawMessage(`{"version":2,"event_id":"evt_v2","data":{}}`)}
	assert.NoError(t, c.Handle(context.Background(), future))

	bad := models.OutboxEvent{ID: "evt_bad_data", EventType: enums.EventOrderConfirmed, Payload: json.RawMessage(`{"version":1,"event_id":"evt_bad_data","data":"oops"}`)}
	assert.Error(t, c.Handle(context.Background(), bad))
}

type fakeRepository struct {
	Repository
	rows []models.Notification
	err  error
}

func (f *fakeRepository) ListByOrder(ctx context.Context, orderID string) ([]models.Notification, error) {
	return f.rows, f.err
}

func TestServiceListByOrder(t *testing.T) {
	msgID := "msg_1"
	svc, err := NewService(&fakeRepository{rows: []models.Notification{
		{ID: "ntf_1", EventID: "evt_1", OrderID: "order_1", Kind: enums.NotificationOrderConfirmation, ProviderMessageID: &msgID},
	}})
	require.NoError(t, err)

	out, err := svc.ListByOrder(context.Background(), "order_1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "msg_1", out[0].ProviderMessageID)

	_, err = svc.ListByOrder(context.Background(), " ")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestServiceListByOrderWrapsRepoErrors(t *testing.T) {
	svc, err := NewService(&fakeRepository{err: errors.New("db down")})
	require.NoError(t, err)
	_, err = svc.ListByOrder(context.Background(), "order_1")
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}
