package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

func TestForwarderPublishesRowAsMessage(t *testing.T) {
	pub := &fakePublisher{}
	fwd, err := newForwarder(pub, time.Second)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}

	event := newEvent(t, "evt_fwd", 0)
	if err := fwd.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if string(msg.Data) != string(event.Payload) {
		t.Fatalf("payload not carried: %s", msg.Data)
	}
	if got := msg.Attributes[pubsub.AttrOutboxID]; got != "evt_fwd" {
		t.Fatalf("unexpected outbox id attribute %q", got)
	}
	if got := msg.Attributes[pubsub.AttrAggregateID]; got != "order_1" {
		t.Fatalf("unexpected aggregate id attribute %q", got)
	}
}

func TestForwarderSurfacesBrokerError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("unavailable")}
	fwd, err := newForwarder(pub, 0)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	if fwd.timeout != defaultPublishTimeout {
		t.Fatalf("expected default timeout, got %v", fwd.timeout)
	}
	if err := fwd.Handle(context.Background(), newEvent(t, "evt_down", 0)); err == nil {
		t.Fatal("expected publish error")
	}

	pub = &fakePublisher{nilResult: true}
	fwd, _ = newForwarder(pub, time.Second)
	if err := fwd.Handle(context.Background(), newEvent(t, "evt_nil", 0)); err == nil {
		t.Fatal("expected error for nil publish result")
	}
}

func TestForwarderRequiresPublisher(t *testing.T) {
	if _, err := newForwarder(nil, time.Second); err == nil {
		t.Fatal("expected error without publisher")
	}
	if newGCPPublisher(nil) != nil {
		t.Fatal("expected nil publisher for nil handle")
	}
}

func TestServiceMarksForwardedRowsPublished(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{newEvent(t, "evt_a", 0), newEvent(t, "evt_b", 0)}}
	pub := &fakePublisher{failOn: "evt_b"}
	fwd, err := newForwarder(pub, time.Second)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	cfg := &config.Config{}
	cfg.Outbox.PollIntervalMS = 10
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         fakeDB{},
		Repository: repo,
		Handler:    fwd,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if result.published != 1 || result.failed != 1 {
		t.Fatalf("unexpected batch result %+v", result)
	}
	if len(repo.published) != 1 || repo.published[0] != "evt_a" {
		t.Fatalf("unexpected published rows: %v", repo.published)
	}
	if len(repo.failed) != 1 || repo.failed[0] != "evt_b" {
		t.Fatalf("unexpected failed rows: %v", repo.failed)
	}
}

type fakePublisher struct {
	messages  []*pubsub.Message
	err       error
	failOn    string
	nilResult bool
}

func (f *fakePublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if f.nilResult {
		return nil
	}
	f.messages = append(f.messages, msg)
	err := f.err
	if f.failOn != "" && msg.Attributes[pubsub.AttrOutboxID] == f.failOn {
		err = errors.New("rejected")
	}
	return fakeResult{err: err}
}

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}
