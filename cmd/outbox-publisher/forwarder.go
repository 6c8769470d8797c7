package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

const defaultPublishTimeout = 10 * time.Second

type publisher interface {
	Publish(context.Context, *pubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// forwarder hands outbox rows to the orders topic instead of handling them
// here. The row counts as published once the broker acknowledges it.
type forwarder struct {
	pub     publisher
	timeout time.Duration
}

func newForwarder(pub publisher, timeout time.Duration) (*forwarder, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &forwarder{pub: pub, timeout: timeout}, nil
}

func (f *forwarder) Handle(ctx context.Context, event models.OutboxEvent) error {
	publishCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	result := f.pub.Publish(publishCtx, pubsub.EventMessage(event))
	if result == nil {
		return fmt.Errorf("publisher returned nil for %s", event.ID)
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish %s: %w", event.ID, err)
	}
	return nil
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
