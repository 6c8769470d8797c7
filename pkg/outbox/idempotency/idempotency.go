// Package idempotency records which outbox events a consumer has already
// handled so redelivered rows are not processed twice.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the subset of the Redis client a Guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard claims event ids per consumer. A claim lives for ttl; zero keeps it
// until released.
type Guard struct {
	store  Store
	ttl    time.Duration
	holder string
}

// NewGuard returns a Guard that stamps claims with holder, usually the
// process instance id.
func NewGuard(store Store, ttl time.Duration, holder string) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if strings.TrimSpace(holder) == "" {
		holder = "unknown"
	}
	return &Guard{store: store, ttl: ttl, holder: holder}, nil
}

// Claim reports whether the caller now owns eventID for consumer. False
// means another delivery already claimed it.
func (g *Guard) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, g.holder, g.ttl)
}

// Release drops a claim so a failed delivery can run again.
func (g *Guard) Release(ctx context.Context, consumer, eventID string) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("outbox:"+consumer, eventID), nil
}
