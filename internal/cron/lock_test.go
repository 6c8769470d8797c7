package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/locks"
)

type failingLocker struct{}

func (failingLocker) TryLock(context.Context, string) (locks.Unlock, bool, error) {
	return nil, false, errors.New("redis down")
}

func TestLeaseExcludesSecondWorker(t *testing.T) {
	shared := locks.NewLocalLocker()
	first, err := NewLease(shared, "cron:dev")
	if err != nil {
		t.Fatalf("NewLease: %v", err)
	}
	second, _ := NewLease(shared, "cron:dev")
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second worker must not acquire")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release without holding: %v", err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("non-holder release must not free the lease")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestLeaseIsNotReentrant(t *testing.T) {
	lease, _ := NewLease(locks.NewLocalLocker(), "cron:dev")
	ctx := context.Background()
	if ok, _ := lease.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	if ok, _ := lease.Acquire(ctx); ok {
		t.Fatal("expected second acquire on the same lease to fail")
	}
	_ = lease.Release(ctx)
	if ok, _ := lease.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestLeaseSurfacesLockerErrors(t *testing.T) {
	lease, _ := NewLease(failingLocker{}, "cron:dev")
	if ok, err := lease.Acquire(context.Background()); err == nil || ok {
		t.Fatalf("expected error, got %v %v", ok, err)
	}
}

func TestNewLeaseValidates(t *testing.T) {
	if _, err := NewLease(nil, "k"); err == nil {
		t.Fatal("expected error for nil locker")
	}
	if _, err := NewLease(locks.NewLocalLocker(), " "); err == nil {
		t.Fatal("expected error for empty key")
	}
}
