package cron

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront-backend/pkg/locks"
)

// Lock coordinates exclusive cron cycles across workers.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Lease holds one named key on a TryLocker for the length of a cycle. With a
// Redis locker the key expires on its own if the holder dies mid-cycle.
type Lease struct {
	locker locks.TryLocker
	key    string

	mu     sync.Mutex
	unlock locks.Unlock
}

func NewLease(locker locks.TryLocker, key string) (*Lease, error) {
	if locker == nil {
		return nil, errors.New("locker required for cron lease")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("lease key is required")
	}
	return &Lease{locker: locker, key: key}, nil
}

func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unlock != nil {
		return false, nil
	}
	unlock, ok, err := l.locker.TryLock(ctx, l.key)
	if err != nil || !ok {
		return false, err
	}
	l.unlock = unlock
	return true, nil
}

// Release is a no-op when the lease is not held.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	unlock := l.unlock
	l.unlock = nil
	l.mu.Unlock()
	if unlock == nil {
		return nil
	}
	return unlock(ctx)
}
