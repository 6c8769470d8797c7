// Package locks provides keyed mutual exclusion that holds across API
// replicas when Redis is available and within the process otherwise.
package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when the context ends before the lock is free.
var ErrNotAcquired = errors.New("lock not acquired")

const (
	defaultTTL     = 15 * time.Second
	minPollBackoff = 10 * time.Millisecond
	maxPollBackoff = 200 * time.Millisecond
)

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func(ctx context.Context) error

// Locker serialises work on a key.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// TryLocker takes a key only if it is free right now. ok is false when
// another holder has it.
type TryLocker interface {
	TryLock(ctx context.Context, key string) (unlock Unlock, ok bool, err error)
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	LockKey(name string) string
}

// RedisLocker holds a key with SET NX PX and an owner token. The TTL bounds how
// long a crashed holder can block others.
type RedisLocker struct {
	store redisStore
	ttl   time.Duration
}

func NewRedisLocker(store redisStore, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{store: store, ttl: ttl}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	backoff := minPollBackoff
	for {
		unlock, ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		if err := wait(ctx, backoff); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}
		backoff = min(backoff*2, maxPollBackoff)
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	redisKey := l.store.LockKey(key)
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, redisKey, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	var once sync.Once
	return func(ctx context.Context) error {
		var relErr error
		once.Do(func() {
			if _, err := l.store.CompareAndDelete(ctx, redisKey, owner); err != nil {
				relErr = fmt.Errorf("release %s: %w", key, err)
			}
		})
		return relErr
	}, true, nil
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted so
// idle keys do not accumulate.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*localEntry{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	entry := l.ref(key)
	select {
	case entry.ch <- struct{}{}:
		return l.release(key, entry), nil
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (Unlock, bool, error) {
	entry := l.ref(key)
	select {
	case entry.ch <- struct{}{}:
		return l.release(key, entry), true, nil
	default:
		l.unref(key, entry)
		return nil, false, nil
	}
}

func (l *LocalLocker) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) release(key string, entry *localEntry) Unlock {
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.ch
			l.unref(key, entry)
		})
		return nil
	}
}

func (l *LocalLocker) unref(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
