package cron

import (
	"context"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeStaleCarts struct {
	stale      []string
	failing    map[string]bool
	abandoned  []string
	cutoffs    []time.Time
	limits     []int
	listErr    error
	listCalled int
}

func (f *fakeStaleCarts) ListStale(ctx context.Context, idleBefore time.Time, limit int) ([]string, error) {
	f.listCalled++
	f.cutoffs = append(f.cutoffs, idleBefore)
	f.limits = append(f.limits, limit)
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := f.stale
	if len(out) > limit {
		out = out[:limit]
	}
	return append([]string(nil), out...), nil
}

func (f *fakeStaleCarts) Abandon(ctx context.Context, cartID string) error {
	if f.failing[cartID] {
		return errors.New("cart is busy")
	}
	f.abandoned = append(f.abandoned, cartID)
	remaining := f.stale[:0]
	for _, id := range f.stale {
		if id != cartID {
			remaining = append(remaining, id)
		}
	}
	f.stale = remaining
	return nil
}

func newAbandonedCartJob(t *testing.T, carts *fakeStaleCarts, batch int) *abandonedCartJob {
	t.Helper()
	jobIface, err := NewAbandonedCartJob(AbandonedCartJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Carts:        carts,
		AbandonAfter: 2 * time.Hour,
		BatchSize:    batch,
	})
	if err != nil {
		t.Fatalf("NewAbandonedCartJob: %v", err)
	}
	return jobIface.(*abandonedCartJob)
}

func TestAbandonedCartJobDrainsInBatches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	carts := &fakeStaleCarts{stale: []string{"cart_a", "cart_b", "cart_c", "cart_d", "cart_e"}}
	job := newAbandonedCartJob(t, carts, 2)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(carts.abandoned) != 5 {
		t.Fatalf("expected 5 carts abandoned, got %v", carts.abandoned)
	}
	if want := now.Add(-2 * time.Hour); !carts.cutoffs[0].Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, carts.cutoffs[0])
	}
	if carts.listCalled != 3 {
		t.Fatalf("expected 3 list calls, got %d", carts.listCalled)
	}
}

func TestAbandonedCartJobSkipsFailuresAndReportsThem(t *testing.T) {
	carts := &fakeStaleCarts{
		stale:   []string{"cart_a", "cart_b", "cart_c"},
		failing: map[string]bool{"cart_a": true},
	}
	job := newAbandonedCartJob(t, carts, 2)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	sort.Strings(carts.abandoned)
	if len(carts.abandoned) != 2 || carts.abandoned[0] != "cart_b" || carts.abandoned[1] != "cart_c" {
		t.Fatalf("unexpected abandoned carts %v", carts.abandoned)
	}
	if carts.limits[1] != 3 {
		t.Fatalf("expected limit to grow past skipped carts, got %v", carts.limits)
	}
}

func TestAbandonedCartJobListError(t *testing.T) {
	job := newAbandonedCartJob(t, &fakeStaleCarts{listErr: errors.New("db down")}, 10)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestAbandonedCartJobNothingStale(t *testing.T) {
	carts := &fakeStaleCarts{}
	job := newAbandonedCartJob(t, carts, 10)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if carts.listCalled != 1 {
		t.Fatalf("expected a single list call, got %d", carts.listCalled)
	}
}
