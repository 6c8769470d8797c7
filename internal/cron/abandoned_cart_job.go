package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultAbandonAfter = 24 * time.Hour
	defaultAbandonBatch = 200
	maxAbandonBatches   = 50
)

type staleCarts interface {
	ListStale(ctx context.Context, idleBefore time.Time, limit int) ([]string, error)
	Abandon(ctx context.Context, cartID string) error
}

type AbandonedCartJobParams struct {
	Logger       *logger.Logger
	Carts        staleCarts
	AbandonAfter time.Duration
	BatchSize    int
}

// NewAbandonedCartJob releases holds of idle carts and deletes them, along
// with carts that already converted into an order.
func NewAbandonedCartJob(params AbandonedCartJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	after := params.AbandonAfter
	if after <= 0 {
		after = defaultAbandonAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAbandonBatch
	}
	return &abandonedCartJob{
		logg:      params.Logger,
		carts:     params.Carts,
		after:     after,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

type abandonedCartJob struct {
	logg      *logger.Logger
	carts     staleCarts
	after     time.Duration
	batchSize int
	now       func() time.Time
}

func (j *abandonedCartJob) Name() string { return "abandoned-carts" }

func (j *abandonedCartJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	var (
		abandoned int
		failed    error
		skip      = map[string]struct{}{}
	)

	for batch := 0; batch < maxAbandonBatches; batch++ {
		limit := j.batchSize + len(skip)
		ids, err := j.carts.ListStale(ctx, cutoff, limit)
		if err != nil {
			return fmt.Errorf("list stale carts: %w", err)
		}
		progressed := false
		for _, id := range ids {
			if _, seen := skip[id]; seen {
				continue
			}
			if err := j.carts.Abandon(ctx, id); err != nil {
				skip[id] = struct{}{}
				failed = multierr.Append(failed, fmt.Errorf("abandon %s: %w", id, err))
				continue
			}
			abandoned++
			progressed = true
		}
		if !progressed || len(ids) < limit {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"abandoned": abandoned,
		"failed":    len(multierr.Errors(failed)),
	})
	j.logg.Info(logCtx, "abandoned cart cleanup complete")
	return failed
}
