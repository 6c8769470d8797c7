package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultOutboxRetention   = 30 * 24 * time.Hour
	defaultOutboxMinAttempts = 10
	outboxPruneBatch         = 500
	maxOutboxPruneBatches    = 100
)

type outboxPruner interface {
	Prune(ctx context.Context, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxPruner
	Retention  time.Duration
	// MinAttempts should match the publisher's attempt cap so dead rows are
	// pruned alongside published ones.
	MinAttempts int
}

// NewOutboxRetentionJob prunes old outbox rows in bounded batches so one run
// never holds a long delete on the table.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		repo:        params.Repository,
		retention:   params.Retention,
		minAttempts: params.MinAttempts,
		batch:       outboxPruneBatch,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultOutboxMinAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	repo        outboxPruner
	retention   time.Duration
	minAttempts int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	batches := 0
	for ; batches < maxOutboxPruneBatches; batches++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.repo.Prune(ctx, cutoff, j.minAttempts, j.batch)
		if err != nil {
			return fmt.Errorf("prune outbox after %d rows: %w", total, err)
		}
		total += n
		if n < int64(j.batch) {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff.Format(time.RFC3339),
		"min_attempts": j.minAttempts,
		"rows_deleted": total,
		"batches":      batches + 1,
	})
	if batches == maxOutboxPruneBatches {
		j.logg.Warn(logCtx, "cron.outbox_retention_truncated")
		return nil
	}
	j.logg.Info(logCtx, "cron.outbox_retention_done")
	return nil
}
