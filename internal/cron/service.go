package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const defaultTick = 5 * time.Minute

// ServiceParams configure the cron service. Tick is how often the service
// wakes to look for due jobs.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Tick     time.Duration
	Now      func() time.Time
}

// Service runs due jobs while holding Lock, so at most one worker sweeps per
// cycle.
type Service struct {
	ServiceParams
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Lock == nil:
		return nil, fmt.Errorf("lock required")
	case params.Registry == nil:
		return nil, fmt.Errorf("registry required")
	}
	if params.Tick <= 0 {
		params.Tick = defaultTick
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{ServiceParams: params}, nil
}

// Run blocks until ctx is canceled, running a cycle immediately and then on
// every tick. Cycle failures are logged, never returned.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.Logger.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every due job under the lock. A failing job does not stop the
// others; their errors are combined. Losing the lock race is not an error.
func (s *Service) RunOnce(ctx context.Context) error {
	locked, err := s.Lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.Logger.Debug(ctx, "cron.lock_held_elsewhere")
		return nil
	}
	defer func() {
		if err := s.Lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.Logger.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	var errs error
	for _, job := range s.Registry.Due(s.Now()) {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := s.runJob(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	ctx = s.Logger.WithField(ctx, "job", job.Name())
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		elapsed := time.Since(start)
		if s.Metrics != nil {
			s.Metrics.Observe(job.Name(), elapsed, err)
		}
		ctx = s.Logger.WithField(ctx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.Logger.Error(ctx, "cron.job_failed", err)
			return
		}
		s.Logger.Info(ctx, "cron.job_completed")
	}()
	return job.Run(ctx)
}
