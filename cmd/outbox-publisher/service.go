package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	defaultBatchSize     = 50
	defaultPollMs        = 500
	defaultHandleTimeout = 30 * time.Second
	defaultMaxAttempts   = 10
	maxBackoff           = 10 * time.Second
	jitterPercent        = 20
)

// batchResult counts what one pass over pending rows achieved.
type batchResult struct {
	fetched   int
	published int
	failed    int
}

// stalled reports a batch where every row failed.
func (r batchResult) stalled() bool {
	return r.fetched > 0 && r.published == 0
}

type dbClient interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, err error) error
}

type eventHandler interface {
	Handle(ctx context.Context, event models.OutboxEvent) error
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Repository outboxRepository
	Handler    eventHandler
}

type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	handler      eventHandler
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Handler == nil {
		return nil, errors.New("event handler is required")
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		handler:      params.Handler,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// Run polls until ctx ends. A batch that published everything is followed
// by another fetch straight away; empty or partly failed batches wait one poll
// interval; batches with no successes and fetch errors back off exponentially
// up to maxBackoff so a downstream outage cannot burn every attempt at once.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}

	backoff := s.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		result, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
		}
		wait, reset := s.nextWait(result, err, backoff)
		if reset {
			backoff = s.newBackoff()
		}
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// nextWait picks the pause before the next fetch and whether the backoff
// sequence starts over.
func (s *Service) nextWait(result batchResult, err error, backoff retry.Backoff) (time.Duration, bool) {
	switch {
	case err != nil || result.stalled():
		wait, _ := backoff.Next()
		return wait, false
	case result.fetched == 0 || result.failed > 0:
		return s.pollInterval, true
	default:
		return 0, true
	}
}

func (s *Service) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.pollInterval)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithJitterPercent(jitterPercent, b)
}

// processBatch hands each pending row to the handler. A failed row is
// counted and retried on a later batch until it runs out of attempts.
func (s *Service) processBatch(ctx context.Context) (batchResult, error) {
	var result batchResult
	events, err := s.repo.FetchUnpublished(ctx, s.batchSize, s.maxAttempts)
	if err != nil {
		return result, err
	}
	result.fetched = len(events)

	for _, event := range events {
		fields := s.eventFields(event)
		handleCtx, cancel := context.WithTimeout(ctx, defaultHandleTimeout)
		err := s.handler.Handle(handleCtx, event)
		cancel()

		if err != nil {
			result.failed++
			event.AttemptCount++
			fields["attempt_count"] = event.AttemptCount
			logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error())
			if event.Exhausted(s.maxAttempts) {
				s.logg.Warn(logCtx, "outbox event exhausted its attempts")
			} else {
				s.logg.Warn(logCtx, "outbox event handling failed")
			}
			if markErr := s.repo.MarkFailed(ctx, event.ID, err); markErr != nil {
				return result, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
			}
			continue
		}

		if markErr := s.repo.MarkPublished(ctx, event.ID); markErr != nil {
			return result, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		result.published++
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
	}
	return result, nil
}

func (s *Service) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if env, err := outbox.ParseEnvelope(event.Payload); err == nil && !env.OccurredAt.IsZero() {
		fields["occurred_at"] = env.OccurredAt.Format(time.RFC3339Nano)
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
