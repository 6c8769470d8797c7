package notifications

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/email"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// BuildConsumer wires the email consumer from config for the processes that
// send order emails. The returned cleanup closes the Redis connection when
// one was opened.
func BuildConsumer(ctx context.Context, cfg *config.Config, conn *gorm.DB, logg *logger.Logger) (*Consumer, func(), error) {
	decoders, err := payloads.Decoders()
	if err != nil {
		return nil, nil, fmt.Errorf("event decoders: %w", err)
	}
	mailer, err := email.NewClient(email.OptionsFromConfig(cfg.Email))
	if err != nil {
		return nil, nil, fmt.Errorf("email client: %w", err)
	}
	if !mailer.Enabled() {
		logg.Warn(ctx, "resend api key not set; order emails will be skipped")
	}

	params := ConsumerParams{
		Repo:     NewRepository(conn),
		Sender:   mailer,
		Decoders: decoders,
		Logger:   logg,
	}
	cleanup := func() {}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		cleanup = func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "error closing redis", err)
			}
		}
		guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.IdempotencyTTL, instance.ID())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("idempotency guard: %w", err)
		}
		params.Idempotency = guard
	}

	consumer, err := NewConsumer(params)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("notifications consumer: %w", err)
	}
	return consumer, cleanup, nil
}
