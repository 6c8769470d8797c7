package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/locks"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run due jobs a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.ID(),
	})

	if err := run(ctx, cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// run wires the jobs and blocks until ctx ends. With once set it runs a single
// cycle and returns its combined job errors.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	var (
		leaseLocker locks.TryLocker
		cartLocker  locks.Locker
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "error closing redis", err)
			}
		}()
		if leaseLocker, err = locks.NewRedisLocker(redisClient, cfg.Cron.LockTTL); err != nil {
			return fmt.Errorf("cron locker: %w", err)
		}
		if cartLocker, err = locks.NewRedisLocker(redisClient, cfg.Cart.LockTTL); err != nil {
			return fmt.Errorf("cart locker: %w", err)
		}
	} else {
		logg.Warn(ctx, "redis not configured; cron lease and cart locks are process local")
		local := locks.NewLocalLocker()
		leaseLocker, cartLocker = local, local
	}

	lease, err := cron.NewLease(leaseLocker, leaseKey(cfg.App.Env))
	if err != nil {
		return err
	}

	inventoryService, err := inventory.NewService(inventory.NewRepository(dbClient.DB()))
	if err != nil {
		return fmt.Errorf("inventory service: %w", err)
	}
	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient, inventoryService, cartLocker)
	if err != nil {
		return fmt.Errorf("cart service: %w", err)
	}

	abandonedCarts, err := cron.NewAbandonedCartJob(cron.AbandonedCartJobParams{
		Logger:       logg,
		Carts:        cartService,
		AbandonAfter: cfg.Cart.AbandonAfter,
		BatchSize:    cfg.Cron.AbandonBatch,
	})
	if err != nil {
		return fmt.Errorf("abandoned cart job: %w", err)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  outbox.NewRepository(dbClient.DB()),
		Retention:   cfg.Outbox.Retention,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}

	registry := cron.NewRegistry()
	for _, entry := range []struct {
		job   cron.Job
		every time.Duration
	}{
		{abandonedCarts, cfg.Cron.AbandonEvery},
		{outboxRetention, cfg.Cron.RetentionEvery},
	} {
		if err := registry.Register(entry.job, entry.every); err != nil {
			return err
		}
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lease,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Tick:     cfg.Cron.Tick,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if once {
		logg.Info(ctx, "running cron cycle once")
		return service.RunOnce(ctx)
	}
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

// leaseKey is namespaced per environment so staging and prod workers sharing
// a Redis do not block each other.
func leaseKey(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron:" + env
}
