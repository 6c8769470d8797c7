package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
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

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
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

	handler, cleanup, err := buildHandler(ctx, cfg, logg, dbClient)
	if err != nil {
		return err
	}
	defer cleanup()

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Handler:    handler,
	})
	if err != nil {
		return fmt.Errorf("outbox publisher: %w", err)
	}

	logg.Info(ctx, "starting outbox publisher")
	return service.Run(ctx)
}

// buildHandler forwards rows to Pub/Sub when a project is configured and
// otherwise sends order emails from this process.
func buildHandler(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (eventHandler, func(), error) {
	if cfg.PubSub.Enabled() {
		client, err := pubsub.NewClient(ctx, cfg.PubSub, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap pubsub: %w", err)
		}
		gcpPub := client.OrdersPublisher()
		fwd, err := newForwarder(newGCPPublisher(gcpPub), cfg.PubSub.PublishTimeout)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("pubsub forwarder: %w", err)
		}
		logg.Info(ctx, "forwarding outbox events to pubsub")
		return fwd, func() {
			gcpPub.Stop()
			if err := client.Close(); err != nil {
				logg.Error(ctx, "error closing pubsub", err)
			}
		}, nil
	}

	consumer, cleanup, err := notifications.BuildConsumer(ctx, cfg, dbClient.DB(), logg)
	if err != nil {
		return nil, nil, err
	}
	logg.Info(ctx, "handling outbox events in process")
	return consumer, cleanup, nil
}
