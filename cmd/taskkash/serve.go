package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/streadway/amqp"

	"taskkash/internal/app"
	"taskkash/internal/docstore"
	"taskkash/internal/notify"
	"taskkash/internal/pkg/db"
	"taskkash/internal/pkg/ratelimit"
	"taskkash/internal/repository"
	"taskkash/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Losing a required backend stops the server so the supervisor restarts it.
	ctx, shutdown := context.WithCancelCause(ctx)
	defer shutdown(nil)

	// Initialize database connection pool
	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		log.Info().Msg("Running database migrations...")
		if err := db.Migrate(ctx, pool.Pool); err != nil {
			return err
		}
	}

	backends := app.Backends{
		Store:  repository.NewStore(pool.Pool),
		Checks: map[string]server.Checker{"postgres": pool.HealthCheck},
	}

	// Document store for activities and notifications
	if cfg.Mongo.URI != "" {
		docs, err := docstore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		defer func() {
			if err := docs.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to disconnect MongoDB")
			}
		}()
		backends.Activities = docs.Activities()
		backends.Notifications = docs.Notifications()
		backends.AdminNotifications = docs.AdminNotifications()
		backends.Checks["mongo"] = docs.Ping
		log.Info().Str("database", cfg.Mongo.Database).Msg("Connected to MongoDB")
	} else {
		log.Warn().Msg("mongo.uri is empty, keeping activities and notifications in memory")
		docs := docstore.NewMemory()
		backends.Activities = docs.Activities()
		backends.Notifications = docs.Notifications()
		backends.AdminNotifications = docs.AdminNotifications()
	}

	// Shared limiter and dedupe state
	var dedupe notify.Deduper
	if cfg.Redis.Enabled {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		backends.Limiter = ratelimit.NewRedisLimiter(rdb, "taskkash:password-change",
			cfg.Auth.PasswordChangeLimit, cfg.Auth.PasswordChangeWindow)
		dedupe = notify.NewRedisDeduper(rdb, "taskkash:notify")
		backends.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info().Msg("Connected to Redis")
	}

	// Notification delivery
	dispatcher := app.NewDispatcher(backends)
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramSink(cfg.Telegram)
		if err != nil {
			return err
		}
		dispatcher.Handle(notify.KindAdmin, tg)
		log.Info().Int("chats", len(cfg.Telegram.AdminChatIDs)).Msg("Telegram admin alerts enabled")
	}
	if cfg.SMTP.Host != "" {
		dispatcher.Handle(notify.KindEmail, notify.NewMailSink(cfg.SMTP))
	} else {
		log.Warn().Msg("smtp.host is empty, emails are written to the log")
		dispatcher.Handle(notify.KindEmail, notify.LogSink{})
	}
	backends.Dispatcher = dispatcher

	if cfg.AMQP.Enabled {
		broker, err := notify.DialBroker(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			return err
		}
		defer broker.Close()

		connClosed := broker.NotifyClose(make(chan *amqp.Error, 1))
		go func() {
			select {
			case err := <-connClosed:
				if err != nil {
					log.Error().Err(err).Msg("AMQP connection lost, shutting down")
					shutdown(fmt.Errorf("amqp connection lost: %w", err))
				}
			case <-ctx.Done():
			}
		}()

		pub, err := notify.NewAMQPPublisher(broker)
		if err != nil {
			return err
		}
		defer pub.Close()
		backends.Publisher = pub

		var consumers sync.WaitGroup
		consumerCtx, stopConsumers := context.WithCancel(ctx)
		defer func() {
			stopConsumers()
			consumers.Wait()
		}()

		consumerCfg := notify.ConsumerConfig{
			MaxAttempts: cfg.AMQP.MaxAttempts,
			RetryDelay:  cfg.AMQP.RetryDelay,
		}
		for i := 0; i < max(cfg.AMQP.Consumers, 1); i++ {
			ch, err := broker.Channel()
			if err != nil {
				return err
			}
			c := notify.NewConsumer(dispatcher, pub, dedupe, consumerCfg)
			tag := fmt.Sprintf("taskkash-notify-%d", i)
			consumers.Add(1)
			go func() {
				defer consumers.Done()
				err := c.Run(consumerCtx, ch, broker.Queue(), tag)
				if err != nil && consumerCtx.Err() == nil {
					log.Error().Err(err).Str("consumer", tag).Msg("Notification consumer failed, shutting down")
					shutdown(fmt.Errorf("consumer %s: %w", tag, err))
					return
				}
				log.Info().Str("consumer", tag).Msg("Notification consumer stopped")
			}()
		}
		log.Info().Str("queue", broker.Queue()).Int("consumers", max(cfg.AMQP.Consumers, 1)).Msg("AMQP notifications enabled")
	}

	a, err := app.New(cfg, backends, log.Logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, a.Handler)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	log.Info().Msg("Server stopped gracefully")
	return nil
}
