package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-bff/internal/config"
	"github.com/noah-isme/storefront-bff/internal/events"
	"github.com/noah-isme/storefront-bff/internal/obs"
	"github.com/noah-isme/storefront-bff/internal/order"
	"github.com/noah-isme/storefront-bff/internal/orderclient"
	"github.com/noah-isme/storefront-bff/internal/orderstate"
	"github.com/noah-isme/storefront-bff/internal/resilience"
	"github.com/noah-isme/storefront-bff/internal/tasks"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "storefront"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	orders := orderclient.New(orderclient.Config{
		BaseURL:     cfg.OrderServiceURL,
		GetPath:     cfg.OrderGetPath,
		ReadTimeout: cfg.ReadTimeout,
		ReadPolicy: resilience.RetryPolicy{
			BaseDelay:  cfg.RetryBase,
			MaxDelay:   cfg.RetryMaxDelay,
			MaxRetries: cfg.RetryMaxRetries,
		},
		Breaker: resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
			WithTarget("order_service_worker").
			WithWindow(cfg.BreakerWindow).
			WithLogger(logger),
	})

	bus := &events.Bus{Publishers: []events.Publisher{events.LogPublisher{Logger: logger}}}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise kafka producer")
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka producer")
			}
		}()
		bus.Publishers = []events.Publisher{events.KafkaPublisher{Producer: producer, Topic: cfg.KafkaTopic}}
	}

	refresher := order.Refresher{
		Orders: orders,
		State:  orderstate.Store{R: redisClient, TTL: cfg.OrderStateTTL},
		Events: bus,
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis uri")
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.WorkerConcurrency,
		RetryDelayFunc: tasks.RetryDelay(cfg.OrderRefreshDelay),
		BaseContext: func() context.Context {
			return logger.WithContext(context.Background())
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(taskCtx context.Context, task *asynq.Task, err error) {
			if errors.Is(err, order.ErrStillPending) {
				return
			}
			logger.Warn().Err(err).Str("task_type", task.Type()).Msg("task_failed")
		}),
		ShutdownTimeout: 10 * time.Second,
	})

	if err := srv.Start(tasks.NewServeMux(tasks.RefreshHandler{Refresher: refresher})); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
