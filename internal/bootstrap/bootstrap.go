// Package bootstrap wires the infrastructure shared by the api and worker
// processes: logging, metrics, the database, redis and the delivery pipeline.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/jwalitptl/hiring-api/internal/config"
	"github.com/jwalitptl/hiring-api/internal/email"
	"github.com/jwalitptl/hiring-api/internal/handler/health"
	"github.com/jwalitptl/hiring-api/internal/notification"
	"github.com/jwalitptl/hiring-api/internal/ratelimit"
	"github.com/jwalitptl/hiring-api/internal/repository/postgres"
	"github.com/jwalitptl/hiring-api/internal/templates"
	"github.com/jwalitptl/hiring-api/pkg/logger"
	"github.com/jwalitptl/hiring-api/pkg/messaging"
	messagingredis "github.com/jwalitptl/hiring-api/pkg/messaging/redis"
	"github.com/jwalitptl/hiring-api/pkg/metrics"
)

const MetricsNamespace = "hiring"

// NewLogger builds the process logger and installs it as the zerolog global.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.JSON,
	})
	zlog.Logger = log.ZL
	return log
}

// Infra holds process-wide clients. Close releases them.
type Infra struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	DB       *sqlx.DB
	Base     postgres.BaseRepository
	Redis    *goredis.Client
	Limiter  ratelimit.Limiter

	Outbound ratelimit.Class
	API      ratelimit.Class
	Auth     ratelimit.Class
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infra, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	infra := &Infra{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  metrics.New(MetricsNamespace, reg),
	}
	infra.Outbound, infra.API, infra.Auth = ratelimit.Classes(cfg.RateLimit)

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	infra.DB = db
	infra.Base = postgres.NewBaseRepository(db)

	if cfg.RateLimit.Backend == "redis" || cfg.Events.Broker == "redis" {
		client, err := messagingredis.NewClient(ctx, messagingredis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Redis = client
	}

	switch cfg.RateLimit.Backend {
	case "redis":
		infra.Limiter = ratelimit.NewRedisLimiter(infra.Redis, cfg.RateLimit.KeyPrefix, cfg.RateLimit.StoreTimeout, log, infra.Metrics)
	default:
		infra.Limiter = ratelimit.NewMemoryLimiter(ratelimit.WithMemoryMetrics(infra.Metrics))
	}

	log.Info("infrastructure ready",
		"rate_limit_backend", cfg.RateLimit.Backend,
		"event_broker", cfg.Events.Broker)
	return infra, nil
}

// Broker returns the configured event broker.
func (i *Infra) Broker() messaging.Broker {
	if i.Config.Events.Broker == "redis" {
		return messagingredis.NewRedisBroker(i.Redis, i.Logger, messagingredis.Options{
			MaxLen:    i.Config.Events.StreamMaxLen,
			ClaimIdle: i.Config.Events.ClaimIdle,
		})
	}
	return messaging.NewMemoryBroker(i.Config.Events.BufferSize)
}

// HealthChecks lists the dependencies readiness probes should ping.
func (i *Infra) HealthChecks() map[string]health.Pinger {
	checks := map[string]health.Pinger{"database": i.DB}
	if i.Redis != nil {
		client := i.Redis
		checks["redis"] = health.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return checks
}

func (i *Infra) Close() {
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			i.Logger.Error(err, "failed to close redis client")
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			i.Logger.Error(err, "failed to close database")
		}
	}
}

// Delivery is one process's queue with its enqueue service and worker.
type Delivery struct {
	Queue   *notification.Queue
	Service *notification.Service
	Worker  *notification.Worker
}

func (i *Infra) NewDelivery() (*Delivery, error) {
	cfg := i.Config

	renderer, err := templates.New(cfg.Server.PublicURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	sender, err := email.New(cfg.Email, i.Logger)
	if err != nil {
		return nil, err
	}

	repo := postgres.NewNotificationRepository(i.Base)
	queue := notification.NewQueue(i.Metrics.QueueDepth)
	svc := notification.NewService(queue, repo, renderer, cfg.Notification.MaxAttempts, i.Logger, i.Metrics)
	worker := notification.NewWorker(queue, repo, sender, i.Limiter, notification.WorkerConfig{
		PollInterval: cfg.Notification.PollInterval,
		SendTimeout:  cfg.Notification.SendTimeout,
		BaseBackoff:  cfg.Notification.BaseBackoff,
		MaxBackoff:   cfg.Notification.MaxBackoff,
		Jitter:       cfg.Notification.Jitter,
		RateIdentity: cfg.Notification.RateIdentity,
		RateClass:    i.Outbound,
		From:         cfg.Email.From,
		ReplyTo:      cfg.Email.ReplyTo,
	}, i.Logger, i.Metrics)

	return &Delivery{Queue: queue, Service: svc, Worker: worker}, nil
}
