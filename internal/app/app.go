package app

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/fibhq/outbox-bridge/internal/config"
	"github.com/fibhq/outbox-bridge/internal/db"
	"github.com/fibhq/outbox-bridge/internal/dispatcher"
	"github.com/fibhq/outbox-bridge/internal/flow"
	"github.com/fibhq/outbox-bridge/internal/kafka"
	"github.com/fibhq/outbox-bridge/internal/logger"
	"github.com/fibhq/outbox-bridge/internal/repository"
	"github.com/fibhq/outbox-bridge/internal/routing"
	"github.com/fibhq/outbox-bridge/internal/secret"
	"github.com/fibhq/outbox-bridge/internal/service/outbox"
	"github.com/fibhq/outbox-bridge/internal/strategy"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// App wires configuration, connections, repositories and services into one
// runnable unit shared by the serve and worker commands. ClickHouse, Redis
// and Kafka are optional: an empty DSN/broker list disables the feature
// instead of failing startup.
type App struct {
	Cfg config.Config

	MySQL      *sqlx.DB
	ClickHouse *sqlx.DB      // nil when disabled
	Redis      *redis.Client // nil when disabled
	Producer   *kafka.Producer

	Events       repository.EventsRepository
	Deliveries   repository.DeliveriesRepository
	Destinations repository.DestinationsRepository
	DeliveryLog  repository.DeliveryLogRepository // nil when ClickHouse is disabled

	Bus        *flow.Bus
	Registry   *strategy.Registry
	Outbox     *outbox.Service
	Dispatcher *dispatcher.Dispatcher
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger.Init(cfg.LogLevel)
	log := logger.Log

	mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}

	a := &App{Cfg: cfg, MySQL: mysqlDB, Bus: flow.NewBus()}

	if cfg.ClickHouse.DSN != "" {
		chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:             cfg.ClickHouse.DSN,
			MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
			PingTimeout:     cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("clickhouse connect: %w", err)
		}
		a.ClickHouse = chDB
		a.DeliveryLog = repository.NewDeliveryLogRepository(chDB)
	}

	if cfg.Redis.Addr != "" {
		rds, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		a.Redis = rds
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.Producer = kafka.NewProducerFromConfig(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			RequiredAcks: cfg.Kafka.RequiredAcks,
		})
	}

	// repos (MySQL)
	a.Events = repository.NewEventsRepository(mysqlDB)
	a.Deliveries = repository.NewDeliveriesRepository(ctx, mysqlDB, log)
	a.Destinations = repository.NewDestinationsRepository(mysqlDB)

	// services
	resolver := routing.NewResolver(a.Destinations)
	a.Outbox = outbox.New(a.Events, a.Deliveries, resolver, log)

	httpClient := &nethttp.Client{Timeout: 30 * time.Second}

	strategies := []strategy.Strategy{
		strategy.NewWebhookStrategy(httpClient),
		strategy.NewCentrifugoStrategy(httpClient),
		strategy.NewSFTPStrategy(),
		strategy.NewFlowStrategy(a.Bus),
		strategy.NewNullStrategy(log),
	}
	if a.Producer != nil {
		strategies = append(strategies, strategy.NewQueueStrategy(a.Producer))
	}

	a.Registry, err = strategy.NewRegistry(strategies...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Dispatcher = dispatcher.New(
		a.Deliveries,
		a.Events,
		a.Outbox,
		secret.Default(),
		a.Registry,
		a.Bus,
		a.DeliveryLog,
		log,
		dispatcher.Options{
			BatchSize:   cfg.Outbox.BatchSize,
			LockSeconds: cfg.Outbox.LockSeconds,
			MaxAttempts: cfg.Outbox.MaxAttempts,
			WorkerID:    cfg.Outbox.WorkerID,
		},
	)

	return a, nil
}

// Close releases every connection the app owns. Safe to call on a partially
// constructed app.
func (a *App) Close() {
	if a.Producer != nil {
		_ = a.Producer.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.ClickHouse != nil {
		_ = a.ClickHouse.Close()
	}
	if a.MySQL != nil {
		_ = a.MySQL.Close()
	}
}
