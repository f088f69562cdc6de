package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/centaur-backend/internal/config"
	"github.com/ignatzorin/centaur-backend/internal/db"
	"github.com/ignatzorin/centaur-backend/internal/logger"
	"github.com/ignatzorin/centaur-backend/internal/metrics"
	"github.com/ignatzorin/centaur-backend/internal/outbox"
	"github.com/ignatzorin/centaur-backend/internal/repository"
)

// app держит общие для всех команд ресурсы процесса.
type app struct {
	cfg     *config.Config
	db      *sqlx.DB
	redis   *redis.Client
	metrics *metrics.Collector
	closers []func() error
}

// bootstrap читает конфигурацию, настраивает логгер и подключается к базе.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cfg.IsProduction() {
		logger.Init("info")
	} else {
		logger.Init("debug")
		logger.SetTextFormatter()
	}

	conn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: conn}
	a.closers = append(a.closers, conn.Close)

	rdb, err := db.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		a.close()
		return nil, err
	}
	if rdb != nil {
		a.redis = rdb
		a.closers = append(a.closers, rdb.Close)
	}

	if cfg.MetricsEnabled {
		a.metrics = metrics.NewCollector()
	}
	return a, nil
}

// newRelay собирает релей outbox: Kafka, если заданы брокеры, иначе лог.
func (a *app) newRelay() *outbox.Relay {
	var publisher outbox.Publisher
	if len(a.cfg.KafkaBrokers) > 0 {
		kafka := outbox.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		a.closers = append(a.closers, kafka.Close)
		publisher = kafka
	} else {
		logger.For("outbox").Warn("KAFKA_BROKERS не заданы, события пишутся только в лог")
		publisher = outbox.NewLogPublisher()
	}

	var m outbox.Metrics
	if a.metrics != nil {
		m = a.metrics
	}
	return outbox.NewRelay(repository.NewOutboxRepository(a.db), publisher, m, a.cfg.OutboxPollInterval, a.cfg.OutboxBatchSize)
}

// close освобождает ресурсы в обратном порядке.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.For("main").WithError(err).Warn("ошибка при закрытии ресурса")
		}
	}
}

func requireNoPending(ctx context.Context, a *app) error {
	pending, err := db.PendingMigrations(ctx, a.db, a.cfg.MigrationsPath)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("есть непримененные миграции: %v, выполните centaur migrate", pending)
	}
	return nil
}
