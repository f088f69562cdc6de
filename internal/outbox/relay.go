// Package outbox доставляет доменные события из таблицы outbox_events в шину.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/centaur-backend/internal/logger"
	"github.com/ignatzorin/centaur-backend/internal/models"
)

// Store описывает хранилище событий, которое нужно релею.
type Store interface {
	ProcessBatch(ctx context.Context, limit int, fn func([]models.OutboxEvent) ([]uuid.UUID, map[uuid.UUID]error)) (int, error)
	CountPending(ctx context.Context) (int, error)
}

// Publisher отправляет одно событие во внешнюю систему.
type Publisher interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

// Metrics принимает результаты доставки. Реализуется metrics.Collector.
type Metrics interface {
	OutboxPublished(published, failed int)
	OutboxPending(n int)
}

// Relay периодически вычитывает неопубликованные события и публикует их.
// Доставка at-least-once: событие, упавшее на публикации, останется в
// таблице и будет взято следующей пачкой.
type Relay struct {
	store     Store
	publisher Publisher
	metrics   Metrics
	interval  time.Duration
	batchSize int
	log       *logrus.Entry
}

// NewRelay создаёт релей. metrics может быть nil.
func NewRelay(store Store, publisher Publisher, metrics Metrics, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		interval:  interval,
		batchSize: batchSize,
		log:       logger.For("outbox"),
	}
}

// Run крутит цикл до отмены контекста.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.WithFields(logrus.Fields{
		"interval":   r.interval.String(),
		"batch_size": r.batchSize,
	}).Info("outbox relay запущен")

	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.log.WithError(err).Error("ошибка обработки пачки outbox")
		}
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay остановлен")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick обрабатывает одну пачку и возвращает число опубликованных событий.
// Пока пачка заполнена целиком, берётся следующая.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	total := 0
	for {
		var batchLen, failedCount int
		n, err := r.store.ProcessBatch(ctx, r.batchSize, func(events []models.OutboxEvent) ([]uuid.UUID, map[uuid.UUID]error) {
			batchLen = len(events)
			published := make([]uuid.UUID, 0, len(events))
			failed := make(map[uuid.UUID]error)
			for _, event := range events {
				if err := r.publisher.Publish(ctx, event); err != nil {
					failed[event.ID] = err
					r.log.WithFields(logrus.Fields{
						"event_id":   event.ID,
						"event_type": event.EventType,
						"attempts":   event.Attempts + 1,
					}).WithError(err).Warn("событие не опубликовано")
					continue
				}
				published = append(published, event.ID)
			}
			failedCount = len(failed)
			return published, failed
		})
		if err != nil {
			return total, err
		}
		total += n
		if r.metrics != nil {
			r.metrics.OutboxPublished(n, failedCount)
		}
		if batchLen < r.batchSize || failedCount > 0 || ctx.Err() != nil {
			break
		}
	}

	if r.metrics != nil {
		if pending, err := r.store.CountPending(ctx); err == nil {
			r.metrics.OutboxPending(pending)
		}
	}
	return total, nil
}
