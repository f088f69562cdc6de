package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/repository/common"
)

// OutboxRepository хранит доменные события до их публикации в шину.
type OutboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Append записывает событие вне доменной транзакции.
func (r *OutboxRepository) Append(ctx context.Context, event *models.OutboxEvent) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		return insertOutboxEvent(ctx, tx, event)
	})
}

// ProcessBatch блокирует до limit неопубликованных событий (SKIP LOCKED,
// чтобы несколько релеев не брали одни и те же строки), передаёт их в fn и
// отмечает опубликованные в той же транзакции. fn возвращает идентификаторы
// успешно опубликованных событий и ошибки по остальным.
func (r *OutboxRepository) ProcessBatch(ctx context.Context, limit int, fn func([]models.OutboxEvent) (published []uuid.UUID, failed map[uuid.UUID]error)) (int, error) {
	processed := 0
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var events []models.OutboxEvent
		err := tx.SelectContext(ctx, &events, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, attempts, last_error, created_at, published_at
			FROM outbox_events
			WHERE published_at IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return fmt.Errorf("outbox repository: fetch batch %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		published, failed := fn(events)
		if len(published) > 0 {
			ids := make([]string, 0, len(published))
			for _, id := range published {
				ids = append(ids, id.String())
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE outbox_events SET published_at = NOW(), attempts = attempts + 1, last_error = NULL
				WHERE id = ANY($1::uuid[])
			`, pq.Array(ids)); err != nil {
				return fmt.Errorf("outbox repository: mark published %w", err)
			}
		}
		for id, cause := range failed {
			if _, err := tx.ExecContext(ctx, `
				UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1
			`, id, cause.Error()); err != nil {
				return fmt.Errorf("outbox repository: mark failed %w", err)
			}
		}
		processed = len(published)
		return nil
	})
	return processed, err
}

// CountPending возвращает число неопубликованных событий.
func (r *OutboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL`); err != nil {
		return 0, fmt.Errorf("outbox repository: count pending %w", err)
	}
	return n, nil
}

func insertOutboxEvent(ctx context.Context, tx *sqlx.Tx, event *models.OutboxEvent) error {
	if event == nil {
		return nil
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Payload).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
