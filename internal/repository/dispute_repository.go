package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/repository/common"
)

var (
	ErrDisputeNotFound    = errors.New("dispute not found")
	ErrDisputeAlreadyOpen = errors.New("dispute already open")
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Open создаёт спор и переводит заказ в disputed одной транзакцией.
// Открытый спор по заказу может быть только один (уникальный индекс).
func (r *DisputeRepository) Open(ctx context.Context, d *models.Dispute, expectedStatus, expectedEscrow []string, event *models.OutboxEvent) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = 'disputed', updated_at = NOW()
			WHERE id = $1 AND status = ANY($2) AND escrow_status = ANY($3)
		`, d.OrderID, pq.Array(expectedStatus), pq.Array(expectedEscrow))
		if err != nil {
			return fmt.Errorf("dispute repository: mark order disputed %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrStateConflict
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO disputes (order_id, initiator_id, reason, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, d.OrderID, d.InitiatorID, d.Reason, d.Status).Scan(&d.ID, &d.CreatedAt)
		if err != nil {
			if common.IsUniqueViolation(err) {
				return ErrDisputeAlreadyOpen
			}
			return fmt.Errorf("dispute repository: create %w", err)
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dispute repository: get by id %w", err)
	}
	return &d, nil
}

// MarkResolved закрывает спор, если он ещё открыт.
func (r *DisputeRepository) MarkResolved(ctx context.Context, id uuid.UUID, outcome, resolution string, resolvedBy uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET status = $2, outcome = $3, resolution = $4, resolved_by = $5, resolved_at = NOW()
		WHERE id = $1 AND status = $6
	`, id, models.DisputeStatusResolved, outcome, resolution, resolvedBy, models.DisputeStatusOpen)
	if err != nil {
		return fmt.Errorf("dispute repository: resolve %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStateConflict
	}
	return nil
}

func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN orders o ON d.order_id = o.id
		WHERE o.buyer_id = $1 OR o.seller_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list by user %w", err)
	}
	return disputes, nil
}

// ListOpen возвращает открытые споры для администраторов.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status = $1 ORDER BY created_at LIMIT $2 OFFSET $3
	`, models.DisputeStatusOpen, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list open %w", err)
	}
	return disputes, nil
}
