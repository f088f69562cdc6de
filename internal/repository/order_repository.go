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

// OrderRepository отвечает за заказы и их этапы.
type OrderRepository struct {
	db *sqlx.DB
}

// Ошибки уровня репозитория.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrMilestoneNotFound = errors.New("milestone not found")
	// ErrStateConflict - условное обновление не нашло строку в ожидаемом
	// состоянии: её уже изменил параллельный запрос.
	ErrStateConflict = errors.New("state changed concurrently")
)

const orderColumns = `id, buyer_id, seller_id, listing_id, title, total_amount, currency, status, escrow_status,
	amount_released, amount_refunded, platform_fee, stripe_payment_intent_id, cancellation_reason, created_at, updated_at`

// NewOrderRepository создаёт новый экземпляр.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create сохраняет заказ вместе с этапами одной транзакцией.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order, milestones []models.OrderMilestone, event *models.OutboxEvent) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, order, `
			INSERT INTO orders (buyer_id, seller_id, listing_id, title, total_amount, currency, status, escrow_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+orderColumns,
			order.BuyerID, order.SellerID, order.ListingID, order.Title, order.TotalAmount, order.Currency,
			order.Status, order.EscrowStatus,
		)
		if err != nil {
			return fmt.Errorf("order repository: create %w", err)
		}

		if len(milestones) > 0 {
			inserter := common.NewBatchInserter(tx, `INSERT INTO order_milestones (id, order_id, title, amount, position, status)`, 6, 100)
			for i := range milestones {
				m := &milestones[i]
				m.ID = uuid.New()
				m.OrderID = order.ID
				m.Position = i
				if err := inserter.Add(ctx, m.ID, m.OrderID, m.Title, m.Amount, m.Position, m.Status); err != nil {
					return fmt.Errorf("order repository: add milestone %w", err)
				}
			}
			if err := inserter.Flush(ctx); err != nil {
				return fmt.Errorf("order repository: insert milestones %w", err)
			}
		}

		if event != nil {
			event.AggregateID = order.ID
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

// GetByID возвращает заказ по идентификатору.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: get by id %w", err)
	}
	return &order, nil
}

// GetByPaymentIntent возвращает заказ по идентификатору намерения оплаты.
func (r *OrderRepository) GetByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE stripe_payment_intent_id = $1`
	if err := r.db.GetContext(ctx, &order, query, intentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: get by intent %w", err)
	}
	return &order, nil
}

// ListByUser возвращает заказы пользователя; role = buyer|seller сужает выборку.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, role string, limit, offset int) ([]models.Order, error) {
	where := `buyer_id = $1 OR seller_id = $1`
	switch role {
	case "buyer":
		where = `buyer_id = $1`
	case "seller":
		where = `seller_id = $1`
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where + ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("order repository: list by user %w", err)
	}
	return orders, nil
}

// ListMilestones возвращает этапы заказа по порядку.
func (r *OrderRepository) ListMilestones(ctx context.Context, orderID uuid.UUID) ([]models.OrderMilestone, error) {
	var milestones []models.OrderMilestone
	query := `SELECT * FROM order_milestones WHERE order_id = $1 ORDER BY position`
	if err := r.db.SelectContext(ctx, &milestones, query, orderID); err != nil {
		return nil, fmt.Errorf("order repository: list milestones %w", err)
	}
	return milestones, nil
}

// GetMilestone возвращает этап по идентификатору.
func (r *OrderRepository) GetMilestone(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error) {
	var m models.OrderMilestone
	if err := r.db.GetContext(ctx, &m, `SELECT * FROM order_milestones WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("order repository: get milestone %w", err)
	}
	return &m, nil
}

// AttachPaymentIntent сохраняет намерение оплаты, пока заказ ещё не оплачен.
func (r *OrderRepository) AttachPaymentIntent(ctx context.Context, orderID uuid.UUID, intentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET stripe_payment_intent_id = $2, updated_at = NOW()
		WHERE id = $1 AND escrow_status = 'pending' AND status IN ('pending', 'accepted')
	`, orderID, intentID)
	if err != nil {
		return fmt.Errorf("order repository: attach intent %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStateConflict
	}
	return nil
}

// ApplyTransition атомарно меняет статусы и суммы заказа, статус этапа и
// пишет событие в outbox. Обновление условное: если заказ (или этап) уже не
// в ожидаемом состоянии, возвращается ErrStateConflict и ничего не меняется.
func (r *OrderRepository) ApplyTransition(ctx context.Context, t models.OrderTransition) (*models.Order, error) {
	var order models.Order
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &order, `
			UPDATE orders SET
				status = COALESCE($2, status),
				escrow_status = COALESCE($3, escrow_status),
				amount_released = amount_released + $4,
				amount_refunded = amount_refunded + $5,
				platform_fee = platform_fee + $6,
				cancellation_reason = COALESCE($7, cancellation_reason),
				updated_at = NOW()
			WHERE id = $1
			  AND ($8::text[] IS NULL OR status = ANY($8))
			  AND ($9::text[] IS NULL OR escrow_status = ANY($9))
			  AND ($10::numeric IS NULL OR amount_released = $10)
			RETURNING `+orderColumns,
			t.OrderID, t.Status, t.EscrowStatus, t.AddReleased, t.AddRefunded, t.AddPlatformFee,
			t.CancellationReason, pq.Array(t.ExpectedStatus), pq.Array(t.ExpectedEscrowStatus), t.ExpectedReleased,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return r.conflictOrMissing(ctx, tx, t.OrderID)
		}
		if err != nil {
			return fmt.Errorf("order repository: apply transition %w", err)
		}

		if m := t.Milestone; m != nil {
			res, err := tx.ExecContext(ctx, `
				UPDATE order_milestones SET
					status = $3,
					submitted_at = CASE WHEN $3 = 'submitted' THEN NOW() ELSE submitted_at END,
					approved_at = CASE WHEN $3 IN ('approved', 'paid') THEN COALESCE(approved_at, NOW()) ELSE approved_at END,
					paid_at = CASE WHEN $3 = 'paid' THEN NOW() ELSE paid_at END,
					transfer_id = COALESCE($4, transfer_id),
					updated_at = NOW()
				WHERE id = $1 AND order_id = $5 AND status = $2
			`, m.MilestoneID, m.ExpectedStatus, m.Status, m.TransferID, t.OrderID)
			if err != nil {
				return fmt.Errorf("order repository: milestone transition %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrStateConflict
			}
		}

		return insertOutboxEvent(ctx, tx, t.Event)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) conflictOrMissing(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID); err != nil {
		return fmt.Errorf("order repository: check exists %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrStateConflict
}
