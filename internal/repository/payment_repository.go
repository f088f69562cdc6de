package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/repository/common"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrIntentNotFound    = errors.New("payment intent not found")
	ErrIntentState       = errors.New("payment intent is in wrong state")
	ErrExceedsHeld       = errors.New("amount exceeds held remainder")
)

// PlatformAccountID - счёт платформы в леджере, на него зачисляется комиссия.
var PlatformAccountID = uuid.Nil

const intentColumns = `id, payer_id, amount, currency, status, amount_transferred, amount_refunded,
	idempotency_key, metadata, created_at, confirmed_at`

// PaymentRepository хранит леджер платформы: балансы, намерения оплаты,
// выплаты и возвраты. Каждая операция выполняется одной транзакцией.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// GetBalance возвращает баланс пользователя, создаёт если не существует.
func (r *PaymentRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	var balance models.UserBalance
	query := `
		INSERT INTO user_balances (user_id, available, frozen)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING user_id, available, frozen, updated_at
	`
	if err := r.db.GetContext(ctx, &balance, query, userID); err != nil {
		return nil, fmt.Errorf("payment repository: get balance %w", err)
	}
	return &balance, nil
}

// Deposit пополняет баланс пользователя.
func (r *PaymentRepository) Deposit(ctx context.Context, userID uuid.UUID, amount float64, description string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := credit(ctx, tx, userID, amount); err != nil {
			return fmt.Errorf("payment repository: deposit update balance %w", err)
		}
		t, err := insertTransaction(ctx, tx, userID, nil, models.TransactionTypeDeposit, amount, description)
		if err != nil {
			return fmt.Errorf("payment repository: deposit create transaction %w", err)
		}
		transaction = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// ListTransactions возвращает историю операций пользователя.
func (r *PaymentRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	query := `
		SELECT id, user_id, intent_id, type, amount, status, description, created_at, completed_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &transactions, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("payment repository: list transactions %w", err)
	}
	return transactions, nil
}

// CreateIntent создаёт намерение оплаты. Повторный вызов с тем же ключом
// идемпотентности возвращает исходное намерение.
func (r *PaymentRepository) CreateIntent(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	var created models.PaymentIntent
	query := `
		INSERT INTO payment_intents (id, payer_id, amount, currency, status, idempotency_key, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + intentColumns
	err := r.db.GetContext(ctx, &created, query,
		intent.ID, intent.PayerID, intent.Amount, intent.Currency, models.IntentStatusRequiresConfirmation,
		intent.IdempotencyKey, intent.Metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r.getIntentByKey(ctx, intent.IdempotencyKey)
	}
	if err != nil {
		return nil, fmt.Errorf("payment repository: create intent %w", err)
	}
	return &created, nil
}

func (r *PaymentRepository) getIntentByKey(ctx context.Context, key string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE idempotency_key = $1`
	if err := r.db.GetContext(ctx, &intent, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("payment repository: get intent by key %w", err)
	}
	return &intent, nil
}

// GetIntent возвращает намерение оплаты по идентификатору.
func (r *PaymentRepository) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1`
	if err := r.db.GetContext(ctx, &intent, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("payment repository: get intent %w", err)
	}
	return &intent, nil
}

// ConfirmIntent списывает сумму с доступного баланса плательщика в удержание.
// Уже подтверждённое намерение возвращается без изменений.
func (r *PaymentRepository) ConfirmIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var intent *models.PaymentIntent
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		locked, err := lockIntent(ctx, tx, id)
		if err != nil {
			return err
		}
		intent = locked
		switch intent.Status {
		case models.IntentStatusSucceeded:
			return nil
		case models.IntentStatusCancelled:
			return ErrIntentState
		}

		var balance models.UserBalance
		err = tx.GetContext(ctx, &balance,
			`SELECT user_id, available, frozen, updated_at FROM user_balances WHERE user_id = $1 FOR UPDATE`, intent.PayerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientFunds
			}
			return fmt.Errorf("payment repository: lock balance %w", err)
		}
		if balance.Available < intent.Amount {
			return ErrInsufficientFunds
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE user_balances SET available = available - $2, frozen = frozen + $2, updated_at = NOW()
			WHERE user_id = $1
		`, intent.PayerID, intent.Amount); err != nil {
			return fmt.Errorf("payment repository: freeze funds %w", err)
		}
		if _, err := insertTransaction(ctx, tx, intent.PayerID, &intent.ID, models.TransactionTypeEscrowHold, intent.Amount, "Удержание оплаты заказа"); err != nil {
			return fmt.Errorf("payment repository: hold transaction %w", err)
		}

		err = tx.GetContext(ctx, intent, `
			UPDATE payment_intents SET status = $2, confirmed_at = NOW()
			WHERE id = $1
			RETURNING `+intentColumns, intent.ID, models.IntentStatusSucceeded)
		if err != nil {
			return fmt.Errorf("payment repository: confirm intent %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// CancelIntent отменяет неподтверждённое намерение.
func (r *PaymentRepository) CancelIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var intent *models.PaymentIntent
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		locked, err := lockIntent(ctx, tx, id)
		if err != nil {
			return err
		}
		intent = locked
		switch intent.Status {
		case models.IntentStatusCancelled:
			return nil
		case models.IntentStatusSucceeded:
			return ErrIntentState
		}
		err = tx.GetContext(ctx, intent, `
			UPDATE payment_intents SET status = $2 WHERE id = $1
			RETURNING `+intentColumns, intent.ID, models.IntentStatusCancelled)
		if err != nil {
			return fmt.Errorf("payment repository: cancel intent %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// CreateTransfer выплачивает получателю часть удержания за вычетом комиссии,
// комиссия зачисляется на счёт платформы.
func (r *PaymentRepository) CreateTransfer(ctx context.Context, transfer *models.PaymentTransfer) (*models.PaymentTransfer, error) {
	var result models.PaymentTransfer
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &result, `SELECT * FROM payment_transfers WHERE idempotency_key = $1`, transfer.IdempotencyKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment repository: find transfer %w", err)
		}

		intent, err := lockIntent(ctx, tx, transfer.IntentID)
		if err != nil {
			return err
		}
		if intent.Status != models.IntentStatusSucceeded {
			return ErrIntentState
		}
		if transfer.Amount > intent.Remaining()+0.000001 {
			return ErrExceedsHeld
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE user_balances SET frozen = frozen - $2, updated_at = NOW() WHERE user_id = $1
		`, intent.PayerID, transfer.Amount); err != nil {
			return fmt.Errorf("payment repository: unfreeze funds %w", err)
		}
		net := transfer.Amount - transfer.Fee
		if err := credit(ctx, tx, transfer.DestinationID, net); err != nil {
			return fmt.Errorf("payment repository: credit destination %w", err)
		}
		if _, err := insertTransaction(ctx, tx, transfer.DestinationID, &intent.ID, models.TransactionTypeEscrowRelease, net, "Выплата по заказу"); err != nil {
			return fmt.Errorf("payment repository: release transaction %w", err)
		}
		if transfer.Fee > 0 {
			if err := credit(ctx, tx, PlatformAccountID, transfer.Fee); err != nil {
				return fmt.Errorf("payment repository: credit platform %w", err)
			}
			if _, err := insertTransaction(ctx, tx, PlatformAccountID, &intent.ID, models.TransactionTypePlatformFee, transfer.Fee, "Комиссия платформы"); err != nil {
				return fmt.Errorf("payment repository: fee transaction %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE payment_intents SET amount_transferred = amount_transferred + $2 WHERE id = $1`,
			intent.ID, transfer.Amount); err != nil {
			return fmt.Errorf("payment repository: update intent %w", err)
		}
		err = tx.GetContext(ctx, &result, `
			INSERT INTO payment_transfers (id, intent_id, destination_id, amount, fee, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING *
		`, transfer.ID, intent.ID, transfer.DestinationID, transfer.Amount, transfer.Fee, transfer.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("payment repository: insert transfer %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateRefund возвращает часть удержания плательщику.
func (r *PaymentRepository) CreateRefund(ctx context.Context, refund *models.PaymentRefund) (*models.PaymentRefund, error) {
	var result models.PaymentRefund
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &result, `SELECT * FROM payment_refunds WHERE idempotency_key = $1`, refund.IdempotencyKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment repository: find refund %w", err)
		}

		intent, err := lockIntent(ctx, tx, refund.IntentID)
		if err != nil {
			return err
		}
		if intent.Status != models.IntentStatusSucceeded {
			return ErrIntentState
		}
		if refund.Amount > intent.Remaining()+0.000001 {
			return ErrExceedsHeld
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE user_balances SET frozen = frozen - $2, available = available + $2, updated_at = NOW()
			WHERE user_id = $1
		`, intent.PayerID, refund.Amount); err != nil {
			return fmt.Errorf("payment repository: refund balance %w", err)
		}
		if _, err := insertTransaction(ctx, tx, intent.PayerID, &intent.ID, models.TransactionTypeEscrowRefund, refund.Amount, "Возврат удержанных средств"); err != nil {
			return fmt.Errorf("payment repository: refund transaction %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE payment_intents SET amount_refunded = amount_refunded + $2 WHERE id = $1`,
			intent.ID, refund.Amount); err != nil {
			return fmt.Errorf("payment repository: update intent %w", err)
		}
		err = tx.GetContext(ctx, &result, `
			INSERT INTO payment_refunds (id, intent_id, amount, reason, idempotency_key)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING *
		`, refund.ID, intent.ID, refund.Amount, refund.Reason, refund.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("payment repository: insert refund %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func lockIntent(ctx context.Context, tx *sqlx.Tx, id string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &intent, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("payment repository: lock intent %w", err)
	}
	return &intent, nil
}

func credit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount float64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_balances (user_id, available, frozen)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO UPDATE SET available = user_balances.available + $2, updated_at = NOW()
	`, userID, amount)
	return err
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, intentID *string, kind string, amount float64, description string) (*models.Transaction, error) {
	var t models.Transaction
	err := tx.GetContext(ctx, &t, `
		INSERT INTO transactions (user_id, intent_id, type, amount, status, description, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, user_id, intent_id, type, amount, status, description, created_at, completed_at
	`, userID, intentID, kind, amount, models.TransactionStatusCompleted, description)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
