package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Статусы платёжного намерения
const (
	IntentStatusRequiresConfirmation = "requires_confirmation"
	IntentStatusSucceeded            = "succeeded"
	IntentStatusCancelled            = "cancelled"
)

// Типы транзакций
const (
	TransactionTypeDeposit       = "deposit"
	TransactionTypeEscrowHold    = "escrow_hold"
	TransactionTypeEscrowRelease = "escrow_release"
	TransactionTypeEscrowRefund  = "escrow_refund"
	TransactionTypePlatformFee   = "platform_fee"
)

// Статусы транзакций
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// UserBalance представляет баланс пользователя.
type UserBalance struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Available float64   `db:"available" json:"available"`
	Frozen    float64   `db:"frozen" json:"frozen"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction представляет финансовую транзакцию.
type Transaction struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	IntentID    *string    `db:"intent_id" json:"intent_id,omitempty"`
	Type        string     `db:"type" json:"type"`
	Amount      float64    `db:"amount" json:"amount"`
	Status      string     `db:"status" json:"status"`
	Description *string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// PaymentIntent - намерение оплаты во внутреннем леджере платформы.
type PaymentIntent struct {
	ID                string          `db:"id" json:"id"`
	PayerID           uuid.UUID       `db:"payer_id" json:"payer_id"`
	Amount            float64         `db:"amount" json:"amount"`
	Currency          string          `db:"currency" json:"currency"`
	Status            string          `db:"status" json:"status"`
	AmountTransferred float64         `db:"amount_transferred" json:"amount_transferred"`
	AmountRefunded    float64         `db:"amount_refunded" json:"amount_refunded"`
	IdempotencyKey    string          `db:"idempotency_key" json:"-"`
	Metadata          json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	ConfirmedAt       *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
}

// Remaining возвращает ещё не распределённую часть удержания.
func (p *PaymentIntent) Remaining() float64 {
	rest := p.Amount - p.AmountTransferred - p.AmountRefunded
	if rest < 0 {
		return 0
	}
	return rest
}

// PaymentTransfer - выплата получателю из удержания.
type PaymentTransfer struct {
	ID             string    `db:"id" json:"id"`
	IntentID       string    `db:"intent_id" json:"intent_id"`
	DestinationID  uuid.UUID `db:"destination_id" json:"destination_id"`
	Amount         float64   `db:"amount" json:"amount"`
	Fee            float64   `db:"fee" json:"fee"`
	IdempotencyKey string    `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// PaymentRefund - возврат удержанных средств плательщику.
type PaymentRefund struct {
	ID             string    `db:"id" json:"id"`
	IntentID       string    `db:"intent_id" json:"intent_id"`
	Amount         float64   `db:"amount" json:"amount"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	IdempotencyKey string    `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
