// Package payment описывает платёжный шлюз, через который проходят все
// движения удерживаемых средств.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/domain/valueobject"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/repository"
)

var (
	ErrInsufficientFunds = errors.New("payment: insufficient funds")
	ErrIntentNotFound    = errors.New("payment: intent not found")
	ErrInvalidState      = errors.New("payment: intent is in wrong state")
	ErrExceedsHeld       = errors.New("payment: amount exceeds held funds")
	ErrInvalidAmount     = errors.New("payment: amount must be positive")
	ErrMissingKey        = errors.New("payment: idempotency key is required")
)

type IntentParams struct {
	PayerID        uuid.UUID
	Amount         float64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

type TransferParams struct {
	IntentID       string
	DestinationID  uuid.UUID
	Amount         float64
	Fee            float64
	IdempotencyKey string
}

type RefundParams struct {
	IntentID       string
	Amount         float64
	Reason         string
	IdempotencyKey string
}

// Gateway - платёжный провайдер: намерения оплаты, выплаты и возвраты.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*models.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	CreateTransfer(ctx context.Context, params TransferParams) (*models.PaymentTransfer, error)
	CreateRefund(ctx context.Context, params RefundParams) (*models.PaymentRefund, error)
}

// LedgerStore - хранилище леджера, с которым работает LedgerGateway.
type LedgerStore interface {
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
	CancelIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
	CreateTransfer(ctx context.Context, transfer *models.PaymentTransfer) (*models.PaymentTransfer, error)
	CreateRefund(ctx context.Context, refund *models.PaymentRefund) (*models.PaymentRefund, error)
}

// LedgerGateway реализует Gateway поверх внутреннего леджера в Postgres.
type LedgerGateway struct {
	store LedgerStore
}

func NewLedgerGateway(store LedgerStore) *LedgerGateway {
	return &LedgerGateway{store: store}
}

func (g *LedgerGateway) CreatePaymentIntent(ctx context.Context, params IntentParams) (*models.PaymentIntent, error) {
	if params.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, ErrMissingKey
	}
	money, err := valueobject.NewMoney(params.Amount, params.Currency)
	if err != nil {
		return nil, err
	}
	var metadata json.RawMessage
	if len(params.Metadata) > 0 {
		if metadata, err = json.Marshal(params.Metadata); err != nil {
			return nil, fmt.Errorf("payment: marshal metadata: %w", err)
		}
	}
	intent, err := g.store.CreateIntent(ctx, &models.PaymentIntent{
		ID:             newID("pi"),
		PayerID:        params.PayerID,
		Amount:         money.Amount,
		Currency:       money.Currency,
		IdempotencyKey: params.IdempotencyKey,
		Metadata:       metadata,
	})
	return intent, translate(err)
}

func (g *LedgerGateway) ConfirmPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	intent, err := g.store.ConfirmIntent(ctx, intentID)
	return intent, translate(err)
}

func (g *LedgerGateway) CancelPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	intent, err := g.store.CancelIntent(ctx, intentID)
	return intent, translate(err)
}

func (g *LedgerGateway) GetPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	intent, err := g.store.GetIntent(ctx, intentID)
	return intent, translate(err)
}

func (g *LedgerGateway) CreateTransfer(ctx context.Context, params TransferParams) (*models.PaymentTransfer, error) {
	if params.Amount <= 0 || params.Fee < 0 || params.Fee > params.Amount {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, ErrMissingKey
	}
	transfer, err := g.store.CreateTransfer(ctx, &models.PaymentTransfer{
		ID:             newID("tr"),
		IntentID:       params.IntentID,
		DestinationID:  params.DestinationID,
		Amount:         valueobject.RoundMoney(params.Amount),
		Fee:            valueobject.RoundMoney(params.Fee),
		IdempotencyKey: params.IdempotencyKey,
	})
	return transfer, translate(err)
}

func (g *LedgerGateway) CreateRefund(ctx context.Context, params RefundParams) (*models.PaymentRefund, error) {
	if params.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, ErrMissingKey
	}
	var reason *string
	if r := strings.TrimSpace(params.Reason); r != "" {
		reason = &r
	}
	refund, err := g.store.CreateRefund(ctx, &models.PaymentRefund{
		ID:             newID("re"),
		IntentID:       params.IntentID,
		Amount:         valueobject.RoundMoney(params.Amount),
		Reason:         reason,
		IdempotencyKey: params.IdempotencyKey,
	})
	return refund, translate(err)
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, repository.ErrIntentNotFound):
		return ErrIntentNotFound
	case errors.Is(err, repository.ErrIntentState):
		return ErrInvalidState
	case errors.Is(err, repository.ErrExceedsHeld):
		return ErrExceedsHeld
	default:
		return err
	}
}
