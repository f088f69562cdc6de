package models

import (
	"time"

	"github.com/google/uuid"
)

// Order описывает заказ покупателя у продавца с удержанием оплаты (escrow).
// status и escrow_status отслеживаются независимо, но меняются одним
// UPDATE внутри транзакции.
type Order struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	BuyerID               uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	SellerID              uuid.UUID  `db:"seller_id" json:"seller_id"`
	ListingID             *uuid.UUID `db:"listing_id" json:"listing_id,omitempty"`
	Title                 string     `db:"title" json:"title"`
	TotalAmount           float64    `db:"total_amount" json:"total_amount"`
	Currency              string     `db:"currency" json:"currency"`
	Status                string     `db:"status" json:"status"`
	EscrowStatus          string     `db:"escrow_status" json:"escrow_status"`
	AmountReleased        float64    `db:"amount_released" json:"amount_released"`
	AmountRefunded        float64    `db:"amount_refunded" json:"amount_refunded"`
	PlatformFee           float64    `db:"platform_fee" json:"platform_fee"`
	StripePaymentIntentID *string    `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	CancellationReason    *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// IsParty сообщает, является ли пользователь покупателем или продавцом заказа.
func (o *Order) IsParty(userID uuid.UUID) bool {
	return o.BuyerID == userID || o.SellerID == userID
}

// HeldRemainder возвращает сумму, которая ещё удерживается платформой.
func (o *Order) HeldRemainder() float64 {
	rest := o.TotalAmount - o.AmountReleased - o.AmountRefunded
	if rest < 0 {
		return 0
	}
	return rest
}

// OrderMilestone - часть оплаты заказа, которая подтверждается отдельно.
type OrderMilestone struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	OrderID     uuid.UUID  `db:"order_id" json:"order_id"`
	Title       string     `db:"title" json:"title"`
	Amount      float64    `db:"amount" json:"amount"`
	Position    int        `db:"position" json:"position"`
	Status      string     `db:"status" json:"status"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	TransferID  *string    `db:"transfer_id" json:"transfer_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderTransition описывает атомарное изменение заказа: статусы, суммы и,
// при необходимости, статус этапа.
type OrderTransition struct {
	OrderID              uuid.UUID
	ExpectedStatus       []string
	ExpectedEscrowStatus []string
	// ExpectedReleased защищает от двух параллельных выплат, посчитанных от
	// одного и того же amount_released.
	ExpectedReleased   *float64
	Status             *string
	EscrowStatus       *string
	AddReleased        float64
	AddRefunded        float64
	AddPlatformFee     float64
	CancellationReason *string
	Milestone          *MilestoneTransition
	Event              *OutboxEvent
}

// MilestoneTransition переводит этап из ожидаемого статуса в новый.
type MilestoneTransition struct {
	MilestoneID    uuid.UUID
	ExpectedStatus string
	Status         string
	TransferID     *string
}

// PaymentStatus - сводка о платеже по заказу для клиента.
type PaymentStatus struct {
	OrderID         uuid.UUID        `json:"order_id"`
	OrderStatus     string           `json:"order_status"`
	EscrowStatus    string           `json:"escrow_status"`
	TotalAmount     float64          `json:"total_amount"`
	AmountReleased  float64          `json:"amount_released"`
	AmountRefunded  float64          `json:"amount_refunded"`
	HeldAmount      float64          `json:"held_amount"`
	PlatformFee     float64          `json:"platform_fee"`
	Currency        string           `json:"currency"`
	PaymentIntentID *string          `json:"payment_intent_id,omitempty"`
	IntentStatus    *string          `json:"intent_status,omitempty"`
	Milestones      []OrderMilestone `json:"milestones"`
	CheckedAt       time.Time        `json:"checked_at"`
}
