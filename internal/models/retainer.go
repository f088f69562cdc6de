package models

import (
	"time"

	"github.com/google/uuid"
)

// ProviderProfile связывает профиль исполнителя с учётной записью.
type ProviderProfile struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	HourlyRate  *float64  `db:"hourly_rate" json:"hourly_rate,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Retainer - регулярная недельная загрузка исполнителя покупателем.
type Retainer struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	BuyerID               uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	ProviderProfileID     uuid.UUID  `db:"provider_profile_id" json:"provider_profile_id"`
	SellerID              uuid.UUID  `db:"seller_id" json:"seller_id"`
	Title                 string     `db:"title" json:"title"`
	WeeklyHours           float64    `db:"weekly_hours" json:"weekly_hours"`
	HourlyRate            float64    `db:"hourly_rate" json:"hourly_rate"`
	Currency              string     `db:"currency" json:"currency"`
	Status                string     `db:"status" json:"status"`
	StartedAt             *time.Time `db:"started_at" json:"started_at,omitempty"`
	PausedAt              *time.Time `db:"paused_at" json:"paused_at,omitempty"`
	CancelledBy           *uuid.UUID `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason    *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancellationEffective *time.Time `db:"cancellation_effective" json:"cancellation_effective,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// IsParty сообщает, является ли пользователь стороной ретейнера.
func (r *Retainer) IsParty(userID uuid.UUID) bool {
	return r.BuyerID == userID || r.SellerID == userID
}

// TimesheetEntry - отработанные часы за неделю по ретейнеру.
type TimesheetEntry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	RetainerID  uuid.UUID  `db:"retainer_id" json:"retainer_id"`
	WeekStart   time.Time  `db:"week_start" json:"week_start"`
	HoursLogged float64    `db:"hours_logged" json:"hours_logged"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      string     `db:"status" json:"status"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	TransferID  *string    `db:"transfer_id" json:"transfer_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// TimesheetUpsert - результат записи часов за неделю.
type TimesheetUpsert struct {
	Entry          *TimesheetEntry `json:"entry"`
	Overwritten    bool            `json:"overwritten"`
	PreviousStatus *string         `json:"previous_status,omitempty"`
	PreviousHours  *float64        `json:"previous_hours,omitempty"`
}

// RetainerTransition описывает условную смену статуса ретейнера.
type RetainerTransition struct {
	RetainerID            uuid.UUID
	ExpectedStatus        []string
	Status                string
	CancelledBy           *uuid.UUID
	CancellationReason    *string
	CancellationEffective *time.Time
	Event                 *OutboxEvent
}

// TimesheetTransition описывает условную смену статуса записи табеля.
type TimesheetTransition struct {
	EntryID        uuid.UUID
	ExpectedStatus string
	Status         string
	TransferID     *string
	Event          *OutboxEvent
}
