package models

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilitySlot - статус одного дня в календаре исполнителя.
type AvailabilitySlot struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ProviderID uuid.UUID  `db:"provider_id" json:"provider_id"`
	Date       time.Time  `db:"date" json:"date"`
	Status     string     `db:"status" json:"status"`
	Source     string     `db:"source" json:"source"`
	BookedBy   *uuid.UUID `db:"booked_by" json:"booked_by,omitempty"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// BulkAvailabilityResult - итог массового обновления календаря.
type BulkAvailabilityResult struct {
	Updated      int      `json:"updated"`
	Skipped      int      `json:"skipped"`
	SkippedDates []string `json:"skipped_dates"`
}

// ToggleResult - итог переключения статуса дня.
type ToggleResult struct {
	Success   bool   `json:"success"`
	NewStatus string `json:"newStatus"`
	Error     string `json:"error,omitempty"`
}
