package models

import (
	"time"

	"github.com/google/uuid"
)

// Лимит часов обучения в день
const MaxOTJTHoursPerDay = 8.0

// Enrollment - обучение ученика (apprenticeship) с наставником.
type Enrollment struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ApprenticeID      uuid.UUID  `db:"apprentice_id" json:"apprentice_id"`
	MentorID          *uuid.UUID `db:"mentor_id" json:"mentor_id,omitempty"`
	FoundryID         uuid.UUID  `db:"foundry_id" json:"foundry_id"`
	Programme         string     `db:"programme" json:"programme"`
	RequiredOTJTHours float64    `db:"required_otjt_hours" json:"required_otjt_hours"`
	Status            string     `db:"status" json:"status"`
	StartDate         time.Time  `db:"start_date" json:"start_date"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// OTJTLog - запись часов обучения вне рабочего процесса.
type OTJTLog struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	EnrollmentID  uuid.UUID  `db:"enrollment_id" json:"enrollment_id"`
	LogDate       time.Time  `db:"log_date" json:"log_date"`
	Hours         float64    `db:"hours" json:"hours"`
	ActivityType  string     `db:"activity_type" json:"activity_type"`
	Description   *string    `db:"description" json:"description,omitempty"`
	EvidencePath  *string    `db:"evidence_path" json:"evidence_path,omitempty"`
	Status        string     `db:"status" json:"status"`
	ReviewerID    *uuid.UUID `db:"reviewer_id" json:"reviewer_id,omitempty"`
	ReviewComment *string    `db:"review_comment" json:"review_comment,omitempty"`
	ReviewedAt    *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// OTJTSummary - прогресс по часам обучения.
type OTJTSummary struct {
	EnrollmentID   uuid.UUID `db:"enrollment_id" json:"enrollment_id"`
	RequiredHours  float64   `db:"required_hours" json:"required_hours"`
	ApprovedHours  float64   `db:"approved_hours" json:"approved_hours"`
	PendingHours   float64   `db:"pending_hours" json:"pending_hours"`
	QueriedHours   float64   `db:"queried_hours" json:"queried_hours"`
	RemainingHours float64   `db:"-" json:"remaining_hours"`
	PercentDone    float64   `db:"-" json:"percent_done"`
}
