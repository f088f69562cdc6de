package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Режимы offboarding участника
const (
	OffboardModeReassignDelete = "reassign_delete"
	OffboardModeSoftDelete     = "soft_delete"
	OffboardModeAnonymize      = "anonymize"
)

// ValidOffboardModes список допустимых режимов offboarding
var ValidOffboardModes = map[string]struct{}{
	OffboardModeReassignDelete: {},
	OffboardModeSoftDelete:     {},
	OffboardModeAnonymize:      {},
}

// Member - профиль участника foundry (таблица profiles).
type Member struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	FoundryID     uuid.UUID  `db:"foundry_id" json:"foundry_id"`
	FullName      string     `db:"full_name" json:"full_name"`
	Email         string     `db:"email" json:"email"`
	Role          string     `db:"role" json:"role"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// CanManageMembers сообщает, может ли участник выполнять offboarding.
func (m *Member) CanManageMembers() bool {
	return m.IsActive && (m.Role == FoundryRoleFounder || m.Role == FoundryRoleExecutive)
}

// IsFounder сообщает, является ли участник основателем.
func (m *Member) IsFounder() bool {
	return m.Role == FoundryRoleFounder
}

// OffboardRequest содержит параметры offboarding.
type OffboardRequest struct {
	ActorUserID uuid.UUID
	TargetID    uuid.UUID
	Mode        string
	Reason      string
}

// OffboardResult возвращает итог offboarding.
type OffboardResult struct {
	TargetID             uuid.UUID `json:"target_id"`
	Mode                 string    `json:"mode"`
	TasksReassigned      int64     `json:"tasks_reassigned"`
	ObjectivesReassigned int64     `json:"objectives_reassigned"`
	InvitationsCancelled int64     `json:"invitations_cancelled"`
	PermissionsRemoved   int64     `json:"permissions_removed"`
}

// AuditLogEntry - запись журнала административных действий foundry.
type AuditLogEntry struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	FoundryID uuid.UUID       `db:"foundry_id" json:"foundry_id"`
	ActorID   uuid.UUID       `db:"actor_id" json:"actor_id"`
	Action    string          `db:"action" json:"action"`
	TargetID  *uuid.UUID      `db:"target_id" json:"target_id,omitempty"`
	Details   json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
