package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification описывает событие, отправленное пользователю.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Event     string          `db:"event" json:"event"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// NotificationPreference хранит настройку канала для типа события.
type NotificationPreference struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Event     string    `db:"event" json:"event"`
	InApp     bool      `db:"in_app" json:"in_app"`
	Email     bool      `db:"email" json:"email"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
