package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/centaur-backend/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository хранит in-app уведомления и настройки каналов
// по типам событий.
type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO notifications (user_id, event, payload, is_read)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, n.UserID, n.Event, n.Payload, n.IsRead).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("notification repository: create %w", err)
	}
	return nil
}

// List возвращает ленту пользователя, новые сверху.
func (r *NotificationRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	var items []models.Notification
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR is_read = FALSE)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("notification repository: list %w", err)
	}
	return items, nil
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	return ownRow(res, err, "mark as read")
}

func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID); err != nil {
		return fmt.Errorf("notification repository: mark all as read %w", err)
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	return ownRow(res, err, "delete")
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID); err != nil {
		return 0, fmt.Errorf("notification repository: count unread %w", err)
	}
	return count, nil
}

// GetPreference возвращает nil без ошибки, если пользователь не менял
// настройку события.
func (r *NotificationRepository) GetPreference(ctx context.Context, userID uuid.UUID, event string) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	err := r.db.GetContext(ctx, &pref, `SELECT * FROM notification_preferences WHERE user_id = $1 AND event = $2`, userID, event)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("notification repository: get preference %w", err)
	}
	return &pref, nil
}

func (r *NotificationRepository) ListPreferences(ctx context.Context, userID uuid.UUID) ([]models.NotificationPreference, error) {
	var prefs []models.NotificationPreference
	if err := r.db.SelectContext(ctx, &prefs, `SELECT * FROM notification_preferences WHERE user_id = $1 ORDER BY event`, userID); err != nil {
		return nil, fmt.Errorf("notification repository: list preferences %w", err)
	}
	return prefs, nil
}

func (r *NotificationRepository) UpsertPreference(ctx context.Context, pref *models.NotificationPreference) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO notification_preferences (user_id, event, in_app, email, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, event) DO UPDATE
		SET in_app = EXCLUDED.in_app, email = EXCLUDED.email, updated_at = NOW()
		RETURNING updated_at
	`, pref.UserID, pref.Event, pref.InApp, pref.Email).Scan(&pref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("notification repository: upsert preference %w", err)
	}
	return nil
}

// ownRow проверяет, что запрос задел уведомление самого пользователя.
// Чужое и несуществующее уведомление неразличимы.
func ownRow(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("notification repository: %s %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("notification repository: %s rows affected %w", op, err)
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
