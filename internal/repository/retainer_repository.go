package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/repository/common"
)

var (
	ErrRetainerNotFound        = errors.New("retainer not found")
	ErrProviderProfileNotFound = errors.New("provider profile not found")
	ErrTimesheetNotFound       = errors.New("timesheet entry not found")
	ErrTimesheetLocked         = errors.New("timesheet entry already paid")
)

const retainerSelect = `
	SELECT r.id, r.buyer_id, r.provider_profile_id, pp.user_id AS seller_id, r.title, r.weekly_hours,
	       r.hourly_rate, r.currency, r.status, r.started_at, r.paused_at, r.cancelled_by,
	       r.cancellation_reason, r.cancellation_effective, r.created_at, r.updated_at
	FROM retainers r
	JOIN provider_profiles pp ON pp.id = r.provider_profile_id
`

// RetainerRepository отвечает за ретейнеры и недельные табели.
type RetainerRepository struct {
	db *sqlx.DB
}

func NewRetainerRepository(db *sqlx.DB) *RetainerRepository {
	return &RetainerRepository{db: db}
}

// GetProviderProfile возвращает профиль исполнителя.
func (r *RetainerRepository) GetProviderProfile(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error) {
	return common.GetByID[models.ProviderProfile](ctx, r.db, "provider_profiles", id, ErrProviderProfileNotFound)
}

// Create сохраняет ретейнер в статусе pending.
func (r *RetainerRepository) Create(ctx context.Context, retainer *models.Retainer, event *models.OutboxEvent) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO retainers (buyer_id, provider_profile_id, title, weekly_hours, hourly_rate, currency, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at
		`, retainer.BuyerID, retainer.ProviderProfileID, retainer.Title, retainer.WeeklyHours,
			retainer.HourlyRate, retainer.Currency, retainer.Status,
		).Scan(&retainer.ID, &retainer.CreatedAt, &retainer.UpdatedAt)
		if err != nil {
			return fmt.Errorf("retainer repository: create %w", err)
		}
		if event != nil {
			event.AggregateID = retainer.ID
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

// GetByID возвращает ретейнер вместе с идентификатором пользователя-исполнителя.
func (r *RetainerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Retainer, error) {
	return getRetainer(ctx, r.db, id)
}

// ListByUser возвращает ретейнеры, где пользователь покупатель или исполнитель.
func (r *RetainerRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Retainer, error) {
	var retainers []models.Retainer
	query := retainerSelect + ` WHERE r.buyer_id = $1 OR pp.user_id = $1 ORDER BY r.created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &retainers, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("retainer repository: list by user %w", err)
	}
	return retainers, nil
}

// Transition условно меняет статус ретейнера. Если статус уже не из
// ExpectedStatus, возвращается ErrStateConflict.
func (r *RetainerRepository) Transition(ctx context.Context, t models.RetainerTransition) (*models.Retainer, error) {
	var retainer *models.Retainer
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE retainers SET
				status = $3,
				started_at = CASE WHEN $3 = 'active' THEN COALESCE(started_at, NOW()) ELSE started_at END,
				paused_at = CASE WHEN $3 = 'paused' THEN NOW() WHEN $3 = 'active' THEN NULL ELSE paused_at END,
				cancelled_by = COALESCE($4, cancelled_by),
				cancellation_reason = COALESCE($5, cancellation_reason),
				cancellation_effective = COALESCE($6, cancellation_effective),
				updated_at = NOW()
			WHERE id = $1 AND status = ANY($2)
		`, t.RetainerID, pq.Array(t.ExpectedStatus), t.Status, t.CancelledBy, t.CancellationReason, t.CancellationEffective)
		if err != nil {
			return fmt.Errorf("retainer repository: transition %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := getRetainer(ctx, tx, t.RetainerID); err != nil {
				return err
			}
			return ErrStateConflict
		}
		if retainer, err = getRetainer(ctx, tx, t.RetainerID); err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, t.Event)
	})
	if err != nil {
		return nil, err
	}
	return retainer, nil
}

// UpsertTimesheet записывает часы за неделю. Повторная запись за ту же
// неделю перезаписывает часы и возвращает запись в draft; оплаченные недели
// не меняются. Перезапись фиксируется событием timesheet.overwritten.
func (r *RetainerRepository) UpsertTimesheet(ctx context.Context, entry *models.TimesheetEntry) (*models.TimesheetUpsert, error) {
	result := &models.TimesheetUpsert{}
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var previous models.TimesheetEntry
		err := tx.GetContext(ctx, &previous, `
			SELECT * FROM timesheet_entries WHERE retainer_id = $1 AND week_start = $2 FOR UPDATE
		`, entry.RetainerID, entry.WeekStart)
		switch {
		case err == nil:
			if previous.Status == "paid" {
				return ErrTimesheetLocked
			}
			result.Overwritten = true
			result.PreviousStatus = &previous.Status
			result.PreviousHours = &previous.HoursLogged
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("timesheet repository: lock week %w", err)
		}

		var saved models.TimesheetEntry
		err = tx.GetContext(ctx, &saved, `
			INSERT INTO timesheet_entries (retainer_id, week_start, hours_logged, description, status)
			VALUES ($1, $2, $3, $4, 'draft')
			ON CONFLICT (retainer_id, week_start) DO UPDATE
			SET hours_logged = EXCLUDED.hours_logged,
				description = EXCLUDED.description,
				status = 'draft',
				submitted_at = NULL,
				approved_at = NULL,
				updated_at = NOW()
			WHERE timesheet_entries.status <> 'paid'
			RETURNING *
		`, entry.RetainerID, entry.WeekStart, entry.HoursLogged, entry.Description)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTimesheetLocked
		}
		if err != nil {
			return fmt.Errorf("timesheet repository: upsert %w", err)
		}
		result.Entry = &saved

		if result.Overwritten {
			event := models.NewOutboxEvent("timesheet", saved.ID, "timesheet.overwritten", map[string]any{
				"retainer_id":     saved.RetainerID,
				"week_start":      saved.WeekStart.Format("2006-01-02"),
				"previous_status": previous.Status,
				"previous_hours":  previous.HoursLogged,
				"hours":           saved.HoursLogged,
			})
			return insertOutboxEvent(ctx, tx, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetTimesheet возвращает запись табеля.
func (r *RetainerRepository) GetTimesheet(ctx context.Context, id uuid.UUID) (*models.TimesheetEntry, error) {
	return common.GetByID[models.TimesheetEntry](ctx, r.db, "timesheet_entries", id, ErrTimesheetNotFound)
}

// ListTimesheets возвращает табель ретейнера, новые недели первыми.
func (r *RetainerRepository) ListTimesheets(ctx context.Context, retainerID uuid.UUID) ([]models.TimesheetEntry, error) {
	var entries []models.TimesheetEntry
	if err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM timesheet_entries WHERE retainer_id = $1 ORDER BY week_start DESC
	`, retainerID); err != nil {
		return nil, fmt.Errorf("timesheet repository: list %w", err)
	}
	return entries, nil
}

// TransitionTimesheet условно меняет статус записи табеля.
func (r *RetainerRepository) TransitionTimesheet(ctx context.Context, t models.TimesheetTransition) (*models.TimesheetEntry, error) {
	var entry models.TimesheetEntry
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &entry, `
			UPDATE timesheet_entries SET
				status = $3,
				submitted_at = CASE WHEN $3 = 'submitted' THEN NOW() ELSE submitted_at END,
				approved_at = CASE WHEN $3 = 'approved' THEN NOW() ELSE approved_at END,
				paid_at = CASE WHEN $3 = 'paid' THEN NOW() ELSE paid_at END,
				transfer_id = COALESCE($4, transfer_id),
				updated_at = NOW()
			WHERE id = $1 AND status = $2
			RETURNING *
		`, t.EntryID, t.ExpectedStatus, t.Status, t.TransferID)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM timesheet_entries WHERE id = $1)`, t.EntryID); err != nil {
				return fmt.Errorf("timesheet repository: check exists %w", err)
			}
			if !exists {
				return ErrTimesheetNotFound
			}
			return ErrStateConflict
		}
		if err != nil {
			return fmt.Errorf("timesheet repository: transition %w", err)
		}
		return insertOutboxEvent(ctx, tx, t.Event)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func getRetainer(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*models.Retainer, error) {
	var retainer models.Retainer
	if err := sqlx.GetContext(ctx, q, &retainer, retainerSelect+` WHERE r.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRetainerNotFound
		}
		return nil, fmt.Errorf("retainer repository: get by id %w", err)
	}
	return &retainer, nil
}
