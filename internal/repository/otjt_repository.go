package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/repository/common"
)

var (
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrOTJTLogNotFound    = errors.New("otjt log not found")
	ErrDailyLimitExceeded = errors.New("daily otjt limit exceeded")
)

// OTJTRepository хранит часы обучения учеников (off-the-job training).
type OTJTRepository struct {
	db *sqlx.DB
}

func NewOTJTRepository(db *sqlx.DB) *OTJTRepository {
	return &OTJTRepository{db: db}
}

func (r *OTJTRepository) GetEnrollment(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	return common.GetByID[models.Enrollment](ctx, r.db, "apprenticeship_enrollments", id, ErrEnrollmentNotFound)
}

func (r *OTJTRepository) GetLog(ctx context.Context, id uuid.UUID) (*models.OTJTLog, error) {
	return common.GetByID[models.OTJTLog](ctx, r.db, "otjt_time_logs", id, ErrOTJTLogNotFound)
}

// ListLogs возвращает записи часов по обучению, новые первыми.
func (r *OTJTRepository) ListLogs(ctx context.Context, enrollmentID uuid.UUID, limit, offset int) ([]models.OTJTLog, error) {
	var logs []models.OTJTLog
	if err := r.db.SelectContext(ctx, &logs, `
		SELECT * FROM otjt_time_logs
		WHERE enrollment_id = $1
		ORDER BY log_date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, enrollmentID, limit, offset); err != nil {
		return nil, fmt.Errorf("otjt repository: list logs %w", err)
	}
	return logs, nil
}

// CreateLog сохраняет запись часов, если с ней дневная сумма не превысит
// maxPerDay. Строка обучения блокируется, чтобы параллельные записи за один
// день проверялись последовательно.
func (r *OTJTRepository) CreateLog(ctx context.Context, log *models.OTJTLog, maxPerDay float64) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockEnrollment(ctx, tx, log.EnrollmentID); err != nil {
			return err
		}
		if err := checkDailyTotal(ctx, tx, log.EnrollmentID, log, uuid.Nil, maxPerDay); err != nil {
			return err
		}
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO otjt_time_logs (enrollment_id, log_date, hours, activity_type, description, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`, log.EnrollmentID, log.LogDate.Format(dateLayout), log.Hours, log.ActivityType, log.Description, log.Status,
		).Scan(&log.ID, &log.CreatedAt, &log.UpdatedAt)
		if err != nil {
			return fmt.Errorf("otjt repository: create log %w", err)
		}
		return nil
	})
}

// SetEvidence прикрепляет к записи путь к подтверждающему файлу.
func (r *OTJTRepository) SetEvidence(ctx context.Context, logID uuid.UUID, path string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE otjt_time_logs SET evidence_path = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'queried')
	`, logID, path)
	if err != nil {
		return fmt.Errorf("otjt repository: set evidence %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStateConflict
	}
	return nil
}

// Review фиксирует решение наставника по записи в статусе pending.
func (r *OTJTRepository) Review(ctx context.Context, logID, reviewerID uuid.UUID, status string, comment *string) (*models.OTJTLog, error) {
	var log models.OTJTLog
	err := r.db.GetContext(ctx, &log, `
		UPDATE otjt_time_logs
		SET status = $3, reviewer_id = $2, review_comment = $4, reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, logID, reviewerID, status, comment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("otjt repository: review %w", err)
	}
	return &log, nil
}

// Resubmit возвращает уточнённую запись из queried в pending.
func (r *OTJTRepository) Resubmit(ctx context.Context, log *models.OTJTLog, maxPerDay float64) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockEnrollment(ctx, tx, log.EnrollmentID); err != nil {
			return err
		}
		if err := checkDailyTotal(ctx, tx, log.EnrollmentID, log, log.ID, maxPerDay); err != nil {
			return err
		}
		err := tx.GetContext(ctx, log, `
			UPDATE otjt_time_logs
			SET hours = $2, description = $3, status = 'pending', updated_at = NOW()
			WHERE id = $1 AND status = 'queried'
			RETURNING *
		`, log.ID, log.Hours, log.Description)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStateConflict
		}
		if err != nil {
			return fmt.Errorf("otjt repository: resubmit %w", err)
		}
		return nil
	})
}

// Summary считает одобренные и ожидающие часы по обучению.
func (r *OTJTRepository) Summary(ctx context.Context, enrollmentID uuid.UUID) (*models.OTJTSummary, error) {
	var summary models.OTJTSummary
	err := r.db.GetContext(ctx, &summary, `
		SELECT e.id AS enrollment_id,
		       e.required_otjt_hours AS required_hours,
		       COALESCE(SUM(l.hours) FILTER (WHERE l.status = 'approved'), 0) AS approved_hours,
		       COALESCE(SUM(l.hours) FILTER (WHERE l.status = 'pending'), 0) AS pending_hours,
		       COALESCE(SUM(l.hours) FILTER (WHERE l.status = 'queried'), 0) AS queried_hours
		FROM apprenticeship_enrollments e
		LEFT JOIN otjt_time_logs l ON l.enrollment_id = e.id
		WHERE e.id = $1
		GROUP BY e.id, e.required_otjt_hours
	`, enrollmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("otjt repository: summary %w", err)
	}
	return &summary, nil
}

func lockEnrollment(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.GetContext(ctx, &locked, `SELECT id FROM apprenticeship_enrollments WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEnrollmentNotFound
	}
	if err != nil {
		return fmt.Errorf("otjt repository: lock enrollment %w", err)
	}
	return nil
}

// checkDailyTotal проверяет сумму часов за день без отклонённых записей и
// без записи exclude (при повторной отправке).
func checkDailyTotal(ctx context.Context, tx *sqlx.Tx, enrollmentID uuid.UUID, log *models.OTJTLog, exclude uuid.UUID, maxPerDay float64) error {
	var total float64
	err := tx.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(hours), 0) FROM otjt_time_logs
		WHERE enrollment_id = $1 AND log_date = $2 AND status <> 'rejected' AND id <> $3
	`, enrollmentID, log.LogDate.Format(dateLayout), exclude)
	if err != nil {
		return fmt.Errorf("otjt repository: daily total %w", err)
	}
	if total+log.Hours > maxPerDay+0.000001 {
		return ErrDailyLimitExceeded
	}
	return nil
}
