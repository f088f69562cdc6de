package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/repository/common"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrLastFounder    = errors.New("last active founder")
)

const anonymizedName = "Former member"

// MemberRepository отвечает за участников foundry и журнал их администрирования.
type MemberRepository struct {
	db *sqlx.DB
}

func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// GetByID возвращает профиль участника.
func (r *MemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	return common.GetByID[models.Member](ctx, r.db, "profiles", id, ErrMemberNotFound)
}

// GetByUser возвращает профиль пользователя в foundry.
func (r *MemberRepository) GetByUser(ctx context.Context, userID, foundryID uuid.UUID) (*models.Member, error) {
	var m models.Member
	err := r.db.GetContext(ctx, &m, `SELECT * FROM profiles WHERE user_id = $1 AND foundry_id = $2`, userID, foundryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("member repository: get by user %w", err)
	}
	return &m, nil
}

// ListByFoundry возвращает участников foundry.
func (r *MemberRepository) ListByFoundry(ctx context.Context, foundryID uuid.UUID, includeInactive bool) ([]models.Member, error) {
	query := `SELECT * FROM profiles WHERE foundry_id = $1`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY full_name`

	var members []models.Member
	if err := r.db.SelectContext(ctx, &members, query, foundryID); err != nil {
		return nil, fmt.Errorf("member repository: list by foundry %w", err)
	}
	return members, nil
}

// CountActiveFounders возвращает число активных основателей foundry.
func (r *MemberRepository) CountActiveFounders(ctx context.Context, foundryID uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM profiles WHERE foundry_id = $1 AND role = $2 AND is_active`, foundryID, models.FoundryRoleFounder)
	if err != nil {
		return 0, fmt.Errorf("member repository: count founders %w", err)
	}
	return n, nil
}

// Offboard выполняет offboarding участника одной транзакцией. Запись в журнал
// делается первой, до изменения или удаления профиля. Активные основатели
// блокируются до цели, поэтому параллельные offboarding не могут вместе
// удалить последнего из них.
func (r *MemberRepository) Offboard(ctx context.Context, actor *models.Member, req models.OffboardRequest) (*models.OffboardResult, error) {
	result := &models.OffboardResult{TargetID: req.TargetID, Mode: req.Mode}
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var founders []uuid.UUID
		if err := tx.SelectContext(ctx, &founders, `
			SELECT id FROM profiles
			WHERE foundry_id = $1 AND role = $2 AND is_active
			ORDER BY id
			FOR UPDATE
		`, actor.FoundryID, models.FoundryRoleFounder); err != nil {
			return fmt.Errorf("member repository: lock founders %w", err)
		}

		var target models.Member
		err := tx.GetContext(ctx, &target, `SELECT * FROM profiles WHERE id = $1 AND foundry_id = $2 FOR UPDATE`, req.TargetID, actor.FoundryID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("member repository: lock target %w", err)
		}
		if target.IsFounder() && target.IsActive && len(founders) <= 1 {
			return ErrLastFounder
		}

		details, _ := json.Marshal(map[string]string{
			"mode":      req.Mode,
			"reason":    req.Reason,
			"full_name": target.FullName,
			"email":     target.Email,
			"role":      target.Role,
		})
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO foundry_admin_audit_log (foundry_id, actor_id, action, target_id, details)
			VALUES ($1, $2, $3, $4, $5)
		`, target.FoundryID, actor.ID, "member."+req.Mode, target.ID, details); err != nil {
			return fmt.Errorf("member repository: audit %w", err)
		}

		switch req.Mode {
		case models.OffboardModeReassignDelete:
			if result.TasksReassigned, err = reassign(ctx, tx, "tasks", target.ID, actor.ID); err != nil {
				return err
			}
			if result.ObjectivesReassigned, err = reassign(ctx, tx, "objectives", target.ID, actor.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE profile_id = $1`, target.ID); err != nil {
				return fmt.Errorf("member repository: delete task assignees %w", err)
			}
			if result.PermissionsRemoved, err = exec(ctx, tx, `DELETE FROM admin_permissions WHERE profile_id = $1`, target.ID); err != nil {
				return err
			}
			if result.InvitationsCancelled, err = cancelInvitations(ctx, tx, target.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, target.ID); err != nil {
				return fmt.Errorf("member repository: delete profile %w", err)
			}
		case models.OffboardModeSoftDelete:
			if _, err := tx.ExecContext(ctx, `
				UPDATE profiles SET is_active = FALSE, deactivated_at = NOW(), updated_at = NOW() WHERE id = $1
			`, target.ID); err != nil {
				return fmt.Errorf("member repository: deactivate %w", err)
			}
			if result.PermissionsRemoved, err = exec(ctx, tx, `DELETE FROM admin_permissions WHERE profile_id = $1`, target.ID); err != nil {
				return err
			}
			if result.InvitationsCancelled, err = cancelInvitations(ctx, tx, target.ID); err != nil {
				return err
			}
		case models.OffboardModeAnonymize:
			if _, err := tx.ExecContext(ctx, `
				UPDATE profiles
				SET full_name = $2, email = 'removed+' || id::text || '@centaur.invalid',
					is_active = FALSE, deactivated_at = NOW(), updated_at = NOW()
				WHERE id = $1
			`, target.ID, anonymizedName); err != nil {
				return fmt.Errorf("member repository: anonymize %w", err)
			}
			if result.PermissionsRemoved, err = exec(ctx, tx, `DELETE FROM admin_permissions WHERE profile_id = $1`, target.ID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("member repository: unknown offboard mode %q", req.Mode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAuditLog возвращает журнал административных действий foundry.
func (r *MemberRepository) ListAuditLog(ctx context.Context, foundryID uuid.UUID, limit, offset int) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	if err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM foundry_admin_audit_log
		WHERE foundry_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, foundryID, limit, offset); err != nil {
		return nil, fmt.Errorf("member repository: list audit log %w", err)
	}
	return entries, nil
}

func reassign(ctx context.Context, tx *sqlx.Tx, table string, from, to uuid.UUID) (int64, error) {
	var total int64
	for _, column := range []string{"creator_id", "assignee_id"} {
		n, err := exec(ctx, tx, fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE %s = $1`, table, column, column), from, to)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func cancelInvitations(ctx context.Context, tx *sqlx.Tx, profileID uuid.UUID) (int64, error) {
	return exec(ctx, tx, `UPDATE invitations SET status = 'cancelled' WHERE invited_by = $1 AND status = 'pending'`, profileID)
}

func exec(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("member repository: %w", err)
	}
	return res.RowsAffected()
}
