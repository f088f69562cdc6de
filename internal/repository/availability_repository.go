package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/repository/common"
)

var (
	ErrSlotBooked    = errors.New("availability slot is booked")
	ErrSlotNotBooked = errors.New("availability slot is not booked")
)

const dateLayout = "2006-01-02"

// AvailabilityRepository хранит календарь доступности исполнителей.
// Строки в статусе booked меняются только через BookSlot/ReleaseBooking.
type AvailabilityRepository struct {
	db *sqlx.DB
}

func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// GetSlot возвращает запись календаря за день; nil, если её нет.
func (r *AvailabilityRepository) GetSlot(ctx context.Context, providerID uuid.UUID, date time.Time) (*models.AvailabilitySlot, error) {
	var slot models.AvailabilitySlot
	err := r.db.GetContext(ctx, &slot, `
		SELECT * FROM availability_slots WHERE provider_id = $1 AND date = $2
	`, providerID, date.Format(dateLayout))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("availability repository: get slot %w", err)
	}
	return &slot, nil
}

// SetStatus выставляет статус дня, если он не забронирован.
func (r *AvailabilityRepository) SetStatus(ctx context.Context, providerID uuid.UUID, date time.Time, status, source string, notes *string) (*models.AvailabilitySlot, error) {
	var slot models.AvailabilitySlot
	err := r.db.GetContext(ctx, &slot, `
		INSERT INTO availability_slots (provider_id, date, status, source, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_id, date) DO UPDATE
		SET status = EXCLUDED.status, source = EXCLUDED.source, notes = EXCLUDED.notes, updated_at = NOW()
		WHERE availability_slots.status <> 'booked'
		RETURNING *
	`, providerID, date.Format(dateLayout), status, source, notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotBooked
	}
	if err != nil {
		return nil, fmt.Errorf("availability repository: set status %w", err)
	}
	return &slot, nil
}

// BulkSetStatus выставляет статус списку дней одной транзакцией. Забронированные
// дни пропускаются и возвращаются в SkippedDates.
func (r *AvailabilityRepository) BulkSetStatus(ctx context.Context, providerID uuid.UUID, dates []time.Time, status string) (*models.BulkAvailabilityResult, error) {
	result := &models.BulkAvailabilityResult{SkippedDates: []string{}}
	values := make([]string, 0, len(dates))
	for _, d := range dates {
		values = append(values, d.Format(dateLayout))
	}

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var booked []time.Time
		if err := tx.SelectContext(ctx, &booked, `
			SELECT date FROM availability_slots
			WHERE provider_id = $1 AND date = ANY($2::date[]) AND status = 'booked'
			ORDER BY date
			FOR UPDATE
		`, providerID, pq.Array(values)); err != nil {
			return fmt.Errorf("availability repository: find booked %w", err)
		}
		for _, d := range booked {
			result.SkippedDates = append(result.SkippedDates, d.Format(dateLayout))
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO availability_slots (provider_id, date, status, source)
			SELECT $1, d, $3, $4 FROM unnest($2::date[]) AS d
			ON CONFLICT (provider_id, date) DO UPDATE
			SET status = EXCLUDED.status, source = EXCLUDED.source, updated_at = NOW()
			WHERE availability_slots.status <> 'booked'
		`, providerID, pq.Array(values), status, models.SlotSourceBulk)
		if err != nil {
			return fmt.Errorf("availability repository: bulk upsert %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("availability repository: bulk rows affected %w", err)
		}
		result.Updated = int(n)
		result.Skipped = len(result.SkippedDates)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListRange возвращает записи календаря в диапазоне дат включительно.
func (r *AvailabilityRepository) ListRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]models.AvailabilitySlot, error) {
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, `
		SELECT * FROM availability_slots
		WHERE provider_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date
	`, providerID, from.Format(dateLayout), to.Format(dateLayout)); err != nil {
		return nil, fmt.Errorf("availability repository: list range %w", err)
	}
	return slots, nil
}

// BookSlot бронирует свободный день. Заблокированные, уже забронированные
// и неотмеченные дни не бронируются.
func (r *AvailabilityRepository) BookSlot(ctx context.Context, providerID uuid.UUID, date time.Time, bookedBy uuid.UUID) (*models.AvailabilitySlot, error) {
	var slot models.AvailabilitySlot
	err := r.db.GetContext(ctx, &slot, `
		UPDATE availability_slots
		SET status = 'booked', source = $4, booked_by = $3, updated_at = NOW()
		WHERE provider_id = $1 AND date = $2 AND status = 'available'
		RETURNING *
	`, providerID, date.Format(dateLayout), bookedBy, models.SlotSourceBooking)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, fmt.Errorf("availability repository: book slot %w", err)
	}
	return &slot, nil
}

// ReleaseBooking возвращает забронированный день в available.
func (r *AvailabilityRepository) ReleaseBooking(ctx context.Context, providerID uuid.UUID, date time.Time) (*models.AvailabilitySlot, error) {
	var slot models.AvailabilitySlot
	err := r.db.GetContext(ctx, &slot, `
		UPDATE availability_slots
		SET status = 'available', source = $3, booked_by = NULL, updated_at = NOW()
		WHERE provider_id = $1 AND date = $2 AND status = 'booked'
		RETURNING *
	`, providerID, date.Format(dateLayout), models.SlotSourceManual)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotBooked
	}
	if err != nil {
		return nil, fmt.Errorf("availability repository: release booking %w", err)
	}
	return &slot, nil
}
