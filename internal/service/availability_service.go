package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/domain/valueobject"
	"github.com/ignatzorin/centaur-backend/internal/logger"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
	"github.com/ignatzorin/centaur-backend/internal/validation"
)

// AvailabilityRepository описывает хранилище календаря доступности.
type AvailabilityRepository interface {
	GetSlot(ctx context.Context, providerID uuid.UUID, date time.Time) (*models.AvailabilitySlot, error)
	SetStatus(ctx context.Context, providerID uuid.UUID, date time.Time, status, source string, notes *string) (*models.AvailabilitySlot, error)
	BulkSetStatus(ctx context.Context, providerID uuid.UUID, dates []time.Time, status string) (*models.BulkAvailabilityResult, error)
	ListRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]models.AvailabilitySlot, error)
	BookSlot(ctx context.Context, providerID uuid.UUID, date time.Time, bookedBy uuid.UUID) (*models.AvailabilitySlot, error)
	ReleaseBooking(ctx context.Context, providerID uuid.UUID, date time.Time) (*models.AvailabilitySlot, error)
}

// AvailabilityService ведёт календарь исполнителя. Забронированные дни
// меняются только бронированием и его отменой.
type AvailabilityService struct {
	repo     AvailabilityRepository
	notifier Notifier
	cache    Cache
}

func NewAvailabilityService(repo AvailabilityRepository, notifier Notifier) *AvailabilityService {
	return &AvailabilityService{repo: repo, notifier: notifierOrNoop(notifier)}
}

// WithCache включает кеширование публичного календаря.
func (s *AvailabilityService) WithCache(cache Cache) *AvailabilityService {
	s.cache = cache
	return s
}

// invalidate сбрасывает закешированные диапазоны исполнителя после записи.
// Ошибка кеша не отменяет уже сделанное изменение.
func (s *AvailabilityService) invalidate(ctx context.Context, providerID uuid.UUID) {
	if s.cache == nil {
		return
	}
	log := logger.For("availability").WithField("provider_id", providerID)
	if _, err := s.cache.Incr(ctx, CalendarGenerationKey(providerID), CalendarGenerationTTL); err != nil {
		log.Warnf("не удалось сменить поколение кеша календаря: %v", err)
	}
	if err := s.cache.InvalidateByPrefix(ctx, CalendarCachePrefix(providerID)); err != nil {
		log.Warnf("не удалось сбросить кеш календаря: %v", err)
	}
}

// generation читает текущее поколение календаря. ok=false - кеш недоступен,
// и читать через него нельзя.
func (s *AvailabilityService) generation(ctx context.Context, providerID uuid.UUID) (gen int64, ok bool) {
	if _, err := s.cache.Get(ctx, CalendarGenerationKey(providerID), &gen); err != nil {
		logger.For("availability").Debugf("кеш календаря недоступен: %v", err)
		return 0, false
	}
	return gen, true
}

// SetAvailability выставляет статус дня исполнителя.
func (s *AvailabilityService) SetAvailability(ctx context.Context, providerID uuid.UUID, date, status string, notes *string) (*models.AvailabilitySlot, error) {
	day, err := validation.ParseDate("date", date)
	if err != nil {
		return nil, invalid(err)
	}
	if !valueobject.SlotStatus(status).IsSettable() {
		return nil, apperror.Validation("статус должен быть available или blocked")
	}
	if err := validation.ValidateOptionalText("заметка", notes, validation.MaxNotesLength); err != nil {
		return nil, invalid(err)
	}

	slot, err := s.repo.SetStatus(ctx, providerID, day, status, models.SlotSourceManual, notes)
	if errors.Is(err, repository.ErrSlotBooked) {
		return nil, apperror.Validation("день уже забронирован и не может быть изменён")
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, providerID)
	return slot, nil
}

// BulkSetAvailability выставляет статус сразу нескольким дням. Забронированные
// дни пропускаются, остальные обновляются одной транзакцией.
func (s *AvailabilityService) BulkSetAvailability(ctx context.Context, providerID uuid.UUID, dates []string, status string) (*models.BulkAvailabilityResult, error) {
	if !valueobject.SlotStatus(status).IsSettable() {
		return nil, apperror.Validation("статус должен быть available или blocked")
	}
	days, err := validation.ParseDates(dates)
	if err != nil {
		return nil, invalid(err)
	}

	result, err := s.repo.BulkSetStatus(ctx, providerID, days, status)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, providerID)
	if result.Skipped > 0 {
		logger.For("availability").WithField("provider_id", providerID).
			Debugf("пропущено забронированных дней: %d", result.Skipped)
	}
	return result, nil
}

// ToggleAvailability переключает день между available и blocked.
// Забронированный день не переключается: возвращается success=false и
// newStatus=booked без ошибки.
func (s *AvailabilityService) ToggleAvailability(ctx context.Context, providerID uuid.UUID, date, currentStatus string) (*models.ToggleResult, error) {
	day, err := validation.ParseDate("date", date)
	if err != nil {
		return nil, invalid(err)
	}
	booked := &models.ToggleResult{
		Success:   false,
		NewStatus: string(valueobject.SlotStatusBooked),
		Error:     "день забронирован",
	}
	if valueobject.SlotStatus(currentStatus) == valueobject.SlotStatusBooked {
		return booked, nil
	}

	stored, err := s.repo.GetSlot(ctx, providerID, day)
	if err != nil {
		return nil, err
	}
	current := valueobject.SlotStatus(currentStatus)
	if stored != nil {
		current = valueobject.SlotStatus(stored.Status)
	}
	if current == valueobject.SlotStatusBooked {
		return booked, nil
	}
	if current == "" {
		current = valueobject.SlotStatusAvailable
	}

	next := current.Toggle()
	if _, err := s.repo.SetStatus(ctx, providerID, day, string(next), models.SlotSourceManual, nil); err != nil {
		if errors.Is(err, repository.ErrSlotBooked) {
			return booked, nil
		}
		return nil, err
	}
	s.invalidate(ctx, providerID)
	return &models.ToggleResult{Success: true, NewStatus: string(next)}, nil
}

// GetAvailability возвращает публичный календарь исполнителя за диапазон.
func (s *AvailabilityService) GetAvailability(ctx context.Context, providerID uuid.UUID, from, to string) ([]models.AvailabilitySlot, error) {
	start, err := validation.ParseDate("from", from)
	if err != nil {
		return nil, invalid(err)
	}
	end, err := validation.ParseDate("to", to)
	if err != nil {
		return nil, invalid(err)
	}
	if err := validation.ValidateDateRange(start, end); err != nil {
		return nil, invalid(err)
	}
	var key string
	if s.cache != nil {
		// Поколение читается до базы: запись календаря между чтением и Set
		// сменит его, и результат уйдёт под устаревший ключ.
		if gen, ok := s.generation(ctx, providerID); ok {
			key = CalendarCacheKey(providerID, gen, from, to)
		}
	}
	if key != "" {
		var cached []models.AvailabilitySlot
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			logger.For("availability").Debugf("кеш календаря недоступен: %v", err)
		}
		if found {
			return cached, nil
		}
	}

	slots, err := s.repo.ListRange(ctx, providerID, start, end)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []models.AvailabilitySlot{}
	}
	if key != "" {
		if err := s.cache.Set(ctx, key, slots, CalendarCacheTTL); err != nil {
			logger.For("availability").Debugf("не удалось записать календарь в кеш: %v", err)
		}
	}
	return slots, nil
}

// BookSlot бронирует свободный день исполнителя покупателем.
func (s *AvailabilityService) BookSlot(ctx context.Context, providerID, buyerID uuid.UUID, date string) (*models.AvailabilitySlot, error) {
	if providerID == buyerID {
		return nil, apperror.Validation("нельзя забронировать собственный день")
	}
	day, err := validation.ParseDate("date", date)
	if err != nil {
		return nil, invalid(err)
	}
	if day.Before(validation.DateOnly(time.Now().UTC())) {
		return nil, apperror.Validation("нельзя забронировать прошедший день")
	}

	slot, err := s.repo.BookSlot(ctx, providerID, day, buyerID)
	if errors.Is(err, repository.ErrStateConflict) {
		return nil, apperror.Conflict("день недоступен для бронирования")
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, providerID)

	s.notifier.Notify(ctx, EventAvailabilityUpdate, slotSignal(slot), providerID, buyerID)
	return slot, nil
}

// ReleaseBooking снимает бронь. Доступно исполнителю и покупателю,
// сделавшему бронь.
func (s *AvailabilityService) ReleaseBooking(ctx context.Context, providerID, userID uuid.UUID, date string) (*models.AvailabilitySlot, error) {
	day, err := validation.ParseDate("date", date)
	if err != nil {
		return nil, invalid(err)
	}
	current, err := s.repo.GetSlot(ctx, providerID, day)
	if err != nil {
		return nil, err
	}
	if current == nil || current.Status != string(valueobject.SlotStatusBooked) {
		return nil, apperror.Validation("день не забронирован")
	}
	if userID != providerID && (current.BookedBy == nil || *current.BookedBy != userID) {
		return nil, apperror.Forbidden("снять бронь может исполнитель или покупатель, сделавший её")
	}

	slot, err := s.repo.ReleaseBooking(ctx, providerID, day)
	if errors.Is(err, repository.ErrSlotNotBooked) {
		return nil, apperror.Validation("день не забронирован")
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, providerID)

	recipients := []uuid.UUID{providerID}
	if current.BookedBy != nil {
		recipients = append(recipients, *current.BookedBy)
	}
	s.notifier.Notify(ctx, EventAvailabilityUpdate, slotSignal(slot), recipients...)
	return slot, nil
}

func slotSignal(slot *models.AvailabilitySlot) map[string]any {
	return map[string]any{
		"provider_id": slot.ProviderID,
		"date":        slot.Date.Format(validation.DateLayout),
		"status":      slot.Status,
	}
}
