package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/domain/valueobject"
	"github.com/ignatzorin/centaur-backend/internal/logger"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
	"github.com/ignatzorin/centaur-backend/internal/storage"
	"github.com/ignatzorin/centaur-backend/internal/validation"
)

// OTJTRepository описывает хранилище часов обучения.
type OTJTRepository interface {
	GetEnrollment(ctx context.Context, id uuid.UUID) (*models.Enrollment, error)
	GetLog(ctx context.Context, id uuid.UUID) (*models.OTJTLog, error)
	ListLogs(ctx context.Context, enrollmentID uuid.UUID, limit, offset int) ([]models.OTJTLog, error)
	CreateLog(ctx context.Context, log *models.OTJTLog, maxPerDay float64) error
	SetEvidence(ctx context.Context, logID uuid.UUID, path string) error
	Review(ctx context.Context, logID, reviewerID uuid.UUID, status string, comment *string) (*models.OTJTLog, error)
	Resubmit(ctx context.Context, log *models.OTJTLog, maxPerDay float64) error
	Summary(ctx context.Context, enrollmentID uuid.UUID) (*models.OTJTSummary, error)
}

// EvidenceStore сохраняет подтверждающие документы.
type EvidenceStore interface {
	Save(ctx context.Context, ownerID uuid.UUID, r io.Reader) (*storage.StoredFile, error)
	Delete(ctx context.Context, relativePath string) error
}

const maxActivityTypeLength = 100

// OTJTService ведёт учёт часов обучения учеников.
type OTJTService struct {
	repo     OTJTRepository
	evidence EvidenceStore
	notifier Notifier
	now      func() time.Time
}

func NewOTJTService(repo OTJTRepository, evidence EvidenceStore, notifier Notifier) *OTJTService {
	return &OTJTService{repo: repo, evidence: evidence, notifier: notifierOrNoop(notifier), now: time.Now}
}

// LogOTJTInput описывает запись часов обучения.
type LogOTJTInput struct {
	EnrollmentID uuid.UUID
	UserID       uuid.UUID
	Date         string
	Hours        float64
	ActivityType string
	Description  *string
}

// LogOTJTTime записывает часы обучения ученика. Сумма за день по записям,
// кроме отклонённых, не может превышать дневной лимит.
func (s *OTJTService) LogOTJTTime(ctx context.Context, in LogOTJTInput) (*models.OTJTLog, error) {
	date, err := validation.ParseDate("date", in.Date)
	if err != nil {
		return nil, invalid(err)
	}
	if date.After(validation.DateOnly(s.now().UTC())) {
		return nil, apperror.Validation("нельзя записать часы за будущую дату")
	}
	if err := validateOTJTHours(in.Hours); err != nil {
		return nil, err
	}
	activity := strings.TrimSpace(in.ActivityType)
	if err := validation.ValidateNonEmpty("тип активности", activity); err != nil {
		return nil, invalid(err)
	}
	if err := validation.ValidateLength("тип активности", activity, 1, maxActivityTypeLength); err != nil {
		return nil, invalid(err)
	}
	if err := validation.ValidateOptionalText("описание", in.Description, validation.MaxReasonLength); err != nil {
		return nil, invalid(err)
	}

	enrollment, err := s.getEnrollment(ctx, in.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.ApprenticeID != in.UserID {
		return nil, apperror.Forbidden("записывать часы может только ученик")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, apperror.Validation("обучение не активно")
	}
	if date.Before(validation.DateOnly(enrollment.StartDate)) {
		return nil, apperror.Validation("дата раньше начала обучения")
	}

	log := &models.OTJTLog{
		EnrollmentID: enrollment.ID,
		LogDate:      date,
		Hours:        valueobject.RoundMoney(in.Hours),
		ActivityType: activity,
		Description:  in.Description,
		Status:       string(valueobject.OTJTStatusPending),
	}
	if err := s.repo.CreateLog(ctx, log, models.MaxOTJTHoursPerDay); err != nil {
		return nil, mapOTJTError(err)
	}

	s.notifyMentor(ctx, enrollment, log)
	return log, nil
}

// AttachEvidence прикрепляет документ к записи в статусе pending или queried.
// Допустимы pdf, png и jpg.
func (s *OTJTService) AttachEvidence(ctx context.Context, logID, userID uuid.UUID, file io.Reader) (*models.OTJTLog, error) {
	log, enrollment, err := s.getLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if enrollment.ApprenticeID != userID {
		return nil, apperror.Forbidden("прикрепить документ может только ученик")
	}
	status := valueobject.OTJTStatus(log.Status)
	if status != valueobject.OTJTStatusPending && status != valueobject.OTJTStatusQueried {
		return nil, apperror.Validation("документ можно прикрепить только к записи на проверке")
	}

	stored, err := s.evidence.Save(ctx, userID, file)
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		return nil, apperror.Validation("допустимы только файлы pdf, png и jpg")
	case errors.Is(err, storage.ErrFileTooLarge):
		return nil, apperror.Validation("файл превышает допустимый размер")
	case errors.Is(err, storage.ErrEmptyFile):
		return nil, apperror.Validation("файл не может быть пустым")
	case err != nil:
		return nil, err
	}

	if err := s.repo.SetEvidence(ctx, log.ID, stored.Path); err != nil {
		if delErr := s.evidence.Delete(ctx, stored.Path); delErr != nil {
			logger.For("otjt").WithError(delErr).Warn("не удалось удалить файл после ошибки")
		}
		return nil, mapOTJTError(err)
	}
	if log.EvidencePath != nil {
		if err := s.evidence.Delete(ctx, *log.EvidencePath); err != nil {
			logger.For("otjt").WithError(err).Warn("не удалось удалить прежний документ")
		}
	}
	log.EvidencePath = &stored.Path
	return log, nil
}

// ReviewInput описывает решение наставника.
type ReviewInput struct {
	LogID    uuid.UUID
	MentorID uuid.UUID
	Decision string
	Comment  *string
}

// ReviewOTJTLog фиксирует решение наставника по записи на проверке.
func (s *OTJTService) ReviewOTJTLog(ctx context.Context, in ReviewInput) (*models.OTJTLog, error) {
	decision := valueobject.OTJTStatus(in.Decision)
	if !decision.IsReviewDecision() {
		return nil, apperror.Validation("решение должно быть approved, rejected или queried")
	}
	if err := validation.ValidateOptionalText("комментарий", in.Comment, validation.MaxReasonLength); err != nil {
		return nil, invalid(err)
	}
	if decision == valueobject.OTJTStatusQueried && (in.Comment == nil || strings.TrimSpace(*in.Comment) == "") {
		return nil, apperror.Validation("для уточнения нужен комментарий")
	}

	log, enrollment, err := s.getLog(ctx, in.LogID)
	if err != nil {
		return nil, err
	}
	if enrollment.MentorID == nil || *enrollment.MentorID != in.MentorID {
		return nil, apperror.Forbidden("проверять записи может только наставник")
	}
	if !valueobject.OTJTStatus(log.Status).CanTransitionTo(decision) {
		return nil, apperror.Validation("проверить можно только запись в статусе pending")
	}

	reviewed, err := s.repo.Review(ctx, log.ID, in.MentorID, string(decision), in.Comment)
	if err != nil {
		return nil, mapOTJTError(err)
	}
	s.notifier.Notify(ctx, EventOTJTUpdated, otjtSignal(reviewed), enrollment.ApprenticeID)
	return reviewed, nil
}

// ResubmitInput описывает повторную отправку уточнённой записи.
type ResubmitInput struct {
	LogID       uuid.UUID
	UserID      uuid.UUID
	Hours       *float64
	Description *string
}

// ResubmitOTJTLog возвращает запись из queried на проверку.
func (s *OTJTService) ResubmitOTJTLog(ctx context.Context, in ResubmitInput) (*models.OTJTLog, error) {
	log, enrollment, err := s.getLog(ctx, in.LogID)
	if err != nil {
		return nil, err
	}
	if enrollment.ApprenticeID != in.UserID {
		return nil, apperror.Forbidden("отправить запись может только ученик")
	}
	if !valueobject.OTJTStatus(log.Status).CanTransitionTo(valueobject.OTJTStatusPending) {
		return nil, apperror.Validation("повторно отправить можно только запись на уточнении")
	}
	if in.Hours != nil {
		if err := validateOTJTHours(*in.Hours); err != nil {
			return nil, err
		}
		log.Hours = valueobject.RoundMoney(*in.Hours)
	}
	if in.Description != nil {
		if err := validation.ValidateOptionalText("описание", in.Description, validation.MaxReasonLength); err != nil {
			return nil, invalid(err)
		}
		log.Description = in.Description
	}

	if err := s.repo.Resubmit(ctx, log, models.MaxOTJTHoursPerDay); err != nil {
		return nil, mapOTJTError(err)
	}
	s.notifyMentor(ctx, enrollment, log)
	return log, nil
}

// ListOTJTLogs возвращает записи ученику или наставнику обучения.
func (s *OTJTService) ListOTJTLogs(ctx context.Context, enrollmentID, userID uuid.UUID, limit, offset int) ([]models.OTJTLog, error) {
	enrollment, err := s.getEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !canViewEnrollment(enrollment, userID) {
		return nil, apperror.Forbidden("нет доступа к обучению")
	}
	limit, offset = pageBounds(limit, offset)
	return s.repo.ListLogs(ctx, enrollmentID, limit, offset)
}

// GetOTJTSummary возвращает прогресс по часам обучения.
func (s *OTJTService) GetOTJTSummary(ctx context.Context, enrollmentID, userID uuid.UUID) (*models.OTJTSummary, error) {
	enrollment, err := s.getEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !canViewEnrollment(enrollment, userID) {
		return nil, apperror.Forbidden("нет доступа к обучению")
	}
	summary, err := s.repo.Summary(ctx, enrollmentID)
	if err != nil {
		return nil, mapOTJTError(err)
	}
	summary.RemainingHours = valueobject.RoundMoney(max(summary.RequiredHours-summary.ApprovedHours, 0))
	if summary.RequiredHours > 0 {
		summary.PercentDone = valueobject.RoundMoney(min(summary.ApprovedHours/summary.RequiredHours*100, 100))
	}
	return summary, nil
}

func (s *OTJTService) notifyMentor(ctx context.Context, enrollment *models.Enrollment, log *models.OTJTLog) {
	if enrollment.MentorID == nil {
		return
	}
	s.notifier.Notify(ctx, EventOTJTUpdated, otjtSignal(log), *enrollment.MentorID)
}

func (s *OTJTService) getEnrollment(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	enrollment, err := s.repo.GetEnrollment(ctx, id)
	if err != nil {
		return nil, mapOTJTError(err)
	}
	return enrollment, nil
}

func (s *OTJTService) getLog(ctx context.Context, id uuid.UUID) (*models.OTJTLog, *models.Enrollment, error) {
	log, err := s.repo.GetLog(ctx, id)
	if err != nil {
		return nil, nil, mapOTJTError(err)
	}
	enrollment, err := s.getEnrollment(ctx, log.EnrollmentID)
	if err != nil {
		return nil, nil, err
	}
	return log, enrollment, nil
}

func canViewEnrollment(e *models.Enrollment, userID uuid.UUID) bool {
	return e.ApprenticeID == userID || (e.MentorID != nil && *e.MentorID == userID)
}

func validateOTJTHours(hours float64) error {
	if hours <= 0 || hours > models.MaxOTJTHoursPerDay {
		return apperror.Validation("часы должны быть больше 0 и не больше 8")
	}
	return nil
}

func otjtSignal(log *models.OTJTLog) map[string]any {
	return map[string]any{
		"enrollment_id": log.EnrollmentID,
		"log_id":        log.ID,
		"status":        log.Status,
	}
}

func mapOTJTError(err error) error {
	switch {
	case errors.Is(err, repository.ErrEnrollmentNotFound):
		return apperror.ErrEnrollmentNotFound
	case errors.Is(err, repository.ErrOTJTLogNotFound):
		return apperror.ErrOTJTLogNotFound
	case errors.Is(err, repository.ErrDailyLimitExceeded):
		return apperror.Validation("за день можно записать не больше 8 часов обучения")
	case errors.Is(err, repository.ErrStateConflict):
		return apperror.Conflict("запись изменилась, обновите данные и повторите")
	}
	return err
}
