package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/domain/valueobject"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/payment"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
	"github.com/ignatzorin/centaur-backend/internal/validation"
)

// DefaultNoticePeriod - срок, через который вступает в силу отмена ретейнера,
// если дата не указана.
const DefaultNoticePeriod = 14 * 24 * time.Hour

// RetainerRepository описывает взаимодействие сервиса с ретейнерами и табелями.
type RetainerRepository interface {
	GetProviderProfile(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error)
	Create(ctx context.Context, retainer *models.Retainer, event *models.OutboxEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Retainer, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Retainer, error)
	Transition(ctx context.Context, t models.RetainerTransition) (*models.Retainer, error)
	UpsertTimesheet(ctx context.Context, entry *models.TimesheetEntry) (*models.TimesheetUpsert, error)
	GetTimesheet(ctx context.Context, id uuid.UUID) (*models.TimesheetEntry, error)
	ListTimesheets(ctx context.Context, retainerID uuid.UUID) ([]models.TimesheetEntry, error)
	TransitionTimesheet(ctx context.Context, t models.TimesheetTransition) (*models.TimesheetEntry, error)
}

// RetainerService управляет жизненным циклом ретейнеров и недельных табелей.
type RetainerService struct {
	repo            RetainerRepository
	gateway         payment.Gateway
	notifier        Notifier
	feePercent      float64
	defaultCurrency string
	now             func() time.Time
}

func NewRetainerService(repo RetainerRepository, gateway payment.Gateway, notifier Notifier, feePercent float64, defaultCurrency string) *RetainerService {
	return &RetainerService{
		repo:            repo,
		gateway:         gateway,
		notifier:        notifierOrNoop(notifier),
		feePercent:      feePercent,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

// CreateRetainerInput описывает входные данные.
type CreateRetainerInput struct {
	BuyerID           uuid.UUID
	ProviderProfileID uuid.UUID
	Title             string
	WeeklyHours       float64
	HourlyRate        float64
	Currency          string
}

// CreateRetainer создаёт ретейнер покупателя в статусе pending.
func (s *RetainerService) CreateRetainer(ctx context.Context, in CreateRetainerInput) (*models.Retainer, error) {
	if err := validation.ValidateTitle(in.Title); err != nil {
		return nil, invalid(err)
	}
	if err := validation.ValidateWeeklyHours(in.WeeklyHours); err != nil {
		return nil, invalid(err)
	}
	if err := validation.ValidateHourlyRate(in.HourlyRate); err != nil {
		return nil, invalid(err)
	}
	currency := in.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	rate, err := valueobject.NewMoney(in.HourlyRate, currency)
	if err != nil {
		return nil, err
	}

	profile, err := s.repo.GetProviderProfile(ctx, in.ProviderProfileID)
	if errors.Is(err, repository.ErrProviderProfileNotFound) {
		return nil, apperror.NotFound("профиль исполнителя не найден")
	}
	if err != nil {
		return nil, err
	}
	if profile.UserID == in.BuyerID {
		return nil, apperror.Validation("нельзя нанять самого себя")
	}

	retainer := &models.Retainer{
		BuyerID:           in.BuyerID,
		ProviderProfileID: profile.ID,
		SellerID:          profile.UserID,
		Title:             in.Title,
		WeeklyHours:       in.WeeklyHours,
		HourlyRate:        rate.Amount,
		Currency:          rate.Currency,
		Status:            string(valueobject.RetainerStatusPending),
	}
	event := models.NewOutboxEvent("retainer", uuid.Nil, "retainer.created", map[string]any{
		"buyer_id":     in.BuyerID,
		"seller_id":    profile.UserID,
		"weekly_hours": in.WeeklyHours,
		"hourly_rate":  rate.Amount,
	})
	if err := s.repo.Create(ctx, retainer, event); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, EventRetainerUpdated, retainerSignal(retainer), retainer.SellerID)
	return retainer, nil
}

// AcceptRetainer - исполнитель принимает ретейнер.
func (s *RetainerService) AcceptRetainer(ctx context.Context, retainerID, userID uuid.UUID) (*models.Retainer, error) {
	retainer, err := s.getPartyRetainer(ctx, retainerID, userID)
	if err != nil {
		return nil, err
	}
	if retainer.SellerID != userID {
		return nil, apperror.Forbidden("принять ретейнер может только исполнитель")
	}
	return s.transition(ctx, retainer, valueobject.RetainerStatusPending, valueobject.RetainerStatusActive, models.RetainerTransition{})
}

// DeclineRetainer - исполнитель отклоняет ретейнер.
func (s *RetainerService) DeclineRetainer(ctx context.Context, retainerID, userID uuid.UUID, reason string) (*models.Retainer, error) {
	retainer, err := s.getPartyRetainer(ctx, retainerID, userID)
	if err != nil {
		return nil, err
	}
	if retainer.SellerID != userID {
		return nil, apperror.Forbidden("отклонить ретейнер может только исполнитель")
	}
	if err := validation.ValidateOptionalText("причина", &reason, validation.MaxReasonLength); err != nil {
		return nil, invalid(err)
	}
	return s.transition(ctx, retainer, valueobject.RetainerStatusPending, valueobject.RetainerStatusCancelled, models.RetainerTransition{
		CancelledBy:        &userID,
		CancellationReason: optionalString(reason),
	})
}

// PauseRetainer ставит активный ретейнер на паузу. Ретейнер в pending
// поставить на паузу нельзя.
func (s *RetainerService) PauseRetainer(ctx context.Context, retainerID, userID uuid.UUID) (*models.Retainer, error) {
	retainer, err := s.getPartyRetainer(ctx, retainerID, userID)
	if err != nil {
		return nil, err
	}
	if valueobject.RetainerStatus(retainer.Status) == valueobject.RetainerStatusPending {
		return nil, apperror.Validation("ретейнер ещё не принят исполнителем")
	}
	return s.transition(ctx, retainer, valueobject.RetainerStatusActive, valueobject.RetainerStatusPaused, models.RetainerTransition{})
}

// ResumeRetainer возобновляет ретейнер после паузы.
func (s *RetainerService) ResumeRetainer(ctx context.Context, retainerID, userID uuid.UUID) (*models.Retainer, error) {
	retainer, err := s.getPartyRetainer(ctx, retainerID, userID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, retainer, valueobject.RetainerStatusPaused, valueobject.RetainerStatusActive, models.RetainerTransition{})
}

// CancelRetainerInput описывает отмену ретейнера.
type CancelRetainerInput struct {
	RetainerID    uuid.UUID
	UserID        uuid.UUID
	EffectiveDate *time.Time
	Reason        string
}

// CancelRetainer отменяет активный или приостановленный ретейнер. Без явной
// даты отмена вступает в силу через DefaultNoticePeriod.
func (s *RetainerService) CancelRetainer(ctx context.Context, in CancelRetainerInput) (*models.Retainer, error) {
	retainer, err := s.getPartyRetainer(ctx, in.RetainerID, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateOptionalText("причина", &in.Reason, validation.MaxReasonLength); err != nil {
		return nil, invalid(err)
	}

	now := s.now().UTC()
	effective := now.Add(DefaultNoticePeriod)
	if in.EffectiveDate != nil {
		if in.EffectiveDate.Before(validation.DateOnly(now)) {
			return nil, apperror.Validation("дата отмены не может быть в прошлом")
		}
		effective = in.EffectiveDate.UTC()
	}

	current := valueobject.RetainerStatus(retainer.Status)
	if current != valueobject.RetainerStatusActive && current != valueobject.RetainerStatusPaused {
		return nil, apperror.Validation("отменить можно только активный или приостановленный ретейнер")
	}
	return s.transition(ctx, retainer, current, valueobject.RetainerStatusCancelled, models.RetainerTransition{
		CancelledBy:           &in.UserID,
		CancellationReason:    optionalString(in.Reason),
		CancellationEffective: &effective,
	})
}

// GetRetainer возвращает ретейнер стороне ретейнера.
func (s *RetainerService) GetRetainer(ctx context.Context, retainerID, userID uuid.UUID) (*models.Retainer, error) {
	return s.getPartyRetainer(ctx, retainerID, userID)
}

// ListMyRetainers возвращает ретейнеры пользователя.
func (s *RetainerService) ListMyRetainers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Retainer, error) {
	limit, offset = pageBounds(limit, offset)
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// LogHoursInput описывает запись часов за неделю.
type LogHoursInput struct {
	RetainerID  uuid.UUID
	UserID      uuid.UUID
	WeekStart   time.Time
	Hours       float64
	Description *string
}

// LogHours записывает часы исполнителя за неделю. Повторная запись за ту же
// неделю перезаписывает прошлую и возвращает её в draft.
func (s *RetainerService) LogHours(ctx context.Context, in LogHoursInput) (*models.TimesheetUpsert, error) {
	retainer, err := s.getPartyRetainer(ctx, in.RetainerID, in.UserID)
	if err != nil {
		return nil, err
	}
	if retainer.SellerID != in.UserID {
		return nil, apperror.Forbidden("записывать часы может только исполнитель")
	}
	if valueobject.RetainerStatus(retainer.Status) != valueobject.RetainerStatusActive {
		return nil, apperror.Validation("часы можно записывать только по активному ретейнеру")
	}
	if err := validation.ValidateWeeklyHours(in.Hours); err != nil {
		return nil, invalid(err)
	}
	if err := validation.ValidateOptionalText("описание", in.Description, validation.MaxNotesLength); err != nil {
		return nil, invalid(err)
	}
	week := validation.WeekStart(in.WeekStart)
	if week.After(validation.WeekStart(s.now().UTC())) {
		return nil, apperror.Validation("нельзя записать часы за будущую неделю")
	}

	result, err := s.repo.UpsertTimesheet(ctx, &models.TimesheetEntry{
		RetainerID:  retainer.ID,
		WeekStart:   week,
		HoursLogged: in.Hours,
		Description: in.Description,
	})
	if err != nil {
		return nil, mapRetainerError(err)
	}

	s.notifier.Notify(ctx, EventTimesheetUpdated, timesheetSignal(retainer, result.Entry), retainer.BuyerID)
	return result, nil
}

// SubmitTimesheet - исполнитель отправляет неделю на согласование.
func (s *RetainerService) SubmitTimesheet(ctx context.Context, entryID, userID uuid.UUID) (*models.TimesheetEntry, error) {
	entry, retainer, err := s.getEntry(ctx, entryID, userID)
	if err != nil {
		return nil, err
	}
	if retainer.SellerID != userID {
		return nil, apperror.Forbidden("отправить табель может только исполнитель")
	}
	return s.transitionEntry(ctx, retainer, entry, valueobject.TimesheetStatusSubmitted, nil)
}

// ApproveTimesheet - покупатель согласует неделю.
func (s *RetainerService) ApproveTimesheet(ctx context.Context, entryID, userID uuid.UUID) (*models.TimesheetEntry, error) {
	entry, retainer, err := s.getEntry(ctx, entryID, userID)
	if err != nil {
		return nil, err
	}
	if retainer.BuyerID != userID {
		return nil, apperror.Forbidden("согласовать табель может только покупатель")
	}
	return s.transitionEntry(ctx, retainer, entry, valueobject.TimesheetStatusApproved, nil)
}

// DisputeTimesheet - покупатель оспаривает неделю.
func (s *RetainerService) DisputeTimesheet(ctx context.Context, entryID, userID uuid.UUID) (*models.TimesheetEntry, error) {
	entry, retainer, err := s.getEntry(ctx, entryID, userID)
	if err != nil {
		return nil, err
	}
	if retainer.BuyerID != userID {
		return nil, apperror.Forbidden("оспорить табель может только покупатель")
	}
	return s.transitionEntry(ctx, retainer, entry, valueobject.TimesheetStatusDisputed, nil)
}

// PayTimesheet оплачивает согласованную неделю: списывает с покупателя
// часы × ставку и переводит исполнителю за вычетом комиссии. Операции шлюза
// идемпотентны по записи табеля и сумме: повтор после сбоя безопасен, а
// переписанные после сбоя часы дают новое намерение, а не старое.
func (s *RetainerService) PayTimesheet(ctx context.Context, entryID, userID uuid.UUID) (*models.TimesheetEntry, error) {
	entry, retainer, err := s.getEntry(ctx, entryID, userID)
	if err != nil {
		return nil, err
	}
	if retainer.BuyerID != userID {
		return nil, apperror.Forbidden("оплатить табель может только покупатель")
	}
	if valueobject.TimesheetStatus(entry.Status) != valueobject.TimesheetStatusApproved {
		return nil, apperror.Validation("оплатить можно только согласованную неделю")
	}

	amount := valueobject.RoundMoney(entry.HoursLogged * retainer.HourlyRate)
	intent, err := s.gateway.CreatePaymentIntent(ctx, payment.IntentParams{
		PayerID:        retainer.BuyerID,
		Amount:         amount,
		Currency:       retainer.Currency,
		IdempotencyKey: timesheetKey("payment", entry.ID, amount),
		Metadata:       map[string]string{"retainer_id": retainer.ID.String(), "timesheet_id": entry.ID.String()},
	})
	if err != nil {
		return nil, timesheetPaymentError(err)
	}
	if _, err := s.gateway.ConfirmPaymentIntent(ctx, intent.ID); err != nil {
		return nil, timesheetPaymentError(err)
	}
	fee := valueobject.PlatformFee(amount, s.feePercent)
	transfer, err := s.gateway.CreateTransfer(ctx, payment.TransferParams{
		IntentID:       intent.ID,
		DestinationID:  retainer.SellerID,
		Amount:         amount,
		Fee:            fee,
		IdempotencyKey: timesheetKey("transfer", entry.ID, amount),
	})
	if err != nil {
		return nil, timesheetPaymentError(err)
	}

	return s.transitionEntry(ctx, retainer, entry, valueobject.TimesheetStatusPaid, &transfer.ID)
}

// timesheetKey - ключ идемпотентности операции по табелю. Сумма входит в
// ключ в минимальных единицах валюты.
func timesheetKey(op string, entryID uuid.UUID, amount float64) string {
	return fmt.Sprintf("timesheet-%s:%s:%d", op, entryID, int64(math.Round(amount*100)))
}

// ListTimesheets возвращает табель ретейнера стороне ретейнера.
func (s *RetainerService) ListTimesheets(ctx context.Context, retainerID, userID uuid.UUID) ([]models.TimesheetEntry, error) {
	if _, err := s.getPartyRetainer(ctx, retainerID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListTimesheets(ctx, retainerID)
}

func (s *RetainerService) transition(ctx context.Context, retainer *models.Retainer, from, to valueobject.RetainerStatus, t models.RetainerTransition) (*models.Retainer, error) {
	if valueobject.RetainerStatus(retainer.Status) != from || !from.CanTransitionTo(to) {
		return nil, apperror.Validation("недопустимый переход статуса ретейнера")
	}
	t.RetainerID = retainer.ID
	t.ExpectedStatus = []string{string(from)}
	t.Status = string(to)
	t.Event = models.NewOutboxEvent("retainer", retainer.ID, "retainer."+string(to), map[string]any{
		"from": string(from),
		"to":   string(to),
	})

	updated, err := s.repo.Transition(ctx, t)
	if err != nil {
		return nil, mapRetainerError(err)
	}
	s.notifier.Notify(ctx, EventRetainerUpdated, retainerSignal(updated), updated.BuyerID, updated.SellerID)
	return updated, nil
}

func (s *RetainerService) transitionEntry(ctx context.Context, retainer *models.Retainer, entry *models.TimesheetEntry, to valueobject.TimesheetStatus, transferID *string) (*models.TimesheetEntry, error) {
	from := valueobject.TimesheetStatus(entry.Status)
	if !from.CanTransitionTo(to) {
		return nil, apperror.Validation("недопустимый переход статуса табеля")
	}
	updated, err := s.repo.TransitionTimesheet(ctx, models.TimesheetTransition{
		EntryID:        entry.ID,
		ExpectedStatus: string(from),
		Status:         string(to),
		TransferID:     transferID,
		Event: models.NewOutboxEvent("timesheet", entry.ID, "timesheet."+string(to), map[string]any{
			"retainer_id": retainer.ID,
			"from":        string(from),
			"to":          string(to),
			"transfer_id": transferID,
		}),
	})
	if err != nil {
		return nil, mapRetainerError(err)
	}
	s.notifier.Notify(ctx, EventTimesheetUpdated, timesheetSignal(retainer, updated), retainer.BuyerID, retainer.SellerID)
	return updated, nil
}

func (s *RetainerService) getPartyRetainer(ctx context.Context, retainerID, userID uuid.UUID) (*models.Retainer, error) {
	retainer, err := s.repo.GetByID(ctx, retainerID)
	if err != nil {
		return nil, mapRetainerError(err)
	}
	if !retainer.IsParty(userID) {
		return nil, apperror.Forbidden("нет доступа к ретейнеру")
	}
	return retainer, nil
}

func (s *RetainerService) getEntry(ctx context.Context, entryID, userID uuid.UUID) (*models.TimesheetEntry, *models.Retainer, error) {
	entry, err := s.repo.GetTimesheet(ctx, entryID)
	if err != nil {
		return nil, nil, mapRetainerError(err)
	}
	retainer, err := s.getPartyRetainer(ctx, entry.RetainerID, userID)
	if err != nil {
		return nil, nil, err
	}
	return entry, retainer, nil
}

func retainerSignal(r *models.Retainer) map[string]any {
	return map[string]any{"retainer_id": r.ID, "status": r.Status}
}

func timesheetSignal(r *models.Retainer, e *models.TimesheetEntry) map[string]any {
	return map[string]any{
		"retainer_id":  r.ID,
		"timesheet_id": e.ID,
		"week_start":   e.WeekStart.Format(validation.DateLayout),
		"status":       e.Status,
	}
}

func timesheetPaymentError(err error) error {
	if errors.Is(err, payment.ErrInsufficientFunds) {
		return apperror.Validation("недостаточно средств на балансе")
	}
	return apperror.Sanitize(err, paymentErrorMessage)
}

func mapRetainerError(err error) error {
	switch {
	case errors.Is(err, repository.ErrRetainerNotFound):
		return apperror.ErrRetainerNotFound
	case errors.Is(err, repository.ErrTimesheetNotFound):
		return apperror.ErrTimesheetNotFound
	case errors.Is(err, repository.ErrTimesheetLocked):
		return apperror.Conflict("неделя уже оплачена и не может быть изменена")
	case errors.Is(err, repository.ErrStateConflict):
		return apperror.Conflict("ретейнер изменился, обновите данные и повторите")
	}
	return err
}
