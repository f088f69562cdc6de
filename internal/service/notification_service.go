package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/centaur-backend/internal/goroutine"
	"github.com/ignatzorin/centaur-backend/internal/logger"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
)

// События, о которых уведомляются пользователи.
const (
	EventOrderCreated       = "order.created"
	EventOrderUpdated       = "order.updated"
	EventPaymentHeld        = "payment.held"
	EventMilestoneSubmitted = "milestone.submitted"
	EventMilestoneReleased  = "milestone.released"
	EventOrderRefunded      = "order.refunded"
	EventDisputeOpened      = "dispute.opened"
	EventDisputeResolved    = "dispute.resolved"
	EventRetainerUpdated    = "retainer.updated"
	EventTimesheetUpdated   = "timesheet.updated"
	EventAvailabilityUpdate = "availability.updated"
	EventOTJTUpdated        = "otjt.updated"
	EventMemberOffboarded   = "member.offboarded"
)

// notificationEvents - события, для которых можно настроить каналы, в порядке показа.
var notificationEvents = []string{
	EventOrderCreated, EventOrderUpdated, EventPaymentHeld, EventMilestoneSubmitted, EventMilestoneReleased,
	EventOrderRefunded, EventDisputeOpened, EventDisputeResolved, EventRetainerUpdated, EventTimesheetUpdated,
	EventAvailabilityUpdate, EventOTJTUpdated, EventMemberOffboarded,
}

const dispatchTimeout = 5 * time.Second

// Notifier рассылает событие пользователям. Доставка best-effort: ошибки
// логируются и не влияют на вызывающую операцию.
type Notifier interface {
	Notify(ctx context.Context, event string, data any, userIDs ...uuid.UUID)
}

// Realtime отправляет событие в открытые WebSocket подключения пользователя.
type Realtime interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	GetPreference(ctx context.Context, userID uuid.UUID, event string) (*models.NotificationPreference, error)
	ListPreferences(ctx context.Context, userID uuid.UUID) ([]models.NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref *models.NotificationPreference) error
}

// NotificationService содержит бизнес-логику работы с уведомлениями.
type NotificationService struct {
	repo     NotificationRepository
	realtime Realtime
}

// NewNotificationService создаёт новый сервис уведомлений. realtime может быть nil.
func NewNotificationService(repo NotificationRepository, realtime Realtime) *NotificationService {
	return &NotificationService{repo: repo, realtime: realtime}
}

// Notify асинхронно сохраняет уведомление и отправляет его в WebSocket.
func (s *NotificationService) Notify(ctx context.Context, event string, data any, userIDs ...uuid.UUID) {
	base := context.WithoutCancel(ctx)
	for _, userID := range userIDs {
		if userID == uuid.Nil {
			continue
		}
		userID := userID
		goroutine.SafeGo(func() {
			dctx, cancel := context.WithTimeout(base, dispatchTimeout)
			defer cancel()
			if err := s.dispatch(dctx, userID, event, data); err != nil {
				logger.For("notifications").WithFields(logrus.Fields{
					"user_id": userID,
					"event":   event,
					"error":   err.Error(),
				}).Warn("notification service: не удалось доставить уведомление")
			}
		})
	}
}

// dispatch доставляет одно уведомление синхронно. Сигнал в WebSocket
// отправляется всегда, запись в ленту - если пользователь не отключил её.
func (s *NotificationService) dispatch(ctx context.Context, userID uuid.UUID, event string, data any) error {
	if s.realtime != nil {
		if err := s.realtime.BroadcastToUser(userID, event, data); err != nil {
			return fmt.Errorf("notification service: realtime %w", err)
		}
	}

	pref, err := s.repo.GetPreference(ctx, userID, event)
	if err != nil {
		return err
	}
	if pref != nil && !pref.InApp {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"event": event,
		"data":  data,
	})
	if err != nil {
		return fmt.Errorf("notification service: marshal payload %w", err)
	}

	return s.repo.Create(ctx, &models.Notification{
		UserID:  userID,
		Event:   event,
		Payload: payload,
	})
}

// ListNotifications возвращает список уведомлений пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	limit, offset = pageBounds(limit, offset)
	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

// MarkAsRead отмечает уведомление пользователя как прочитанное.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	return mapNotificationError(s.repo.MarkAsRead(ctx, id, userID))
}

// MarkAllAsRead отмечает все уведомления пользователя как прочитанные.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// DeleteNotification удаляет уведомление пользователя.
func (s *NotificationService) DeleteNotification(ctx context.Context, id, userID uuid.UUID) error {
	return mapNotificationError(s.repo.Delete(ctx, id, userID))
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// GetPreferences возвращает настройки по всем событиям; несохранённые
// события получают значения по умолчанию (лента включена, email выключен).
func (s *NotificationService) GetPreferences(ctx context.Context, userID uuid.UUID) ([]models.NotificationPreference, error) {
	saved, err := s.repo.ListPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	byEvent := make(map[string]models.NotificationPreference, len(saved))
	for _, p := range saved {
		byEvent[p.Event] = p
	}

	prefs := make([]models.NotificationPreference, 0, len(notificationEvents))
	for _, event := range notificationEvents {
		if p, ok := byEvent[event]; ok {
			prefs = append(prefs, p)
			continue
		}
		prefs = append(prefs, models.NotificationPreference{UserID: userID, Event: event, InApp: true})
	}
	return prefs, nil
}

// UpdatePreference сохраняет настройку канала для события.
func (s *NotificationService) UpdatePreference(ctx context.Context, userID uuid.UUID, event string, inApp, email bool) (*models.NotificationPreference, error) {
	if !slices.Contains(notificationEvents, event) {
		return nil, apperror.Validation("неизвестный тип события")
	}
	pref := &models.NotificationPreference{UserID: userID, Event: event, InApp: inApp, Email: email}
	if err := s.repo.UpsertPreference(ctx, pref); err != nil {
		return nil, err
	}
	return pref, nil
}

func mapNotificationError(err error) error {
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return apperror.NotFound("уведомление не найдено")
	}
	return err
}

// noopNotifier используется, когда уведомления не подключены (тесты, CLI).
type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, any, ...uuid.UUID) {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
