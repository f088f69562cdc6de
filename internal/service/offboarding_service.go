package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/centaur-backend/internal/logger"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
	"github.com/ignatzorin/centaur-backend/internal/validation"
)

// ErrLastFounderMessage возвращается клиенту при попытке удалить последнего
// активного основателя.
const ErrLastFounderMessage = "Cannot offboard the last active Founder"

// MemberRepository описывает хранилище участников foundry.
type MemberRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	GetByUser(ctx context.Context, userID, foundryID uuid.UUID) (*models.Member, error)
	ListByFoundry(ctx context.Context, foundryID uuid.UUID, includeInactive bool) ([]models.Member, error)
	CountActiveFounders(ctx context.Context, foundryID uuid.UUID) (int, error)
	Offboard(ctx context.Context, actor *models.Member, req models.OffboardRequest) (*models.OffboardResult, error)
	ListAuditLog(ctx context.Context, foundryID uuid.UUID, limit, offset int) ([]models.AuditLogEntry, error)
}

// OffboardingService выполняет offboarding участников foundry.
type OffboardingService struct {
	members  MemberRepository
	notifier Notifier
}

func NewOffboardingService(members MemberRepository, notifier Notifier) *OffboardingService {
	return &OffboardingService{members: members, notifier: notifierOrNoop(notifier)}
}

// OffboardMember удаляет, деактивирует или обезличивает участника foundry.
// Выполнять может Executive или Founder той же foundry; основателя может
// удалить только другой основатель.
func (s *OffboardingService) OffboardMember(ctx context.Context, req models.OffboardRequest) (*models.OffboardResult, error) {
	if _, ok := models.ValidOffboardModes[req.Mode]; !ok {
		return nil, apperror.Validation("режим должен быть reassign_delete, soft_delete или anonymize")
	}
	if err := validation.ValidateLength("причина", req.Reason, 0, validation.MaxReasonLength); err != nil {
		return nil, invalid(err)
	}

	target, err := s.members.GetByID(ctx, req.TargetID)
	if err != nil {
		return nil, mapMemberError(err)
	}
	actor, err := s.members.GetByUser(ctx, req.ActorUserID, target.FoundryID)
	if errors.Is(err, repository.ErrMemberNotFound) {
		return nil, apperror.Forbidden("вы не состоите в этой foundry")
	}
	if err != nil {
		return nil, err
	}

	if !actor.CanManageMembers() {
		return nil, apperror.Forbidden("offboarding доступен только Executive и Founder")
	}
	if actor.ID == target.ID {
		return nil, apperror.Validation("нельзя выполнить offboarding самого себя")
	}
	// Последнего основателя не удаляет никто, включая Executive. Offboard
	// повторяет проверку под блокировкой.
	if target.IsFounder() && target.IsActive {
		founders, err := s.members.CountActiveFounders(ctx, target.FoundryID)
		if err != nil {
			return nil, err
		}
		if founders <= 1 {
			return nil, apperror.Validation(ErrLastFounderMessage)
		}
	}
	if target.IsFounder() && !actor.IsFounder() {
		return nil, apperror.Forbidden("удалить основателя может только основатель")
	}
	if req.Mode == models.OffboardModeSoftDelete && !target.IsActive {
		return nil, apperror.Validation("участник уже деактивирован")
	}

	result, err := s.members.Offboard(ctx, actor, req)
	if err != nil {
		return nil, mapMemberError(err)
	}

	logger.For("offboarding").WithFields(logrus.Fields{
		"foundry_id": target.FoundryID,
		"actor_id":   actor.ID,
		"target_id":  target.ID,
		"mode":       req.Mode,
	}).Info("участник отключён от foundry")

	s.notifier.Notify(ctx, EventMemberOffboarded, map[string]any{
		"foundry_id": target.FoundryID,
		"target_id":  target.ID,
		"mode":       req.Mode,
	}, actor.UserID)
	return result, nil
}

// ListMembers возвращает участников foundry её участнику.
func (s *OffboardingService) ListMembers(ctx context.Context, foundryID, userID uuid.UUID, includeInactive bool) ([]models.Member, error) {
	actor, err := s.members.GetByUser(ctx, userID, foundryID)
	if errors.Is(err, repository.ErrMemberNotFound) {
		return nil, apperror.Forbidden("вы не состоите в этой foundry")
	}
	if err != nil {
		return nil, err
	}
	if includeInactive && !actor.CanManageMembers() {
		includeInactive = false
	}
	return s.members.ListByFoundry(ctx, foundryID, includeInactive)
}

// ListAuditLog возвращает журнал административных действий foundry.
func (s *OffboardingService) ListAuditLog(ctx context.Context, foundryID, userID uuid.UUID, limit, offset int) ([]models.AuditLogEntry, error) {
	actor, err := s.members.GetByUser(ctx, userID, foundryID)
	if errors.Is(err, repository.ErrMemberNotFound) {
		return nil, apperror.Forbidden("вы не состоите в этой foundry")
	}
	if err != nil {
		return nil, err
	}
	if !actor.CanManageMembers() {
		return nil, apperror.Forbidden("журнал доступен только Executive и Founder")
	}
	limit, offset = pageBounds(limit, offset)
	return s.members.ListAuditLog(ctx, foundryID, limit, offset)
}

func mapMemberError(err error) error {
	switch {
	case errors.Is(err, repository.ErrMemberNotFound):
		return apperror.ErrMemberNotFound
	case errors.Is(err, repository.ErrLastFounder):
		return apperror.Validation(ErrLastFounderMessage)
	}
	return err
}
