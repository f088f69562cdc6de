package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/domain/valueobject"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
	"github.com/ignatzorin/centaur-backend/internal/validation"
)

// DisputeRepository описывает взаимодействие сервиса с хранилищем споров.
type DisputeRepository interface {
	Open(ctx context.Context, d *models.Dispute, expectedStatus, expectedEscrow []string, event *models.OutboxEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	MarkResolved(ctx context.Context, id uuid.UUID, outcome, resolution string, resolvedBy uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
}

// DisputeService открывает и разрешает споры по заказам с удержанными средствами.
type DisputeService struct {
	disputes DisputeRepository
	orders   OrderRepository
	escrow   *EscrowService
	notifier Notifier
}

func NewDisputeService(disputes DisputeRepository, orders OrderRepository, escrow *EscrowService, notifier Notifier) *DisputeService {
	return &DisputeService{disputes: disputes, orders: orders, escrow: escrow, notifier: notifierOrNoop(notifier)}
}

// OpenDispute открывает спор участником заказа и переводит заказ в disputed.
func (s *DisputeService) OpenDispute(ctx context.Context, orderID, userID uuid.UUID, reason string) (*models.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if err := validation.ValidateNonEmpty("причина спора", reason); err != nil {
		return nil, invalid(err)
	}
	if err := validation.ValidateLength("причина спора", reason, 0, validation.MaxReasonLength); err != nil {
		return nil, invalid(err)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if !order.IsParty(userID) {
		return nil, apperror.Forbidden("открыть спор может только участник заказа")
	}
	if !valueobject.EscrowStatus(order.EscrowStatus).HoldsFunds() {
		return nil, apperror.Validation("спор можно открыть только по заказу с удержанными средствами")
	}
	if !valueobject.OrderStatus(order.Status).CanTransitionTo(valueobject.OrderStatusDisputed) {
		return nil, apperror.Validation("по заказу в текущем статусе нельзя открыть спор")
	}

	d := &models.Dispute{
		OrderID:     order.ID,
		InitiatorID: userID,
		Reason:      reason,
		Status:      models.DisputeStatusOpen,
	}
	event := models.NewOutboxEvent("order", order.ID, EventDisputeOpened, map[string]any{
		"initiator_id": userID,
		"reason":       reason,
	})
	err = s.disputes.Open(ctx, d, []string{order.Status}, holdingStatuses(), event)
	switch {
	case errors.Is(err, repository.ErrDisputeAlreadyOpen):
		return nil, apperror.Conflict("по заказу уже открыт спор")
	case err != nil:
		return nil, mapOrderError(err)
	}

	s.notifier.Notify(ctx, EventDisputeOpened, map[string]any{
		"dispute_id": d.ID,
		"order_id":   order.ID,
	}, order.BuyerID, order.SellerID)
	return d, nil
}

// ResolveDisputeInput описывает решение администратора по спору.
type ResolveDisputeInput struct {
	DisputeID uuid.UUID
	AdminID   uuid.UUID
	AdminRole string
	Outcome   string
	Note      string
}

// ResolveDispute разрешает спор: release выплачивает остаток продавцу и
// завершает заказ, refund возвращает остаток покупателю и отменяет заказ.
// Если деньги уже распределены прошлой попыткой, спор только закрывается.
func (s *DisputeService) ResolveDispute(ctx context.Context, in ResolveDisputeInput) (*models.Dispute, error) {
	if in.AdminRole != models.RoleAdmin {
		return nil, apperror.Forbidden("разрешать споры может только администратор")
	}
	if in.Outcome != models.DisputeOutcomeRelease && in.Outcome != models.DisputeOutcomeRefund {
		return nil, apperror.Validation("решение должно быть release или refund")
	}
	if err := validation.ValidateLength("комментарий", in.Note, 0, validation.MaxReasonLength); err != nil {
		return nil, invalid(err)
	}

	d, err := s.getDispute(ctx, in.DisputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != models.DisputeStatusOpen {
		return nil, apperror.Validation("спор уже разрешён")
	}
	order, err := s.orders.GetByID(ctx, d.OrderID)
	if err != nil {
		return nil, mapOrderError(err)
	}

	if valueobject.OrderStatus(order.Status) == valueobject.OrderStatusDisputed {
		expected := []string{order.Status}
		switch {
		case !valueobject.EscrowStatus(order.EscrowStatus).HoldsFunds():
			err = s.closeSettledOrder(ctx, order)
		case in.Outcome == models.DisputeOutcomeRelease:
			completed := string(valueobject.OrderStatusCompleted)
			_, err = s.escrow.releaseRemainder(ctx, order, expected, &completed)
		default:
			_, err = s.escrow.refund(ctx, order, nil, in.Note, expected)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := s.disputes.MarkResolved(ctx, d.ID, in.Outcome, in.Note, in.AdminID); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, apperror.Conflict("спор уже разрешён")
		}
		return nil, err
	}

	s.notifier.Notify(ctx, EventDisputeResolved, map[string]any{
		"dispute_id": d.ID,
		"order_id":   order.ID,
		"outcome":    in.Outcome,
	}, order.BuyerID, order.SellerID)
	return s.getDispute(ctx, d.ID)
}

// closeSettledOrder выводит заказ из disputed, когда удерживать уже нечего:
// выплаченный заказ завершается, возвращённый отменяется.
func (s *DisputeService) closeSettledOrder(ctx context.Context, order *models.Order) error {
	next := string(valueobject.OrderStatusCancelled)
	if valueobject.EscrowStatus(order.EscrowStatus) == valueobject.EscrowStatusReleased {
		next = string(valueobject.OrderStatusCompleted)
	}
	updated, err := s.orders.ApplyTransition(ctx, models.OrderTransition{
		OrderID:              order.ID,
		ExpectedStatus:       []string{order.Status},
		ExpectedEscrowStatus: []string{order.EscrowStatus},
		Status:               &next,
		Event: models.NewOutboxEvent("order", order.ID, EventOrderUpdated, map[string]any{
			"from": order.Status,
			"to":   next,
		}),
	})
	if err != nil {
		return mapOrderError(err)
	}
	s.notifier.Notify(ctx, EventOrderUpdated, orderSignal(updated), updated.BuyerID, updated.SellerID)
	return nil
}

// GetDispute возвращает спор участнику заказа или администратору.
func (s *DisputeService) GetDispute(ctx context.Context, disputeID, userID uuid.UUID, role string) (*models.Dispute, error) {
	d, err := s.getDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if role == models.RoleAdmin {
		return d, nil
	}
	order, err := s.orders.GetByID(ctx, d.OrderID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if !order.IsParty(userID) {
		return nil, apperror.Forbidden("нет доступа к спору")
	}
	return d, nil
}

// ListMyDisputes возвращает споры по заказам пользователя.
func (s *DisputeService) ListMyDisputes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	limit, offset = pageBounds(limit, offset)
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}

// ListOpenDisputes возвращает очередь открытых споров администратору.
func (s *DisputeService) ListOpenDisputes(ctx context.Context, role string, limit, offset int) ([]models.Dispute, error) {
	if role != models.RoleAdmin {
		return nil, apperror.Forbidden("очередь споров доступна только администратору")
	}
	limit, offset = pageBounds(limit, offset)
	return s.disputes.ListOpen(ctx, limit, offset)
}

func (s *DisputeService) getDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, id)
	if errors.Is(err, repository.ErrDisputeNotFound) {
		return nil, apperror.ErrDisputeNotFound
	}
	return d, err
}
