package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/domain/valueobject"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/validation"
)

// OrderService содержит бизнес-логику жизненного цикла заказа. Движение
// средств делегируется EscrowService.
type OrderService struct {
	repo            OrderRepository
	escrow          *EscrowService
	notifier        Notifier
	defaultCurrency string
}

// NewOrderService создаёт новый сервис заказов.
func NewOrderService(repo OrderRepository, escrow *EscrowService, notifier Notifier, defaultCurrency string) *OrderService {
	return &OrderService{
		repo:            repo,
		escrow:          escrow,
		notifier:        notifierOrNoop(notifier),
		defaultCurrency: defaultCurrency,
	}
}

// MilestoneInput описывает этап нового заказа.
type MilestoneInput struct {
	Title  string
	Amount float64
}

// CreateOrderInput описывает входные данные.
type CreateOrderInput struct {
	BuyerID     uuid.UUID
	SellerID    uuid.UUID
	ListingID   *uuid.UUID
	Title       string
	TotalAmount float64
	Currency    string
	Milestones  []MilestoneInput
}

// OrderDetails - заказ вместе с этапами.
type OrderDetails struct {
	Order      *models.Order           `json:"order"`
	Milestones []models.OrderMilestone `json:"milestones"`
}

// CreateOrder создаёт заказ покупателя. Сумма этапов не может превышать сумму заказа.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderDetails, error) {
	if in.BuyerID == in.SellerID {
		return nil, apperror.Validation("нельзя создать заказ у самого себя")
	}
	if err := validation.ValidateTitle(in.Title); err != nil {
		return nil, invalid(err)
	}
	if err := validation.ValidateAmount(in.TotalAmount); err != nil {
		return nil, invalid(err)
	}
	currency := in.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	total, err := valueobject.NewMoney(in.TotalAmount, currency)
	if err != nil {
		return nil, err
	}

	milestones := make([]models.OrderMilestone, 0, len(in.Milestones))
	var sum float64
	for _, m := range in.Milestones {
		if err := validation.ValidateTitle(m.Title); err != nil {
			return nil, invalid(err)
		}
		if err := validation.ValidateAmount(m.Amount); err != nil {
			return nil, invalid(err)
		}
		amount := valueobject.RoundMoney(m.Amount)
		sum += amount
		milestones = append(milestones, models.OrderMilestone{
			Title:  m.Title,
			Amount: amount,
			Status: string(valueobject.MilestoneStatusPending),
		})
	}
	if valueobject.RoundMoney(sum) > total.Amount {
		return nil, apperror.Validation("сумма этапов превышает сумму заказа")
	}

	order := &models.Order{
		BuyerID:      in.BuyerID,
		SellerID:     in.SellerID,
		ListingID:    in.ListingID,
		Title:        in.Title,
		TotalAmount:  total.Amount,
		Currency:     total.Currency,
		Status:       string(valueobject.OrderStatusPending),
		EscrowStatus: string(valueobject.EscrowStatusPending),
	}
	event := models.NewOutboxEvent("order", uuid.Nil, EventOrderCreated, map[string]any{
		"buyer_id":     in.BuyerID,
		"seller_id":    in.SellerID,
		"total_amount": total.Amount,
		"currency":     total.Currency,
		"milestones":   len(milestones),
	})
	if err := s.repo.Create(ctx, order, milestones, event); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, EventOrderCreated, orderSignal(order), order.SellerID)
	return &OrderDetails{Order: order, Milestones: milestones}, nil
}

// GetOrder возвращает заказ с этапами участнику заказа.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderDetails, error) {
	order, err := s.getPartyOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	milestones, err := s.repo.ListMilestones(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &OrderDetails{Order: order, Milestones: milestones}, nil
}

// ListMilestones возвращает этапы заказа участнику заказа.
func (s *OrderService) ListMilestones(ctx context.Context, orderID, userID uuid.UUID) ([]models.OrderMilestone, error) {
	if _, err := s.getPartyOrder(ctx, orderID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListMilestones(ctx, orderID)
}

// ListMyOrders возвращает заказы пользователя; role = buyer|seller сужает выборку.
func (s *OrderService) ListMyOrders(ctx context.Context, userID uuid.UUID, role string, limit, offset int) ([]models.Order, error) {
	if role != "" && role != "buyer" && role != "seller" {
		return nil, apperror.Validation("role должен быть buyer или seller")
	}
	limit, offset = pageBounds(limit, offset)
	return s.repo.ListByUser(ctx, userID, role, limit, offset)
}

// AcceptOrder - продавец принимает заказ.
func (s *OrderService) AcceptOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.getPartyOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != userID {
		return nil, apperror.Forbidden("принять заказ может только продавец")
	}
	return s.transition(ctx, order, valueobject.OrderStatusAccepted)
}

// StartOrder - продавец начинает работу по оплаченному заказу.
func (s *OrderService) StartOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.getPartyOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != userID {
		return nil, apperror.Forbidden("начать работу может только продавец")
	}
	if !valueobject.EscrowStatus(order.EscrowStatus).HoldsFunds() {
		return nil, apperror.Validation("работу можно начать только после оплаты заказа")
	}
	return s.transition(ctx, order, valueobject.OrderStatusInProgress)
}

// CompleteOrder - покупатель принимает работу; остаток удержания выплачивается
// продавцу в той же транзакции, что и смена статуса.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.getPartyOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID {
		return nil, apperror.Forbidden("завершить заказ может только покупатель")
	}
	current := valueobject.OrderStatus(order.Status)
	if current != valueobject.OrderStatusInProgress {
		return nil, apperror.Validation("завершить можно только заказ в работе")
	}

	if valueobject.EscrowStatus(order.EscrowStatus).HoldsFunds() && order.HeldRemainder() > 0 {
		completed := string(valueobject.OrderStatusCompleted)
		result, err := s.escrow.releaseRemainder(ctx, order, []string{order.Status}, &completed)
		if err != nil {
			return nil, err
		}
		return result.Order, nil
	}
	return s.transition(ctx, order, valueobject.OrderStatusCompleted)
}

// CancelOrder отменяет заказ до начала работы. Удержанные средства
// возвращаются покупателю полностью.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID uuid.UUID, reason string) (*models.Order, error) {
	order, err := s.getPartyOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	current := valueobject.OrderStatus(order.Status)
	if current != valueobject.OrderStatusPending && current != valueobject.OrderStatusAccepted {
		return nil, apperror.Validation("отменить можно только заказ, работа по которому не начата")
	}
	if err := validation.ValidateOptionalText("причина отмены", &reason, validation.MaxReasonLength); err != nil {
		return nil, invalid(err)
	}
	result, err := s.escrow.refund(ctx, order, nil, reason, []string{order.Status})
	if err != nil {
		return nil, err
	}
	return result.Order, nil
}

func (s *OrderService) transition(ctx context.Context, order *models.Order, next valueobject.OrderStatus) (*models.Order, error) {
	if !valueobject.OrderStatus(order.Status).CanTransitionTo(next) {
		return nil, apperror.Validation("недопустимый переход статуса заказа")
	}
	status := string(next)
	updated, err := s.repo.ApplyTransition(ctx, models.OrderTransition{
		OrderID:        order.ID,
		ExpectedStatus: []string{order.Status},
		Status:         &status,
		Event: models.NewOutboxEvent("order", order.ID, EventOrderUpdated, map[string]any{
			"from": order.Status,
			"to":   status,
		}),
	})
	if err != nil {
		return nil, mapOrderError(err)
	}
	s.notifier.Notify(ctx, EventOrderUpdated, orderSignal(updated), updated.BuyerID, updated.SellerID)
	return updated, nil
}

func (s *OrderService) getPartyOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if !order.IsParty(userID) {
		return nil, apperror.Forbidden("нет доступа к заказу")
	}
	return order, nil
}
