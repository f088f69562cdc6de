package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/centaur-backend/internal/domain/valueobject"
	"github.com/ignatzorin/centaur-backend/internal/logger"
	"github.com/ignatzorin/centaur-backend/internal/metrics"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/payment"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
	"github.com/ignatzorin/centaur-backend/internal/validation"
)

const paymentErrorMessage = "платёжная операция не выполнена, попробуйте позже"

// OrderRepository описывает взаимодействие сервисов с хранилищем заказов.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order, milestones []models.OrderMilestone, event *models.OutboxEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, role string, limit, offset int) ([]models.Order, error)
	ListMilestones(ctx context.Context, orderID uuid.UUID) ([]models.OrderMilestone, error)
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error)
	AttachPaymentIntent(ctx context.Context, orderID uuid.UUID, intentID string) error
	ApplyTransition(ctx context.Context, t models.OrderTransition) (*models.Order, error)
}

// EscrowService проверяет статусы заказа и этапов перед движением средств
// и передаёт сами операции платёжному шлюзу.
type EscrowService struct {
	orders     OrderRepository
	gateway    payment.Gateway
	notifier   Notifier
	metrics    *metrics.Collector
	feePercent float64
}

// NewEscrowService создаёт сервис удержания оплаты. notifier и collector могут быть nil.
func NewEscrowService(orders OrderRepository, gateway payment.Gateway, notifier Notifier, collector *metrics.Collector, feePercent float64) *EscrowService {
	return &EscrowService{
		orders:     orders,
		gateway:    gateway,
		notifier:   notifierOrNoop(notifier),
		metrics:    collector,
		feePercent: feePercent,
	}
}

// PaymentInit - результат создания намерения оплаты заказа.
type PaymentInit struct {
	OrderID         uuid.UUID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
}

// ReleaseResult - результат выплаты продавцу.
type ReleaseResult struct {
	Order       *models.Order `json:"order"`
	MilestoneID *uuid.UUID    `json:"milestone_id,omitempty"`
	TransferID  string        `json:"transfer_id"`
	Amount      float64       `json:"amount"`
	Fee         float64       `json:"fee"`
}

// RefundResult - результат возврата средств покупателю.
type RefundResult struct {
	Order    *models.Order `json:"order"`
	RefundID *string       `json:"refund_id,omitempty"`
	Amount   float64       `json:"amount"`
}

// CreateOrderPayment создаёт намерение оплаты заказа. Повторный вызов для
// неоплаченного заказа возвращает то же намерение.
func (s *EscrowService) CreateOrderPayment(ctx context.Context, orderID, userID uuid.UUID) (*PaymentInit, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID {
		return nil, apperror.Forbidden("оплатить заказ может только покупатель")
	}
	if !valueobject.OrderStatus(order.Status).IsPayable() {
		return nil, apperror.Validation("заказ нельзя оплатить в текущем статусе")
	}
	if valueobject.EscrowStatus(order.EscrowStatus) != valueobject.EscrowStatusPending {
		return nil, apperror.Validation("оплата по заказу уже внесена")
	}

	key := "order-payment:" + order.ID.String()
	if order.StripePaymentIntentID != nil {
		existing, err := s.gateway.GetPaymentIntent(ctx, *order.StripePaymentIntentID)
		if err != nil {
			return nil, s.paymentError(err, "get intent", order.ID)
		}
		if existing.Status == models.IntentStatusRequiresConfirmation {
			return newPaymentInit(order.ID, existing), nil
		}
		// прошлое намерение отменено, нужен новый ключ
		key += ":" + uuid.NewString()
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, payment.IntentParams{
		PayerID:        order.BuyerID,
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		IdempotencyKey: key,
		Metadata:       map[string]string{"order_id": order.ID.String()},
	})
	if err != nil {
		return nil, s.paymentError(err, "create intent", order.ID)
	}

	if err := s.orders.AttachPaymentIntent(ctx, order.ID, intent.ID); err != nil {
		return nil, mapOrderError(err)
	}
	return newPaymentInit(order.ID, intent), nil
}

// ConfirmOrderPayment подтверждает намерение оплаты от имени покупателя и
// переводит escrow заказа в held.
func (s *EscrowService) ConfirmOrderPayment(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID {
		return nil, apperror.Forbidden("подтвердить оплату может только покупатель")
	}
	if order.StripePaymentIntentID == nil {
		return nil, apperror.Validation("оплата по заказу не создана")
	}
	if _, err := s.gateway.ConfirmPaymentIntent(ctx, *order.StripePaymentIntentID); err != nil {
		return nil, s.paymentError(err, "confirm intent", order.ID)
	}
	return s.HandlePaymentSucceeded(ctx, *order.StripePaymentIntentID)
}

// HandlePaymentSucceeded отмечает средства заказа удержанными после успешного
// намерения оплаты. Повторный вызов ничего не меняет.
func (s *EscrowService) HandlePaymentSucceeded(ctx context.Context, intentID string) (*models.Order, error) {
	order, err := s.orders.GetByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if valueobject.EscrowStatus(order.EscrowStatus) != valueobject.EscrowStatusPending {
		return order, nil
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, s.paymentError(err, "get intent", order.ID)
	}
	if intent.Status != models.IntentStatusSucceeded {
		return nil, apperror.Validation("оплата ещё не подтверждена")
	}

	held := string(valueobject.EscrowStatusHeld)
	updated, err := s.orders.ApplyTransition(ctx, models.OrderTransition{
		OrderID:              order.ID,
		ExpectedEscrowStatus: []string{string(valueobject.EscrowStatusPending)},
		EscrowStatus:         &held,
		Event: models.NewOutboxEvent("order", order.ID, EventPaymentHeld, map[string]any{
			"payment_intent_id": intentID,
			"amount":            intent.Amount,
		}),
	})
	if errors.Is(err, repository.ErrStateConflict) {
		// параллельный вызов успел первым
		return s.getOrder(ctx, order.ID)
	}
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.metrics.EscrowTransition(order.EscrowStatus, updated.EscrowStatus)
	s.notifier.Notify(ctx, EventPaymentHeld, orderSignal(updated), updated.BuyerID, updated.SellerID)
	return updated, nil
}

// SubmitMilestone сдаёт этап заказа на проверку покупателю.
func (s *EscrowService) SubmitMilestone(ctx context.Context, milestoneID, userID uuid.UUID) (*models.OrderMilestone, error) {
	milestone, order, err := s.getMilestoneWithOrder(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != userID {
		return nil, apperror.Forbidden("сдать этап может только продавец")
	}
	if err := guardPartyMoney(order, workStatuses()); err != nil {
		return nil, err
	}
	if !valueobject.MilestoneStatus(milestone.Status).CanTransitionTo(valueobject.MilestoneStatusSubmitted) {
		return nil, apperror.Validation("этап нельзя сдать в текущем статусе")
	}
	if !valueobject.EscrowStatus(order.EscrowStatus).HoldsFunds() {
		return nil, apperror.Validation("этап можно сдать только после оплаты заказа")
	}

	_, err = s.orders.ApplyTransition(ctx, models.OrderTransition{
		OrderID:              order.ID,
		ExpectedStatus:       []string{order.Status},
		ExpectedEscrowStatus: holdingStatuses(),
		Milestone: &models.MilestoneTransition{
			MilestoneID:    milestone.ID,
			ExpectedStatus: milestone.Status,
			Status:         string(valueobject.MilestoneStatusSubmitted),
		},
		Event: models.NewOutboxEvent("order", order.ID, EventMilestoneSubmitted, map[string]any{
			"milestone_id": milestone.ID,
		}),
	})
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.notifier.Notify(ctx, EventMilestoneSubmitted, map[string]any{
		"order_id":     order.ID,
		"milestone_id": milestone.ID,
	}, order.BuyerID)
	return s.getMilestone(ctx, milestone.ID)
}

// ApproveAndReleaseMilestone одобряет сданный этап и выплачивает его сумму
// продавцу за вычетом комиссии платформы. Этап, escrow статус, суммы и
// событие меняются одной транзакцией.
func (s *EscrowService) ApproveAndReleaseMilestone(ctx context.Context, milestoneID, userID uuid.UUID) (*ReleaseResult, error) {
	milestone, order, err := s.getMilestoneWithOrder(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID {
		return nil, apperror.Forbidden("одобрить этап может только покупатель")
	}
	if err := guardPartyMoney(order, releaseStatuses()); err != nil {
		return nil, err
	}
	if valueobject.MilestoneStatus(milestone.Status) != valueobject.MilestoneStatusSubmitted {
		return nil, apperror.Validation("этап должен быть сдан перед одобрением")
	}
	escrow := valueobject.EscrowStatus(order.EscrowStatus)
	if !escrow.HoldsFunds() {
		return nil, apperror.Validation("по заказу нет удерживаемых средств")
	}
	if order.StripePaymentIntentID == nil {
		return nil, apperror.Validation("оплата по заказу не создана")
	}
	if valueobject.RoundMoney(milestone.Amount) > valueobject.RoundMoney(order.HeldRemainder()) {
		return nil, apperror.Validation("сумма этапа превышает удерживаемый остаток")
	}

	// возвращённая часть тоже уменьшает то, что ещё можно выплатить
	settled := valueobject.RoundMoney(order.AmountReleased + order.AmountRefunded + milestone.Amount)
	next := valueobject.AfterRelease(settled, order.TotalAmount)
	if !escrow.CanTransitionTo(next) {
		return nil, apperror.Validation("недопустимый переход статуса оплаты")
	}

	fee := valueobject.PlatformFee(milestone.Amount, s.feePercent)
	transfer, err := s.gateway.CreateTransfer(ctx, payment.TransferParams{
		IntentID:       *order.StripePaymentIntentID,
		DestinationID:  order.SellerID,
		Amount:         milestone.Amount,
		Fee:            fee,
		IdempotencyKey: "milestone-release:" + milestone.ID.String(),
	})
	if err != nil {
		return nil, s.paymentError(err, "transfer milestone", order.ID)
	}

	nextStatus := string(next)
	expectedReleased := order.AmountReleased
	updated, err := s.orders.ApplyTransition(ctx, models.OrderTransition{
		OrderID:              order.ID,
		ExpectedStatus:       []string{order.Status},
		ExpectedEscrowStatus: []string{order.EscrowStatus},
		ExpectedReleased:     &expectedReleased,
		EscrowStatus:         &nextStatus,
		AddReleased:          milestone.Amount,
		AddPlatformFee:       fee,
		Milestone: &models.MilestoneTransition{
			MilestoneID:    milestone.ID,
			ExpectedStatus: string(valueobject.MilestoneStatusSubmitted),
			Status:         string(valueobject.MilestoneStatusPaid),
			TransferID:     &transfer.ID,
		},
		Event: models.NewOutboxEvent("order", order.ID, EventMilestoneReleased, map[string]any{
			"milestone_id":  milestone.ID,
			"transfer_id":   transfer.ID,
			"amount":        milestone.Amount,
			"fee":           fee,
			"escrow_status": nextStatus,
		}),
	})
	if err != nil {
		// перевод идемпотентен по этапу, повтор запроса доведёт переход до конца
		s.logFailure(err, "apply milestone release", order.ID)
		return nil, mapOrderError(err)
	}

	s.metrics.EscrowTransition(order.EscrowStatus, updated.EscrowStatus)
	s.notifier.Notify(ctx, EventMilestoneReleased, orderSignal(updated), updated.BuyerID, updated.SellerID)
	return &ReleaseResult{
		Order:       updated,
		MilestoneID: &milestone.ID,
		TransferID:  transfer.ID,
		Amount:      milestone.Amount,
		Fee:         fee,
	}, nil
}

// ReleaseToSeller выплачивает продавцу весь удерживаемый остаток.
func (s *EscrowService) ReleaseToSeller(ctx context.Context, orderID, userID uuid.UUID) (*ReleaseResult, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID {
		return nil, apperror.Forbidden("выплатить средства может только покупатель")
	}
	if err := guardPartyMoney(order, releaseStatuses()); err != nil {
		return nil, err
	}
	return s.releaseRemainder(ctx, order, []string{order.Status}, nil)
}

// releaseRemainder переводит остаток продавцу и закрывает escrow. status,
// если задан, меняет статус заказа в той же транзакции.
func (s *EscrowService) releaseRemainder(ctx context.Context, order *models.Order, expectedStatus []string, status *string) (*ReleaseResult, error) {
	escrow := valueobject.EscrowStatus(order.EscrowStatus)
	if !escrow.HoldsFunds() {
		return nil, apperror.Validation("по заказу нет удерживаемых средств")
	}
	if order.StripePaymentIntentID == nil {
		return nil, apperror.Validation("оплата по заказу не создана")
	}
	amount := valueobject.RoundMoney(order.HeldRemainder())
	if amount <= 0 {
		return nil, apperror.Validation("удерживаемый остаток равен нулю")
	}

	fee := valueobject.PlatformFee(amount, s.feePercent)
	transfer, err := s.gateway.CreateTransfer(ctx, payment.TransferParams{
		IntentID:       *order.StripePaymentIntentID,
		DestinationID:  order.SellerID,
		Amount:         amount,
		Fee:            fee,
		IdempotencyKey: fmt.Sprintf("order-release:%s:%.2f", order.ID, order.AmountReleased),
	})
	if err != nil {
		return nil, s.paymentError(err, "transfer remainder", order.ID)
	}

	released := string(valueobject.EscrowStatusReleased)
	expectedReleased := order.AmountReleased
	updated, err := s.orders.ApplyTransition(ctx, models.OrderTransition{
		OrderID:              order.ID,
		ExpectedStatus:       expectedStatus,
		ExpectedEscrowStatus: []string{order.EscrowStatus},
		ExpectedReleased:     &expectedReleased,
		Status:               status,
		EscrowStatus:         &released,
		AddReleased:          amount,
		AddPlatformFee:       fee,
		Event: models.NewOutboxEvent("order", order.ID, EventOrderUpdated, map[string]any{
			"transfer_id":   transfer.ID,
			"amount":        amount,
			"fee":           fee,
			"escrow_status": released,
			"status":        status,
		}),
	})
	if err != nil {
		s.logFailure(err, "apply release", order.ID)
		return nil, mapOrderError(err)
	}

	s.metrics.EscrowTransition(order.EscrowStatus, updated.EscrowStatus)
	s.notifier.Notify(ctx, EventOrderUpdated, orderSignal(updated), updated.BuyerID, updated.SellerID)
	return &ReleaseResult{Order: updated, TransferID: transfer.ID, Amount: amount, Fee: fee}, nil
}

// RefundInput описывает запрос возврата средств.
type RefundInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Amount  *float64
	Reason  string
}

// RequestRefund возвращает покупателю удерживаемые средства. Возврат всего
// остатка отменяет заказ и закрывает escrow статусом refunded; частичный
// возврат уменьшает остаток и не меняет статусы.
func (s *EscrowService) RequestRefund(ctx context.Context, in RefundInput) (*RefundResult, error) {
	order, err := s.getOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParty(in.UserID) {
		return nil, apperror.Forbidden("запросить возврат может только участник заказа")
	}
	if err := guardPartyMoney(order, refundStatuses()); err != nil {
		return nil, err
	}
	if err := validation.ValidateOptionalText("причина возврата", &in.Reason, validation.MaxReasonLength); err != nil {
		return nil, invalid(err)
	}
	return s.refund(ctx, order, in.Amount, in.Reason, []string{order.Status})
}

func (s *EscrowService) refund(ctx context.Context, order *models.Order, amount *float64, reason string, expectedStatus []string) (*RefundResult, error) {
	escrow := valueobject.EscrowStatus(order.EscrowStatus)
	switch escrow {
	case valueobject.EscrowStatusReleased:
		return nil, apperror.Validation("нельзя вернуть средства: они уже выплачены продавцу")
	case valueobject.EscrowStatusRefunded:
		return nil, apperror.Validation("средства по заказу уже возвращены")
	case valueobject.EscrowStatusPending:
		return s.cancelUnpaid(ctx, order, reason, expectedStatus)
	}

	remainder := valueobject.RoundMoney(order.HeldRemainder())
	refundAmount := remainder
	if amount != nil {
		refundAmount = valueobject.RoundMoney(*amount)
		if refundAmount <= 0 || refundAmount > remainder {
			return nil, apperror.Validation("сумма возврата должна быть больше нуля и не больше удерживаемого остатка")
		}
	}
	if order.StripePaymentIntentID == nil {
		return nil, apperror.Validation("оплата по заказу не создана")
	}

	refund, err := s.gateway.CreateRefund(ctx, payment.RefundParams{
		IntentID:       *order.StripePaymentIntentID,
		Amount:         refundAmount,
		Reason:         reason,
		IdempotencyKey: fmt.Sprintf("order-refund:%s:%.2f:%.2f", order.ID, order.AmountRefunded, refundAmount),
	})
	if err != nil {
		return nil, s.paymentError(err, "refund", order.ID)
	}

	t := models.OrderTransition{
		OrderID:              order.ID,
		ExpectedStatus:       expectedStatus,
		ExpectedEscrowStatus: []string{order.EscrowStatus},
		AddRefunded:          refundAmount,
		Event: models.NewOutboxEvent("order", order.ID, EventOrderRefunded, map[string]any{
			"refund_id": refund.ID,
			"amount":    refundAmount,
			"reason":    reason,
		}),
	}
	if refundAmount >= remainder {
		cancelled := string(valueobject.OrderStatusCancelled)
		refunded := string(valueobject.EscrowStatusRefunded)
		t.Status = &cancelled
		t.EscrowStatus = &refunded
		t.CancellationReason = optionalString(reason)
	}
	updated, err := s.orders.ApplyTransition(ctx, t)
	if err != nil {
		s.logFailure(err, "apply refund", order.ID)
		return nil, mapOrderError(err)
	}

	s.metrics.EscrowTransition(order.EscrowStatus, updated.EscrowStatus)
	s.notifier.Notify(ctx, EventOrderRefunded, orderSignal(updated), updated.BuyerID, updated.SellerID)
	return &RefundResult{Order: updated, RefundID: &refund.ID, Amount: refundAmount}, nil
}

// cancelUnpaid отменяет заказ, по которому средства ещё не удержаны.
func (s *EscrowService) cancelUnpaid(ctx context.Context, order *models.Order, reason string, expectedStatus []string) (*RefundResult, error) {
	if order.StripePaymentIntentID != nil {
		if _, err := s.gateway.CancelPaymentIntent(ctx, *order.StripePaymentIntentID); err != nil {
			return nil, s.paymentError(err, "cancel intent", order.ID)
		}
	}

	cancelled := string(valueobject.OrderStatusCancelled)
	refunded := string(valueobject.EscrowStatusRefunded)
	updated, err := s.orders.ApplyTransition(ctx, models.OrderTransition{
		OrderID:              order.ID,
		ExpectedStatus:       expectedStatus,
		ExpectedEscrowStatus: []string{string(valueobject.EscrowStatusPending)},
		Status:               &cancelled,
		EscrowStatus:         &refunded,
		CancellationReason:   optionalString(reason),
		Event: models.NewOutboxEvent("order", order.ID, EventOrderRefunded, map[string]any{
			"amount": 0,
			"reason": reason,
		}),
	})
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.metrics.EscrowTransition(order.EscrowStatus, updated.EscrowStatus)
	s.notifier.Notify(ctx, EventOrderRefunded, orderSignal(updated), updated.BuyerID, updated.SellerID)
	return &RefundResult{Order: updated}, nil
}

// GetPaymentStatus возвращает сводку об оплате заказа участнику заказа.
func (s *EscrowService) GetPaymentStatus(ctx context.Context, orderID, userID uuid.UUID) (*models.PaymentStatus, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParty(userID) {
		return nil, apperror.Forbidden("нет доступа к заказу")
	}
	milestones, err := s.orders.ListMilestones(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	status := &models.PaymentStatus{
		OrderID:         order.ID,
		OrderStatus:     order.Status,
		EscrowStatus:    order.EscrowStatus,
		TotalAmount:     order.TotalAmount,
		AmountReleased:  order.AmountReleased,
		AmountRefunded:  order.AmountRefunded,
		HeldAmount:      order.HeldRemainder(),
		PlatformFee:     order.PlatformFee,
		Currency:        order.Currency,
		PaymentIntentID: order.StripePaymentIntentID,
		Milestones:      milestones,
		CheckedAt:       time.Now().UTC(),
	}
	if valueobject.EscrowStatus(order.EscrowStatus) == valueobject.EscrowStatusPending {
		status.HeldAmount = 0
	}
	if order.StripePaymentIntentID != nil {
		intent, err := s.gateway.GetPaymentIntent(ctx, *order.StripePaymentIntentID)
		if err != nil {
			return nil, s.paymentError(err, "get intent", order.ID)
		}
		status.IntentStatus = &intent.Status
	}
	return status, nil
}

func (s *EscrowService) getOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return order, nil
}

func (s *EscrowService) getMilestone(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error) {
	milestone, err := s.orders.GetMilestone(ctx, id)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return milestone, nil
}

func (s *EscrowService) getMilestoneWithOrder(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, *models.Order, error) {
	milestone, err := s.getMilestone(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	order, err := s.getOrder(ctx, milestone.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return milestone, order, nil
}

// paymentError логирует ошибку шлюза и возвращает клиенту обезличенную.
func (s *EscrowService) paymentError(err error, op string, orderID uuid.UUID) error {
	switch {
	case errors.Is(err, payment.ErrInsufficientFunds):
		return apperror.Validation("недостаточно средств на балансе")
	case errors.Is(err, payment.ErrExceedsHeld):
		return apperror.Validation("сумма превышает удерживаемые средства")
	case errors.Is(err, payment.ErrInvalidState):
		return apperror.Conflict("платёж находится в неподходящем состоянии")
	}
	s.logFailure(err, op, orderID)
	return apperror.Sanitize(err, paymentErrorMessage)
}

func (s *EscrowService) logFailure(err error, op string, orderID uuid.UUID) {
	logger.For("escrow").WithFields(logrus.Fields{
		"order_id": orderID,
		"op":       op,
		"error":    err.Error(),
	}).Error("escrow service: операция не выполнена")
}

func newPaymentInit(orderID uuid.UUID, intent *models.PaymentIntent) *PaymentInit {
	return &PaymentInit{
		OrderID:         orderID,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Status:          intent.Status,
	}
}

func holdingStatuses() []string {
	return []string{string(valueobject.EscrowStatusHeld), string(valueobject.EscrowStatusPartialRelease)}
}

// Статусы заказа, в которых участники сами двигают удержанные средства.
// Деньги по заказу в disputed распределяет только решение спора.
func workStatuses() []string {
	return []string{string(valueobject.OrderStatusAccepted), string(valueobject.OrderStatusInProgress)}
}

func releaseStatuses() []string {
	return []string{string(valueobject.OrderStatusInProgress)}
}

func refundStatuses() []string {
	return []string{
		string(valueobject.OrderStatusPending),
		string(valueobject.OrderStatusAccepted),
		string(valueobject.OrderStatusInProgress),
	}
}

func guardPartyMoney(order *models.Order, allowed []string) error {
	if valueobject.OrderStatus(order.Status) == valueobject.OrderStatusDisputed {
		return apperror.Conflict("по заказу открыт спор, средства распределит администратор")
	}
	if !slices.Contains(allowed, order.Status) {
		return apperror.Validation("в текущем статусе заказа операция с оплатой недоступна")
	}
	return nil
}

// orderSignal - данные realtime события: клиенту достаточно идентификатора
// и статусов, чтобы перезапросить заказ.
func orderSignal(order *models.Order) map[string]any {
	return map[string]any{
		"order_id":      order.ID,
		"status":        order.Status,
		"escrow_status": order.EscrowStatus,
	}
}

func mapOrderError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrOrderNotFound):
		return apperror.ErrOrderNotFound
	case errors.Is(err, repository.ErrMilestoneNotFound):
		return apperror.ErrMilestoneNotFound
	case errors.Is(err, repository.ErrStateConflict):
		return apperror.Conflict("заказ изменился, обновите данные и повторите")
	}
	return err
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
