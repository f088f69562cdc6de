package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/payment"
)

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) Create(ctx context.Context, order *models.Order, milestones []models.OrderMilestone, event *models.OutboxEvent) error {
	args := m.Called(ctx, order, milestones, event)
	return args.Error(0)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) GetByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, role string, limit, offset int) ([]models.Order, error) {
	args := m.Called(ctx, userID, role, limit, offset)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderRepo) ListMilestones(ctx context.Context, orderID uuid.UUID) ([]models.OrderMilestone, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]models.OrderMilestone), args.Error(1)
}

func (m *mockOrderRepo) GetMilestone(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderMilestone), args.Error(1)
}

func (m *mockOrderRepo) AttachPaymentIntent(ctx context.Context, orderID uuid.UUID, intentID string) error {
	args := m.Called(ctx, orderID, intentID)
	return args.Error(0)
}

func (m *mockOrderRepo) ApplyTransition(ctx context.Context, t models.OrderTransition) (*models.Order, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, params payment.IntentParams) (*models.PaymentIntent, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *mockGateway) ConfirmPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *mockGateway) CancelPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *mockGateway) GetPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *mockGateway) CreateTransfer(ctx context.Context, params payment.TransferParams) (*models.PaymentTransfer, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransfer), args.Error(1)
}

func (m *mockGateway) CreateRefund(ctx context.Context, params payment.RefundParams) (*models.PaymentRefund, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentRefund), args.Error(1)
}

// recordingNotifier запоминает отправленные события синхронно.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
}

type notifiedEvent struct {
	Event   string
	UserIDs []uuid.UUID
}

func (n *recordingNotifier) Notify(_ context.Context, event string, _ any, userIDs ...uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifiedEvent{Event: event, UserIDs: userIDs})
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Event)
	}
	return out
}
