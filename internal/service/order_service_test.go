package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/payment"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
)

func newOrderFixture() (*OrderService, *mockOrderRepo, *mockGateway) {
	repo := new(mockOrderRepo)
	gw := new(mockGateway)
	escrow := NewEscrowService(repo, gw, nil, nil, 10)
	return NewOrderService(repo, escrow, nil, "GBP"), repo, gw
}

func TestOrderService_CreateOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newOrderFixture()
	buyer, seller := uuid.New(), uuid.New()

	repo.On("Create", ctx, mock.MatchedBy(func(o *models.Order) bool {
		return o.Status == "pending" && o.EscrowStatus == "pending" && o.Currency == "GBP" && o.TotalAmount == 300
	}), mock.MatchedBy(func(ms []models.OrderMilestone) bool {
		return len(ms) == 2 && ms[0].Status == "pending"
	}), mock.MatchedBy(func(e *models.OutboxEvent) bool {
		return e.EventType == EventOrderCreated
	})).Return(nil)

	details, err := svc.CreateOrder(ctx, CreateOrderInput{
		BuyerID:     buyer,
		SellerID:    seller,
		Title:       "Landing page",
		TotalAmount: 300,
		Milestones:  []MilestoneInput{{Title: "Design", Amount: 100}, {Title: "Build", Amount: 200}},
	})
	require.NoError(t, err)
	assert.Len(t, details.Milestones, 2)
	repo.AssertExpectations(t)
}

func TestOrderService_CreateOrder_Validation(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newOrderFixture()
	buyer := uuid.New()

	_, err := svc.CreateOrder(ctx, CreateOrderInput{BuyerID: buyer, SellerID: buyer, Title: "Self", TotalAmount: 10})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.CreateOrder(ctx, CreateOrderInput{
		BuyerID:     buyer,
		SellerID:    uuid.New(),
		Title:       "Too many milestones",
		TotalAmount: 100,
		Milestones:  []MilestoneInput{{Title: "One", Amount: 60}, {Title: "Two", Amount: 60}},
	})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.CreateOrder(ctx, CreateOrderInput{BuyerID: buyer, SellerID: uuid.New(), Title: "No", TotalAmount: 10})
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_AcceptOrder_OnlySellerAndOnlyPending(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newOrderFixture()
	order := heldOrder(100)
	order.Status, order.EscrowStatus = "pending", "pending"
	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.AcceptOrder(ctx, order.ID, order.BuyerID)
	assert.True(t, apperror.IsForbidden(err))

	accepted := *order
	accepted.Status = "accepted"
	repo.On("ApplyTransition", ctx, mock.MatchedBy(func(tr models.OrderTransition) bool {
		return *tr.Status == "accepted" && assert.ObjectsAreEqual([]string{"pending"}, tr.ExpectedStatus)
	})).Return(&accepted, nil)

	updated, err := svc.AcceptOrder(ctx, order.ID, order.SellerID)
	require.NoError(t, err)
	assert.Equal(t, "accepted", updated.Status)
}

func TestOrderService_StartOrder_RequiresHeldFunds(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newOrderFixture()
	order := heldOrder(100)
	order.Status, order.EscrowStatus = "accepted", "pending"
	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.StartOrder(ctx, order.ID, order.SellerID)
	assert.True(t, apperror.IsValidation(err))
}

func TestOrderService_CompleteOrder_ReleasesRemainderWithStatus(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw := newOrderFixture()
	order := heldOrder(100)
	order.EscrowStatus = "partial_release"
	order.AmountReleased = 40
	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	gw.On("CreateTransfer", ctx, mock.MatchedBy(func(p payment.TransferParams) bool {
		return p.Amount == 60 && p.Fee == 6 && p.DestinationID == order.SellerID
	})).Return(&models.PaymentTransfer{ID: "tr_9"}, nil)

	done := *order
	done.Status, done.EscrowStatus, done.AmountReleased = "completed", "released", 100
	repo.On("ApplyTransition", ctx, mock.MatchedBy(func(tr models.OrderTransition) bool {
		return *tr.Status == "completed" && *tr.EscrowStatus == "released" &&
			assert.ObjectsAreEqual([]string{"in_progress"}, tr.ExpectedStatus) && tr.AddReleased == 60
	})).Return(&done, nil)

	updated, err := svc.CompleteOrder(ctx, order.ID, order.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, "released", updated.EscrowStatus)
}

func TestOrderService_CancelOrder_InProgressRejected(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newOrderFixture()
	order := heldOrder(100)
	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.CancelOrder(ctx, order.ID, order.BuyerID, "changed my mind")
	assert.True(t, apperror.IsValidation(err))
}

func TestOrderService_ListMyOrders_RoleFilter(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newOrderFixture()
	userID := uuid.New()

	_, err := svc.ListMyOrders(ctx, userID, "admin", 10, 0)
	assert.True(t, apperror.IsValidation(err))

	repo.On("ListByUser", ctx, userID, "seller", 20, 0).Return([]models.Order{}, nil)
	_, err = svc.ListMyOrders(ctx, userID, "seller", 0, -5)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
