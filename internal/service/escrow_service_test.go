package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/payment"
	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
	"github.com/ignatzorin/centaur-backend/internal/repository"
)

func newEscrowFixture() (*EscrowService, *mockOrderRepo, *mockGateway, *recordingNotifier) {
	repo := new(mockOrderRepo)
	gw := new(mockGateway)
	notifier := &recordingNotifier{}
	return NewEscrowService(repo, gw, notifier, nil, 10), repo, gw, notifier
}

func heldOrder(total float64) *models.Order {
	intent := "pi_test"
	return &models.Order{
		ID:                    uuid.New(),
		BuyerID:               uuid.New(),
		SellerID:              uuid.New(),
		TotalAmount:           total,
		Currency:              "GBP",
		Status:                "in_progress",
		EscrowStatus:          "held",
		StripePaymentIntentID: &intent,
	}
}

func TestEscrowService_CreateOrderPayment_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("only buyer", func(t *testing.T) {
		svc, repo, _, _ := newEscrowFixture()
		order := heldOrder(100)
		order.Status, order.EscrowStatus, order.StripePaymentIntentID = "pending", "pending", nil
		repo.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := svc.CreateOrderPayment(ctx, order.ID, order.SellerID)
		assert.True(t, apperror.IsForbidden(err))
	})

	t.Run("order in progress", func(t *testing.T) {
		svc, repo, _, _ := newEscrowFixture()
		order := heldOrder(100)
		order.EscrowStatus = "pending"
		repo.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := svc.CreateOrderPayment(ctx, order.ID, order.BuyerID)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("already held", func(t *testing.T) {
		svc, repo, gw, _ := newEscrowFixture()
		order := heldOrder(100)
		order.Status = "accepted"
		repo.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := svc.CreateOrderPayment(ctx, order.ID, order.BuyerID)
		assert.True(t, apperror.IsValidation(err))
		gw.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything)
	})
}

func TestEscrowService_CreateOrderPayment_CreatesAndAttachesIntent(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, _ := newEscrowFixture()
	order := heldOrder(250)
	order.Status, order.EscrowStatus, order.StripePaymentIntentID = "accepted", "pending", nil

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	gw.On("CreatePaymentIntent", ctx, mock.MatchedBy(func(p payment.IntentParams) bool {
		return p.PayerID == order.BuyerID && p.Amount == 250 && p.IdempotencyKey == "order-payment:"+order.ID.String()
	})).Return(&models.PaymentIntent{ID: "pi_1", Amount: 250, Currency: "GBP", Status: models.IntentStatusRequiresConfirmation}, nil)
	repo.On("AttachPaymentIntent", ctx, order.ID, "pi_1").Return(nil)

	init, err := svc.CreateOrderPayment(ctx, order.ID, order.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", init.PaymentIntentID)
	assert.Equal(t, models.IntentStatusRequiresConfirmation, init.Status)
	repo.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestEscrowService_ConfirmOrderPayment_MovesPendingToHeld(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, notifier := newEscrowFixture()
	order := heldOrder(100)
	order.Status, order.EscrowStatus = "accepted", "pending"

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	gw.On("ConfirmPaymentIntent", ctx, "pi_test").Return(&models.PaymentIntent{ID: "pi_test", Status: models.IntentStatusSucceeded}, nil)
	repo.On("GetByPaymentIntent", ctx, "pi_test").Return(order, nil)
	gw.On("GetPaymentIntent", ctx, "pi_test").Return(&models.PaymentIntent{ID: "pi_test", Amount: 100, Status: models.IntentStatusSucceeded}, nil)

	held := *order
	held.EscrowStatus = "held"
	repo.On("ApplyTransition", ctx, mock.MatchedBy(func(tr models.OrderTransition) bool {
		return tr.EscrowStatus != nil && *tr.EscrowStatus == "held" &&
			assert.ObjectsAreEqual([]string{"pending"}, tr.ExpectedEscrowStatus) &&
			tr.Event != nil && tr.Event.EventType == EventPaymentHeld
	})).Return(&held, nil)

	updated, err := svc.ConfirmOrderPayment(ctx, order.ID, order.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, "held", updated.EscrowStatus)
	assert.Equal(t, []string{EventPaymentHeld}, notifier.Events())
}

func TestEscrowService_ConfirmOrderPayment_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, _ := newEscrowFixture()
	order := heldOrder(100)
	order.Status, order.EscrowStatus = "accepted", "pending"

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	gw.On("ConfirmPaymentIntent", ctx, "pi_test").Return(nil, payment.ErrInsufficientFunds)

	_, err := svc.ConfirmOrderPayment(ctx, order.ID, order.BuyerID)
	assert.True(t, apperror.IsValidation(err))
	repo.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything)
}

func TestEscrowService_ApproveAndReleaseMilestone_PartialThenFull(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		released float64
		amount   float64
		want     string
	}{
		{name: "first of two milestones", released: 0, amount: 40, want: "partial_release"},
		{name: "last milestone", released: 60, amount: 40, want: "released"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, gw, _ := newEscrowFixture()
			order := heldOrder(100)
			order.AmountReleased = tc.released
			if tc.released > 0 {
				order.EscrowStatus = "partial_release"
			}
			milestone := &models.OrderMilestone{ID: uuid.New(), OrderID: order.ID, Amount: tc.amount, Status: "submitted"}

			repo.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
			repo.On("GetByID", ctx, order.ID).Return(order, nil)
			gw.On("CreateTransfer", ctx, payment.TransferParams{
				IntentID:       "pi_test",
				DestinationID:  order.SellerID,
				Amount:         tc.amount,
				Fee:            4,
				IdempotencyKey: "milestone-release:" + milestone.ID.String(),
			}).Return(&models.PaymentTransfer{ID: "tr_1"}, nil)

			after := *order
			after.EscrowStatus = tc.want
			after.AmountReleased = tc.released + tc.amount
			repo.On("ApplyTransition", ctx, mock.MatchedBy(func(tr models.OrderTransition) bool {
				return *tr.EscrowStatus == tc.want &&
					tr.AddReleased == tc.amount && tr.AddPlatformFee == 4 &&
					tr.ExpectedReleased != nil && *tr.ExpectedReleased == tc.released &&
					tr.Milestone != nil && tr.Milestone.Status == "paid" && *tr.Milestone.TransferID == "tr_1"
			})).Return(&after, nil)

			res, err := svc.ApproveAndReleaseMilestone(ctx, milestone.ID, order.BuyerID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Order.EscrowStatus)
			assert.Equal(t, 4.0, res.Fee)
			repo.AssertExpectations(t)
		})
	}
}

func TestEscrowService_ApproveAndReleaseMilestone_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("released escrow never goes back", func(t *testing.T) {
		svc, repo, gw, _ := newEscrowFixture()
		order := heldOrder(100)
		order.EscrowStatus = "released"
		order.AmountReleased = 100
		milestone := &models.OrderMilestone{ID: uuid.New(), OrderID: order.ID, Amount: 10, Status: "submitted"}
		repo.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
		repo.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := svc.ApproveAndReleaseMilestone(ctx, milestone.ID, order.BuyerID)
		assert.True(t, apperror.IsValidation(err))
		gw.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything)
	})

	t.Run("milestone not submitted", func(t *testing.T) {
		svc, repo, _, _ := newEscrowFixture()
		order := heldOrder(100)
		milestone := &models.OrderMilestone{ID: uuid.New(), OrderID: order.ID, Amount: 10, Status: "pending"}
		repo.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
		repo.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := svc.ApproveAndReleaseMilestone(ctx, milestone.ID, order.BuyerID)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("seller cannot approve", func(t *testing.T) {
		svc, repo, _, _ := newEscrowFixture()
		order := heldOrder(100)
		milestone := &models.OrderMilestone{ID: uuid.New(), OrderID: order.ID, Amount: 10, Status: "submitted"}
		repo.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
		repo.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := svc.ApproveAndReleaseMilestone(ctx, milestone.ID, order.SellerID)
		assert.True(t, apperror.IsForbidden(err))
	})

	t.Run("milestone larger than remainder", func(t *testing.T) {
		svc, repo, _, _ := newEscrowFixture()
		order := heldOrder(100)
		order.EscrowStatus = "partial_release"
		order.AmountReleased = 80
		milestone := &models.OrderMilestone{ID: uuid.New(), OrderID: order.ID, Amount: 30, Status: "submitted"}
		repo.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
		repo.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := svc.ApproveAndReleaseMilestone(ctx, milestone.ID, order.BuyerID)
		assert.True(t, apperror.IsValidation(err))
	})
}

func TestEscrowService_ApproveAndReleaseMilestone_ConcurrentChange(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, _ := newEscrowFixture()
	order := heldOrder(100)
	milestone := &models.OrderMilestone{ID: uuid.New(), OrderID: order.ID, Amount: 50, Status: "submitted"}
	repo.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)
	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	gw.On("CreateTransfer", ctx, mock.Anything).Return(&models.PaymentTransfer{ID: "tr_1"}, nil)
	repo.On("ApplyTransition", ctx, mock.Anything).Return(nil, repository.ErrStateConflict)

	_, err := svc.ApproveAndReleaseMilestone(ctx, milestone.ID, order.BuyerID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.ErrCodeConflict, appErr.Code)
}

func TestEscrowService_RequestRefund_FailsAfterRelease(t *testing.T) {
	ctx := context.Background()

	for _, escrow := range []string{"released", "refunded"} {
		t.Run(escrow, func(t *testing.T) {
			svc, repo, gw, _ := newEscrowFixture()
			order := heldOrder(100)
			order.EscrowStatus = escrow
			repo.On("GetByID", ctx, order.ID).Return(order, nil)

			_, err := svc.RequestRefund(ctx, RefundInput{OrderID: order.ID, UserID: order.BuyerID})
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))
			gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
		})
	}
}

func TestEscrowService_RequestRefund_FullRemainderCancelsOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, notifier := newEscrowFixture()
	order := heldOrder(100)
	order.EscrowStatus = "partial_release"
	order.AmountReleased = 30

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	gw.On("CreateRefund", ctx, mock.MatchedBy(func(p payment.RefundParams) bool {
		return p.Amount == 70 && p.Reason == "not delivered"
	})).Return(&models.PaymentRefund{ID: "re_1", Amount: 70}, nil)

	after := *order
	after.Status, after.EscrowStatus, after.AmountRefunded = "cancelled", "refunded", 70
	repo.On("ApplyTransition", ctx, mock.MatchedBy(func(tr models.OrderTransition) bool {
		return tr.Status != nil && *tr.Status == "cancelled" &&
			tr.EscrowStatus != nil && *tr.EscrowStatus == "refunded" &&
			tr.AddRefunded == 70
	})).Return(&after, nil)

	res, err := svc.RequestRefund(ctx, RefundInput{OrderID: order.ID, UserID: order.SellerID, Reason: "not delivered"})
	require.NoError(t, err)
	assert.Equal(t, 70.0, res.Amount)
	assert.Equal(t, "re_1", *res.RefundID)
	assert.Equal(t, []string{EventOrderRefunded}, notifier.Events())
}

func TestEscrowService_RequestRefund_PartialKeepsStatuses(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, _ := newEscrowFixture()
	order := heldOrder(100)
	amount := 25.0

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	gw.On("CreateRefund", ctx, mock.Anything).Return(&models.PaymentRefund{ID: "re_2", Amount: 25}, nil)
	after := *order
	after.AmountRefunded = 25
	repo.On("ApplyTransition", ctx, mock.MatchedBy(func(tr models.OrderTransition) bool {
		return tr.Status == nil && tr.EscrowStatus == nil && tr.AddRefunded == 25
	})).Return(&after, nil)

	res, err := svc.RequestRefund(ctx, RefundInput{OrderID: order.ID, UserID: order.BuyerID, Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "held", res.Order.EscrowStatus)

	tooMuch := 500.0
	_, err = svc.RequestRefund(ctx, RefundInput{OrderID: order.ID, UserID: order.BuyerID, Amount: &tooMuch})
	assert.True(t, apperror.IsValidation(err))
}

func TestEscrowService_RequestRefund_UnpaidCancelsIntent(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, _ := newEscrowFixture()
	order := heldOrder(100)
	order.Status, order.EscrowStatus = "accepted", "pending"

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	gw.On("CancelPaymentIntent", ctx, "pi_test").Return(&models.PaymentIntent{Status: models.IntentStatusCancelled}, nil)
	after := *order
	after.Status, after.EscrowStatus = "cancelled", "refunded"
	repo.On("ApplyTransition", ctx, mock.MatchedBy(func(tr models.OrderTransition) bool {
		return assert.ObjectsAreEqual([]string{"pending"}, tr.ExpectedEscrowStatus) && *tr.EscrowStatus == "refunded"
	})).Return(&after, nil)

	res, err := svc.RequestRefund(ctx, RefundInput{OrderID: order.ID, UserID: order.BuyerID})
	require.NoError(t, err)
	assert.Nil(t, res.RefundID)
	gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestEscrowService_RequestRefund_StrangerForbidden(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newEscrowFixture()
	order := heldOrder(100)
	repo.On("GetByID", ctx, order.ID).Return(order, nil)

	_, err := svc.RequestRefund(ctx, RefundInput{OrderID: order.ID, UserID: uuid.New()})
	assert.True(t, apperror.IsForbidden(err))
}

func TestEscrowService_GatewayErrorIsSanitized(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, _ := newEscrowFixture()
	order := heldOrder(100)

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	gw.On("CreateTransfer", ctx, mock.Anything).Return(nil, errors.New("pq: connection reset by peer"))

	_, err := svc.ReleaseToSeller(ctx, order.ID, order.BuyerID)
	require.Error(t, err)
	assert.Equal(t, paymentErrorMessage, apperror.PublicMessage(err))
	assert.NotContains(t, apperror.PublicMessage(err), "pq")
}

func TestEscrowService_GetPaymentStatus(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, _ := newEscrowFixture()
	order := heldOrder(100)
	order.AmountReleased = 40
	order.EscrowStatus = "partial_release"

	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("ListMilestones", ctx, order.ID).Return([]models.OrderMilestone{}, nil)
	gw.On("GetPaymentIntent", ctx, "pi_test").Return(&models.PaymentIntent{Status: models.IntentStatusSucceeded}, nil)

	status, err := svc.GetPaymentStatus(ctx, order.ID, order.SellerID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, status.HeldAmount)
	assert.Equal(t, models.IntentStatusSucceeded, *status.IntentStatus)

	_, err = svc.GetPaymentStatus(ctx, order.ID, uuid.New())
	assert.True(t, apperror.IsForbidden(err))
}

func TestEscrowService_DisputedOrderBlocksPartyMoneyMoves(t *testing.T) {
	ctx := context.Background()
	svc, repo, gw, _ := newEscrowFixture()
	order := heldOrder(100)
	order.Status = "disputed"
	milestone := &models.OrderMilestone{ID: uuid.New(), OrderID: order.ID, Amount: 40, Status: "submitted"}
	repo.On("GetByID", ctx, order.ID).Return(order, nil)
	repo.On("GetMilestone", ctx, milestone.ID).Return(milestone, nil)

	assertConflict := func(err error) {
		t.Helper()
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.ErrCodeConflict, appErr.Code)
	}

	_, err := svc.ReleaseToSeller(ctx, order.ID, order.BuyerID)
	assertConflict(err)
	_, err = svc.RequestRefund(ctx, RefundInput{OrderID: order.ID, UserID: order.BuyerID})
	assertConflict(err)
	_, err = svc.ApproveAndReleaseMilestone(ctx, milestone.ID, order.BuyerID)
	assertConflict(err)

	gw.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything)
}

func TestEscrowService_ReleaseToSeller_OnlyOnceWorkStarted(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted order", func(t *testing.T) {
		svc, repo, gw, _ := newEscrowFixture()
		order := heldOrder(100)
		order.Status = "accepted"
		repo.On("GetByID", ctx, order.ID).Return(order, nil)

		_, err := svc.ReleaseToSeller(ctx, order.ID, order.BuyerID)
		assert.True(t, apperror.IsValidation(err))
		gw.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything)
	})

	t.Run("in progress pins order status", func(t *testing.T) {
		svc, repo, gw, _ := newEscrowFixture()
		order := heldOrder(100)
		repo.On("GetByID", ctx, order.ID).Return(order, nil)
		gw.On("CreateTransfer", ctx, mock.Anything).Return(&models.PaymentTransfer{ID: "tr_9"}, nil)
		after := *order
		after.EscrowStatus, after.AmountReleased = "released", 100
		repo.On("ApplyTransition", ctx, mock.MatchedBy(func(tr models.OrderTransition) bool {
			return assert.ObjectsAreEqual([]string{"in_progress"}, tr.ExpectedStatus) && tr.Status == nil
		})).Return(&after, nil)

		res, err := svc.ReleaseToSeller(ctx, order.ID, order.BuyerID)
		require.NoError(t, err)
		assert.Equal(t, "released", res.Order.EscrowStatus)
		repo.AssertExpectations(t)
	})
}
