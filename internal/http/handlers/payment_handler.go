package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/dto"
	"github.com/ignatzorin/centaur-backend/internal/http/handlers/common"
	"github.com/ignatzorin/centaur-backend/internal/service"
)

// PaymentHandler обслуживает кошелёк пользователя и оплату заказов через escrow.
type PaymentHandler struct {
	wallet *service.WalletService
	escrow *service.EscrowService
}

func NewPaymentHandler(wallet *service.WalletService, escrow *service.EscrowService) *PaymentHandler {
	return &PaymentHandler{wallet: wallet, escrow: escrow}
}

// GetBalance GET /payments/balance
func (h *PaymentHandler) GetBalance(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	balance, err := h.wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// Deposit POST /payments/deposit
func (h *PaymentHandler) Deposit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "сумма должна быть положительной")
		return
	}

	transaction, err := h.wallet.Deposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}

// ListTransactions GET /payments/transactions
func (h *PaymentHandler) ListTransactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, offset := common.GetPagination(c)
	txs, err := h.wallet.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListResponse(txs, limit, offset))
}

// CreateOrderPayment POST /orders/:id/payment
func (h *PaymentHandler) CreateOrderPayment(c *gin.Context) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	payment, err := h.escrow.CreateOrderPayment(c.Request.Context(), orderID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// ConfirmOrderPayment POST /orders/:id/payment/confirm
func (h *PaymentHandler) ConfirmOrderPayment(c *gin.Context) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	order, err := h.escrow.ConfirmOrderPayment(c.Request.Context(), orderID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// PaymentSucceeded POST /admin/payments/succeeded
// Точка входа для события payment_intent.succeeded платёжного провайдера.
func (h *PaymentHandler) PaymentSucceeded(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "payment_intent_id обязателен")
		return
	}

	order, err := h.escrow.HandlePaymentSucceeded(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetPaymentStatus GET /orders/:id/payment
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	status, err := h.escrow.GetPaymentStatus(c.Request.Context(), orderID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ReleaseToSeller POST /orders/:id/release
func (h *PaymentHandler) ReleaseToSeller(c *gin.Context) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	result, err := h.escrow.ReleaseToSeller(c.Request.Context(), orderID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.RespondSuccess(c, "средства переведены исполнителю", result)
}

// RequestRefund POST /orders/:id/refund
func (h *PaymentHandler) RequestRefund(c *gin.Context) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.RespondBadRequest(c, "сумма возврата должна быть положительной")
			return
		}
	}

	result, err := h.escrow.RequestRefund(c.Request.Context(), service.RefundInput{
		OrderID: orderID,
		UserID:  userID,
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.RespondSuccess(c, "средства возвращены покупателю", result)
}

// SubmitMilestone POST /milestones/:id/submit
func (h *PaymentHandler) SubmitMilestone(c *gin.Context) {
	userID, milestoneID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	milestone, err := h.escrow.SubmitMilestone(c.Request.Context(), milestoneID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

// ReleaseMilestone POST /milestones/:id/release
func (h *PaymentHandler) ReleaseMilestone(c *gin.Context) {
	userID, milestoneID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	result, err := h.escrow.ApproveAndReleaseMilestone(c.Request.Context(), milestoneID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.RespondSuccess(c, "этап оплачен", result)
}

// userAndID достаёт текущего пользователя и UUID из параметра пути.
// При ошибке ответ уже отправлен.
func userAndID(c *gin.Context, param string) (userID, id uuid.UUID, ok bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return uuid.Nil, uuid.Nil, false
	}
	id, err = common.ParseUUIDParam(c, param)
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}
