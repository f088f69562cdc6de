package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/centaur-backend/internal/dto"
	"github.com/ignatzorin/centaur-backend/internal/http/handlers/common"
	"github.com/ignatzorin/centaur-backend/internal/service"
)

// DisputeHandler обслуживает споры по заказам.
type DisputeHandler struct {
	disputes *service.DisputeService
}

func NewDisputeHandler(disputes *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

// OpenDispute POST /orders/:id/disputes
func (h *DisputeHandler) OpenDispute(c *gin.Context) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "укажите причину спора")
		return
	}

	dispute, err := h.disputes.OpenDispute(c.Request.Context(), orderID, userID, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

// GetDispute GET /disputes/:id
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	userID, disputeID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	dispute, err := h.disputes.GetDispute(c.Request.Context(), disputeID, userID, common.CurrentUserRole(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

// ListMyDisputes GET /disputes
func (h *DisputeHandler) ListMyDisputes(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, offset := common.GetPagination(c)
	disputes, err := h.disputes.ListMyDisputes(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(disputes, limit, offset))
}

// ListOpenDisputes GET /admin/disputes
func (h *DisputeHandler) ListOpenDisputes(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	disputes, err := h.disputes.ListOpenDisputes(c.Request.Context(), common.CurrentUserRole(c), limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(disputes, limit, offset))
}

// ResolveDispute POST /admin/disputes/:id/resolve
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	adminID, disputeID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "outcome должен быть release или refund")
		return
	}

	dispute, err := h.disputes.ResolveDispute(c.Request.Context(), service.ResolveDisputeInput{
		DisputeID: disputeID,
		AdminID:   adminID,
		AdminRole: common.CurrentUserRole(c),
		Outcome:   req.Outcome,
		Note:      req.Note,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}
