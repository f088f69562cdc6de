package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/centaur-backend/internal/dto"
	"github.com/ignatzorin/centaur-backend/internal/http/handlers/common"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/service"
)

// MemberHandler обслуживает участников foundry и их offboarding.
type MemberHandler struct {
	offboarding *service.OffboardingService
}

func NewMemberHandler(offboarding *service.OffboardingService) *MemberHandler {
	return &MemberHandler{offboarding: offboarding}
}

// ListMembers GET /foundries/:id/members?include_inactive=true
func (h *MemberHandler) ListMembers(c *gin.Context) {
	userID, foundryID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	members, err := h.offboarding.ListMembers(c.Request.Context(), foundryID, userID, c.Query("include_inactive") == "true")
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(members, len(members), 0))
}

// ListAuditLog GET /foundries/:id/audit-log
func (h *MemberHandler) ListAuditLog(c *gin.Context) {
	userID, foundryID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	entries, err := h.offboarding.ListAuditLog(c.Request.Context(), foundryID, userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(entries, limit, offset))
}

// OffboardMember POST /members/:id/offboard
func (h *MemberHandler) OffboardMember(c *gin.Context) {
	userID, memberID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.OffboardMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "mode обязателен")
		return
	}

	result, err := h.offboarding.OffboardMember(c.Request.Context(), models.OffboardRequest{
		ActorUserID: userID,
		TargetID:    memberID,
		Mode:        req.Mode,
		Reason:      req.Reason,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.RespondSuccess(c, "участник отключён", result)
}
