package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/dto"
	"github.com/ignatzorin/centaur-backend/internal/http/handlers/common"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/service"
	"github.com/ignatzorin/centaur-backend/internal/validation"
)

// RetainerHandler обслуживает ретейнеры и недельные табели.
type RetainerHandler struct {
	retainers *service.RetainerService
}

func NewRetainerHandler(retainers *service.RetainerService) *RetainerHandler {
	return &RetainerHandler{retainers: retainers}
}

// CreateRetainer POST /retainers
func (h *RetainerHandler) CreateRetainer(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req dto.CreateRetainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "проверьте исполнителя, часы и ставку")
		return
	}

	retainer, err := h.retainers.CreateRetainer(c.Request.Context(), service.CreateRetainerInput{
		BuyerID:           userID,
		ProviderProfileID: uuid.MustParse(req.ProviderProfileID),
		Title:             req.Title,
		WeeklyHours:       req.WeeklyHours,
		HourlyRate:        req.HourlyRate,
		Currency:          req.Currency,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, retainer)
}

// GetRetainer GET /retainers/:id
func (h *RetainerHandler) GetRetainer(c *gin.Context) {
	h.retainerAction(c, h.retainers.GetRetainer)
}

// ListMyRetainers GET /retainers
func (h *RetainerHandler) ListMyRetainers(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, offset := common.GetPagination(c)
	retainers, err := h.retainers.ListMyRetainers(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(retainers, limit, offset))
}

// AcceptRetainer POST /retainers/:id/accept
func (h *RetainerHandler) AcceptRetainer(c *gin.Context) {
	h.retainerAction(c, h.retainers.AcceptRetainer)
}

// DeclineRetainer POST /retainers/:id/decline
func (h *RetainerHandler) DeclineRetainer(c *gin.Context) {
	var req dto.ReasonRequest
	_ = c.ShouldBindJSON(&req)
	h.retainerAction(c, func(ctx context.Context, retainerID, userID uuid.UUID) (*models.Retainer, error) {
		return h.retainers.DeclineRetainer(ctx, retainerID, userID, req.Reason)
	})
}

// PauseRetainer POST /retainers/:id/pause
func (h *RetainerHandler) PauseRetainer(c *gin.Context) {
	h.retainerAction(c, h.retainers.PauseRetainer)
}

// ResumeRetainer POST /retainers/:id/resume
func (h *RetainerHandler) ResumeRetainer(c *gin.Context) {
	h.retainerAction(c, h.retainers.ResumeRetainer)
}

// CancelRetainer POST /retainers/:id/cancel
// Без effective_date отмена вступает в силу через 14 дней.
func (h *RetainerHandler) CancelRetainer(c *gin.Context) {
	userID, retainerID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.CancelRetainerRequest
	_ = c.ShouldBindJSON(&req)

	in := service.CancelRetainerInput{RetainerID: retainerID, UserID: userID, Reason: req.Reason}
	if req.EffectiveDate != nil && *req.EffectiveDate != "" {
		effective, err := parseDateOrTimestamp(*req.EffectiveDate)
		if err != nil {
			common.RespondBadRequest(c, "effective_date должен быть датой YYYY-MM-DD или RFC3339")
			return
		}
		in.EffectiveDate = &effective
	}

	retainer, err := h.retainers.CancelRetainer(c.Request.Context(), in)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, retainer)
}

// LogHours POST /retainers/:id/timesheets
func (h *RetainerHandler) LogHours(c *gin.Context) {
	userID, retainerID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.LogHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "week_start обязателен")
		return
	}
	weekStart, err := validation.ParseDate("week_start", req.WeekStart)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.retainers.LogHours(c.Request.Context(), service.LogHoursInput{
		RetainerID:  retainerID,
		UserID:      userID,
		WeekStart:   weekStart,
		Hours:       req.Hours,
		Description: req.Description,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListTimesheets GET /retainers/:id/timesheets
func (h *RetainerHandler) ListTimesheets(c *gin.Context) {
	userID, retainerID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	entries, err := h.retainers.ListTimesheets(c.Request.Context(), retainerID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(entries, len(entries), 0))
}

// SubmitTimesheet POST /timesheets/:id/submit
func (h *RetainerHandler) SubmitTimesheet(c *gin.Context) {
	h.timesheetAction(c, h.retainers.SubmitTimesheet)
}

// ApproveTimesheet POST /timesheets/:id/approve
func (h *RetainerHandler) ApproveTimesheet(c *gin.Context) {
	h.timesheetAction(c, h.retainers.ApproveTimesheet)
}

// DisputeTimesheet POST /timesheets/:id/dispute
func (h *RetainerHandler) DisputeTimesheet(c *gin.Context) {
	h.timesheetAction(c, h.retainers.DisputeTimesheet)
}

// PayTimesheet POST /timesheets/:id/pay
func (h *RetainerHandler) PayTimesheet(c *gin.Context) {
	h.timesheetAction(c, h.retainers.PayTimesheet)
}

func (h *RetainerHandler) retainerAction(c *gin.Context, fn func(ctx context.Context, retainerID, userID uuid.UUID) (*models.Retainer, error)) {
	userID, retainerID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	retainer, err := fn(c.Request.Context(), retainerID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, retainer)
}

func (h *RetainerHandler) timesheetAction(c *gin.Context, fn func(ctx context.Context, entryID, userID uuid.UUID) (*models.TimesheetEntry, error)) {
	userID, entryID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	entry, err := fn(c.Request.Context(), entryID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// parseDateOrTimestamp принимает дату YYYY-MM-DD или полный RFC3339.
func parseDateOrTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return validation.ParseDate("effective_date", raw)
}
