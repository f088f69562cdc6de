package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/centaur-backend/internal/dto"
	"github.com/ignatzorin/centaur-backend/internal/http/handlers/common"
	"github.com/ignatzorin/centaur-backend/internal/service"
)

// OTJTHandler обслуживает учёт часов обучения вне рабочего места.
type OTJTHandler struct {
	otjt *service.OTJTService
}

func NewOTJTHandler(otjt *service.OTJTService) *OTJTHandler {
	return &OTJTHandler{otjt: otjt}
}

// LogTime POST /enrollments/:id/otjt
func (h *OTJTHandler) LogTime(c *gin.Context) {
	userID, enrollmentID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.LogOTJTRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "date и activity_type обязательны")
		return
	}

	log, err := h.otjt.LogOTJTTime(c.Request.Context(), service.LogOTJTInput{
		EnrollmentID: enrollmentID,
		UserID:       userID,
		Date:         req.Date,
		Hours:        req.Hours,
		ActivityType: req.ActivityType,
		Description:  req.Description,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, log)
}

// ListLogs GET /enrollments/:id/otjt
func (h *OTJTHandler) ListLogs(c *gin.Context) {
	userID, enrollmentID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	logs, err := h.otjt.ListOTJTLogs(c.Request.Context(), enrollmentID, userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(logs, limit, offset))
}

// Summary GET /enrollments/:id/otjt/summary
func (h *OTJTHandler) Summary(c *gin.Context) {
	userID, enrollmentID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	summary, err := h.otjt.GetOTJTSummary(c.Request.Context(), enrollmentID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// AttachEvidence POST /otjt/:id/evidence (multipart, поле file)
func (h *OTJTHandler) AttachEvidence(c *gin.Context) {
	userID, logID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "поле file обязательно")
		return
	}
	src, err := file.Open()
	if err != nil {
		common.Fail(c, err)
		return
	}
	defer src.Close()

	log, err := h.otjt.AttachEvidence(c.Request.Context(), logID, userID, src)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

// Review POST /otjt/:id/review
func (h *OTJTHandler) Review(c *gin.Context) {
	userID, logID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.ReviewOTJTRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "decision обязателен")
		return
	}

	log, err := h.otjt.ReviewOTJTLog(c.Request.Context(), service.ReviewInput{
		LogID:    logID,
		MentorID: userID,
		Decision: req.Decision,
		Comment:  req.Comment,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

// Resubmit POST /otjt/:id/resubmit
func (h *OTJTHandler) Resubmit(c *gin.Context) {
	userID, logID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.ResubmitOTJTRequest
	_ = c.ShouldBindJSON(&req)

	log, err := h.otjt.ResubmitOTJTLog(c.Request.Context(), service.ResubmitInput{
		LogID:       logID,
		UserID:      userID,
		Hours:       req.Hours,
		Description: req.Description,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}
