package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/centaur-backend/internal/dto"
	"github.com/ignatzorin/centaur-backend/internal/http/handlers/common"
	"github.com/ignatzorin/centaur-backend/internal/service"
)

// AvailabilityHandler обслуживает календарь занятости исполнителя.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
}

func NewAvailabilityHandler(availability *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// GetAvailability GET /providers/:id/availability?from=&to=
func (h *AvailabilityHandler) GetAvailability(c *gin.Context) {
	providerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор исполнителя")
		return
	}

	slots, err := h.availability.GetAvailability(c.Request.Context(), providerID, c.Query("from"), c.Query("to"))
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(slots, len(slots), 0))
}

// SetAvailability PUT /availability
func (h *AvailabilityHandler) SetAvailability(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req dto.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "date и status обязательны")
		return
	}

	slot, err := h.availability.SetAvailability(c.Request.Context(), userID, req.Date, req.Status, req.Notes)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// BulkSetAvailability PUT /availability/bulk
func (h *AvailabilityHandler) BulkSetAvailability(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req dto.BulkAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "dates и status обязательны")
		return
	}

	result, err := h.availability.BulkSetAvailability(c.Request.Context(), userID, req.Dates, req.Status)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ToggleAvailability POST /availability/toggle
// Для забронированного дня отвечает 200 с success=false.
func (h *AvailabilityHandler) ToggleAvailability(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req dto.ToggleAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "date обязателен")
		return
	}

	result, err := h.availability.ToggleAvailability(c.Request.Context(), userID, req.Date, req.CurrentStatus)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// BookSlot POST /providers/:id/availability/book
func (h *AvailabilityHandler) BookSlot(c *gin.Context) {
	userID, providerID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.BookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "date обязателен")
		return
	}

	slot, err := h.availability.BookSlot(c.Request.Context(), providerID, userID, req.Date)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// ReleaseBooking DELETE /providers/:id/availability/:date/booking
func (h *AvailabilityHandler) ReleaseBooking(c *gin.Context) {
	userID, providerID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	slot, err := h.availability.ReleaseBooking(c.Request.Context(), providerID, userID, c.Param("date"))
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}
