package handlers

import (
	"context"

	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/centaur-backend/internal/dto"
	"github.com/ignatzorin/centaur-backend/internal/http/handlers/common"
	"github.com/ignatzorin/centaur-backend/internal/models"
	"github.com/ignatzorin/centaur-backend/internal/service"
)

// OrderHandler обслуживает жизненный цикл заказа.
type OrderHandler struct {
	orders *service.OrderService
}

func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "проверьте исполнителя, название и сумму заказа")
		return
	}

	in := service.CreateOrderInput{
		BuyerID:     userID,
		SellerID:    uuid.MustParse(req.SellerID),
		Title:       req.Title,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
	}
	if req.ListingID != nil {
		listingID := uuid.MustParse(*req.ListingID)
		in.ListingID = &listingID
	}
	for _, m := range req.Milestones {
		in.Milestones = append(in.Milestones, service.MilestoneInput{Title: m.Title, Amount: m.Amount})
	}

	details, err := h.orders.CreateOrder(c.Request.Context(), in)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, details)
}

// GetOrder GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	details, err := h.orders.GetOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// ListMilestones GET /orders/:id/milestones
func (h *OrderHandler) ListMilestones(c *gin.Context) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	milestones, err := h.orders.ListMilestones(c.Request.Context(), orderID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(milestones, len(milestones), 0))
}

// ListMyOrders GET /orders?role=buyer|seller
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, offset := common.GetPagination(c)
	orders, err := h.orders.ListMyOrders(c.Request.Context(), userID, c.Query("role"), limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(orders, limit, offset))
}

// AcceptOrder POST /orders/:id/accept
func (h *OrderHandler) AcceptOrder(c *gin.Context) {
	h.transition(c, h.orders.AcceptOrder)
}

// StartOrder POST /orders/:id/start
func (h *OrderHandler) StartOrder(c *gin.Context) {
	h.transition(c, h.orders.StartOrder)
}

// CompleteOrder POST /orders/:id/complete
func (h *OrderHandler) CompleteOrder(c *gin.Context) {
	h.transition(c, h.orders.CompleteOrder)
}

// CancelOrder POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	var req dto.ReasonRequest
	_ = c.ShouldBindJSON(&req)

	order, err := h.orders.CancelOrder(c.Request.Context(), orderID, userID, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type orderTransition func(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)

func (h *OrderHandler) transition(c *gin.Context, fn orderTransition) {
	userID, orderID, ok := userAndID(c, "id")
	if !ok {
		return
	}

	order, err := fn(c.Request.Context(), orderID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
