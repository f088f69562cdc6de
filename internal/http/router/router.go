package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/centaur-backend/internal/config"
	"github.com/ignatzorin/centaur-backend/internal/http/handlers"
	"github.com/ignatzorin/centaur-backend/internal/http/middleware"
	"github.com/ignatzorin/centaur-backend/internal/metrics"
	"github.com/ignatzorin/centaur-backend/internal/models"
)

// Handlers собирает все HTTP обработчики приложения.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Payment      *handlers.PaymentHandler
	Order        *handlers.OrderHandler
	Dispute      *handlers.DisputeHandler
	Retainer     *handlers.RetainerHandler
	Availability *handlers.AvailabilityHandler
	Member       *handlers.MemberHandler
	OTJT         *handlers.OTJTHandler
	Notification *handlers.NotificationHandler
	WS           *handlers.WSHandler
	Health       *handlers.HealthHandler
}

// Deps - инфраструктура, нужная роутеру помимо обработчиков.
type Deps struct {
	Tokens       middleware.AccessParser
	LimiterStore limiter.Store
	Metrics      *metrics.Collector
	// MetricsHandler nil отключает /metrics.
	MetricsHandler http.Handler
}

func SetupRouter(cfg *config.Config, h Handlers, deps Deps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(deps.Metrics.Middleware())
	r.Use(middleware.HostRedirect(cfg.MarketingHost, cfg.AppHost))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	api := r.Group("/api")
	api.GET("/health", h.Health.Health)
	api.Use(middleware.RateLimitMiddleware(deps.LimiterStore, cfg.RateLimitLimit, cfg.RateLimitPeriod, middleware.ByIP))

	auth := middleware.AuthMiddleware(deps.Tokens)
	id := middleware.UUIDValidator("id")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", h.Auth.Logout)
		authGroup.GET("/me", auth, h.Auth.Me)
	}

	// Календарь исполнителя публичный
	api.GET("/providers/:id/availability", id, h.Availability.GetAvailability)

	protected := api.Group("")
	protected.Use(auth)

	protected.GET("/ws", h.WS.Handle)

	payments := protected.Group("/payments")
	{
		payments.GET("/balance", h.Payment.GetBalance)
		payments.POST("/deposit", h.Payment.Deposit)
		payments.GET("/transactions", h.Payment.ListTransactions)
	}

	refundLimit := middleware.RateLimitMiddleware(deps.LimiterStore, cfg.RefundRateLimit, cfg.RefundRatePeriod, middleware.ByUserAndIP)

	orders := protected.Group("/orders")
	{
		orders.POST("", h.Order.CreateOrder)
		orders.GET("", h.Order.ListMyOrders)
		orders.GET("/:id", id, h.Order.GetOrder)
		orders.GET("/:id/milestones", id, h.Order.ListMilestones)
		orders.POST("/:id/accept", id, h.Order.AcceptOrder)
		orders.POST("/:id/start", id, h.Order.StartOrder)
		orders.POST("/:id/complete", id, h.Order.CompleteOrder)
		orders.POST("/:id/cancel", id, h.Order.CancelOrder)

		orders.POST("/:id/payment", id, h.Payment.CreateOrderPayment)
		orders.POST("/:id/payment/confirm", id, h.Payment.ConfirmOrderPayment)
		orders.GET("/:id/payment", id, h.Payment.GetPaymentStatus)
		orders.POST("/:id/release", id, h.Payment.ReleaseToSeller)
		orders.POST("/:id/refund", id, refundLimit, h.Payment.RequestRefund)

		orders.POST("/:id/disputes", id, h.Dispute.OpenDispute)
	}

	milestones := protected.Group("/milestones")
	{
		milestones.POST("/:id/submit", id, h.Payment.SubmitMilestone)
		milestones.POST("/:id/release", id, h.Payment.ReleaseMilestone)
	}

	disputes := protected.Group("/disputes")
	{
		disputes.GET("", h.Dispute.ListMyDisputes)
		disputes.GET("/:id", id, h.Dispute.GetDispute)
	}

	retainers := protected.Group("/retainers")
	{
		retainers.POST("", h.Retainer.CreateRetainer)
		retainers.GET("", h.Retainer.ListMyRetainers)
		retainers.GET("/:id", id, h.Retainer.GetRetainer)
		retainers.POST("/:id/accept", id, h.Retainer.AcceptRetainer)
		retainers.POST("/:id/decline", id, h.Retainer.DeclineRetainer)
		retainers.POST("/:id/pause", id, h.Retainer.PauseRetainer)
		retainers.POST("/:id/resume", id, h.Retainer.ResumeRetainer)
		retainers.POST("/:id/cancel", id, h.Retainer.CancelRetainer)
		retainers.GET("/:id/timesheets", id, h.Retainer.ListTimesheets)
		retainers.POST("/:id/timesheets", id, h.Retainer.LogHours)
	}

	timesheets := protected.Group("/timesheets")
	{
		timesheets.POST("/:id/submit", id, h.Retainer.SubmitTimesheet)
		timesheets.POST("/:id/approve", id, h.Retainer.ApproveTimesheet)
		timesheets.POST("/:id/dispute", id, h.Retainer.DisputeTimesheet)
		timesheets.POST("/:id/pay", id, h.Retainer.PayTimesheet)
	}

	availability := protected.Group("/availability")
	{
		availability.PUT("", h.Availability.SetAvailability)
		availability.PUT("/bulk", h.Availability.BulkSetAvailability)
		availability.POST("/toggle", h.Availability.ToggleAvailability)
	}
	protected.POST("/providers/:id/availability/book", id, h.Availability.BookSlot)
	protected.DELETE("/providers/:id/availability/:date/booking", id, h.Availability.ReleaseBooking)

	foundries := protected.Group("/foundries")
	{
		foundries.GET("/:id/members", id, h.Member.ListMembers)
		foundries.GET("/:id/audit-log", id, h.Member.ListAuditLog)
	}
	protected.POST("/members/:id/offboard", id, h.Member.OffboardMember)

	enrollments := protected.Group("/enrollments")
	{
		enrollments.POST("/:id/otjt", id, h.OTJT.LogTime)
		enrollments.GET("/:id/otjt", id, h.OTJT.ListLogs)
		enrollments.GET("/:id/otjt/summary", id, h.OTJT.Summary)
	}

	otjt := protected.Group("/otjt")
	{
		otjt.POST("/:id/evidence", id, h.OTJT.AttachEvidence)
		otjt.POST("/:id/review", id, h.OTJT.Review)
		otjt.POST("/:id/resubmit", id, h.OTJT.Resubmit)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", h.Notification.ListNotifications)
		notifications.GET("/unread-count", h.Notification.CountUnread)
		notifications.POST("/read-all", h.Notification.MarkAllAsRead)
		notifications.GET("/preferences", h.Notification.GetPreferences)
		notifications.PUT("/preferences/:event", h.Notification.UpdatePreference)
		notifications.PATCH("/:id/read", id, h.Notification.MarkAsRead)
		notifications.DELETE("/:id", id, h.Notification.DeleteNotification)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/disputes", h.Dispute.ListOpenDisputes)
		admin.POST("/disputes/:id/resolve", id, h.Dispute.ResolveDispute)
		admin.POST("/payments/succeeded", h.Payment.PaymentSucceeded)
	}

	return r
}
