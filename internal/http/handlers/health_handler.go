package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	healthTimeout = 3 * time.Second
	// outboxBacklogWarn: столько неотправленных событий означает, что relay
	// не успевает или остановлен.
	outboxBacklogWarn = 1000
)

// Pinger проверяет доступность внешней зависимости.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc адаптирует функцию к Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// OutboxBacklog отдаёт число неотправленных событий outbox.
type OutboxBacklog interface {
	CountPending(ctx context.Context) (int, error)
}

// HealthHandler отвечает на /api/health. Недоступность любой зависимости
// даёт 503, большой хвост outbox только предупреждение.
type HealthHandler struct {
	deps   map[string]Pinger
	outbox OutboxBacklog
}

// NewHealthHandler принимает зависимости по именам; nil значения пропускаются.
func NewHealthHandler(deps map[string]Pinger, outbox OutboxBacklog) *HealthHandler {
	live := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			live[name] = p
		}
	}
	return &HealthHandler{deps: live, outbox: outbox}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Timestamp: time.Now().UTC(), Checks: map[string]string{}}
	for name, dep := range h.deps {
		if err := dep.PingContext(ctx); err != nil {
			resp.Checks[name] = "unhealthy"
			resp.Status = "unhealthy"
			continue
		}
		resp.Checks[name] = "healthy"
	}

	if h.outbox != nil {
		switch pending, err := h.outbox.CountPending(ctx); {
		case err != nil:
			resp.Checks["outbox"] = "unknown"
		case pending >= outboxBacklogWarn:
			resp.Checks["outbox"] = "warning: backlog"
		default:
			resp.Checks["outbox"] = "healthy"
		}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
