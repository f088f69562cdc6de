// Package metrics содержит Prometheus метрики сервиса.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "centaur"

// Collector собирает метрики HTTP, escrow переходов и outbox. Все методы
// безопасно вызывать на nil.
type Collector struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	escrowTransitions *prometheus.CounterVec
	outboxPublished   *prometheus.CounterVec
	outboxPending     prometheus.Gauge
}

// NewCollector создаёт набор метрик.
func NewCollector() *Collector {
	return &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "The number of handled HTTP requests.",
			}, []string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5},
			}, []string{"method", "route"},
		),
		escrowTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escrow_transitions_total",
				Help:      "The number of escrow status transitions.",
			}, []string{"from", "to"},
		),
		outboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_events_total",
				Help:      "The number of outbox events handled by the relay.",
			}, []string{"result"},
		),
		outboxPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_pending_events",
				Help:      "The number of unpublished outbox events.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.requests.Describe(ch)
	c.requestDuration.Describe(ch)
	c.escrowTransitions.Describe(ch)
	c.outboxPublished.Describe(ch)
	c.outboxPending.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.requests.Collect(ch)
	c.requestDuration.Collect(ch)
	c.escrowTransitions.Collect(ch)
	c.outboxPublished.Collect(ch)
	c.outboxPending.Collect(ch)
}

// EscrowTransition учитывает смену escrow статуса заказа.
func (c *Collector) EscrowTransition(from, to string) {
	if c == nil || from == to {
		return
	}
	c.escrowTransitions.WithLabelValues(from, to).Inc()
}

// OutboxPublished учитывает результат доставки пачки событий.
func (c *Collector) OutboxPublished(published, failed int) {
	if c == nil {
		return
	}
	c.outboxPublished.WithLabelValues("published").Add(float64(published))
	c.outboxPublished.WithLabelValues("failed").Add(float64(failed))
}

// OutboxPending выставляет текущий размер очереди outbox.
func (c *Collector) OutboxPending(n int) {
	if c == nil {
		return
	}
	c.outboxPending.Set(float64(n))
}

// Middleware считает запросы и их длительность по шаблону маршрута.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if c == nil {
			ctx.Next()
			return
		}
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.requests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.requestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler возвращает HTTP обработчик для /metrics с отдельным реестром.
func Handler(c *Collector) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
