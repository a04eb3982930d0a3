// Package server Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shongo-controller/internal/shared/model"
)

// Metrics 包含所有控制器指标
type Metrics struct {
	registry prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 调度指标
	PlansTotal   *prometheus.CounterVec
	PlanDuration prometheus.Histogram

	// 预约指标
	AllocationsTotal *prometheus.CounterVec

	// WebSocket 指标
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec
}

// NewMetrics 创建指标实例
//
// reg 为空时注册到 prometheus 默认注册表。
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		registry: gatherer,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		PlansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_plans_total",
				Help:      "Total scheduler plan searches by result",
			},
			[]string{"result"},
		),
		PlanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scheduler_plan_duration_seconds",
				Help:      "Scheduler plan search duration in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		AllocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocations_total",
				Help:      "Total reservation allocations by type and result",
			},
			[]string{"type", "result"},
		),
		WSConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections_active",
				Help:      "Active WebSocket connections",
			},
		),
		WSMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_messages_total",
				Help:      "Total WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath 规范化路径，将 ID 替换为占位符，避免高基数
//
// 例如 /api/v1/domains/d-1/resources/mcu -> /api/v1/domains/{id}/resources/{id}
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/api/v1/") {
		return path
	}
	parts := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	for i := 1; i < len(parts); i += 2 {
		switch parts[i] {
		case "room", "resource", "statuses", "capabilities", "available":
			continue
		}
		parts[i] = "{id}"
	}
	return "/api/v1/" + strings.Join(parts, "/")
}

// Handler 返回 Prometheus HTTP Handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPlan 记录一次调度方案搜索
func (m *Metrics) RecordPlan(result string, duration time.Duration) {
	m.PlansTotal.WithLabelValues(result).Inc()
	m.PlanDuration.Observe(duration.Seconds())
}

// RecordAllocation 记录一次预约分配结果
func (m *Metrics) RecordAllocation(typ model.ReservationType, result string) {
	m.AllocationsTotal.WithLabelValues(string(typ), result).Inc()
}

// RecordWSMessage 记录 WebSocket 消息
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// WSConnectionOpened WebSocket 连接打开
func (m *Metrics) WSConnectionOpened() {
	m.WSConnectionsActive.Inc()
}

// WSConnectionClosed WebSocket 连接关闭
func (m *Metrics) WSConnectionClosed() {
	m.WSConnectionsActive.Dec()
}
