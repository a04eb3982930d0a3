// Package logging 结构化日志
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	TraceIDKey       ContextKey = "trace_id"
	DomainKey        ContextKey = "domain"
	ReservationIDKey ContextKey = "reservation_id"
	ResourceIDKey    ContextKey = "resource_id"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level" yaml:"level"`
	Format    string `json:"format" yaml:"format"` // json or text
	Output    string `json:"output" yaml:"output"` // stdout, stderr, or file path
	Component string `json:"component" yaml:"-"`
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	return NewWithWriter(output, level, cfg.Format, cfg.Component)
}

// NewWithWriter 创建写入指定 Writer 的日志器（测试中用于捕获输出）
func NewWithWriter(w io.Writer, level slog.Level, format, component string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With(slog.String("component", component)),
		component: component,
	}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stdout",
		Component: component,
	})
}

// Discard 丢弃全部输出的日志器
func Discard() *Logger {
	return NewWithWriter(io.Discard, slog.LevelError, "text", "discard")
}

// Component 返回组件名
func (l *Logger) Component() string {
	return l.component
}

// Named 派生子组件日志器，共享同一 handler
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("subcomponent", component)),
		component: l.component + "." + component,
	}
}

// WithContext 从上下文提取追踪信息
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any

	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if domain, ok := ctx.Value(DomainKey).(string); ok && domain != "" {
		attrs = append(attrs, slog.String("domain", domain))
	}
	if reservationID, ok := ctx.Value(ReservationIDKey).(string); ok && reservationID != "" {
		attrs = append(attrs, slog.String("reservation_id", reservationID))
	}
	if resourceID, ok := ctx.Value(ResourceIDKey).(string); ok && resourceID != "" {
		attrs = append(attrs, slog.String("resource_id", resourceID))
	}
	if len(attrs) == 0 {
		return l
	}

	return &Logger{
		Logger:    l.Logger.With(attrs...),
		component: l.component,
	}
}

// WithReservation 添加预约 ID
func (l *Logger) WithReservation(reservationID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("reservation_id", reservationID)),
		component: l.component,
	}
}

// WithDomain 添加对端域名称
func (l *Logger) WithDomain(domain string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("domain", domain)),
		component: l.component,
	}
}

// WithResource 添加资源 ID
func (l *Logger) WithResource(resourceID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("resource_id", resourceID)),
		component: l.component,
	}
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		Logger:    l.Logger.With(slog.String("error", err.Error())),
		component: l.component,
	}
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.Float64("duration_ms", float64(d.Milliseconds()))),
		component: l.component,
	}
}

// HTTPRequestLog HTTP 请求日志
func (l *Logger) HTTPRequestLog(method, path string, status int, duration time.Duration, clientIP string) {
	l.Logger.Info("HTTP request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
		slog.String("client_ip", clientIP),
	)
}

// DomainRequestLog 跨域请求日志
func (l *Logger) DomainRequestLog(domain, action string, latency time.Duration, err error) {
	attrs := []any{
		slog.String("domain", domain),
		slog.String("action", action),
		slog.Float64("latency_ms", float64(latency.Milliseconds())),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.Logger.Warn("Domain request failed", attrs...)
	} else {
		l.Logger.Debug("Domain request", attrs...)
	}
}

// AllocationLog 分配事件日志
func (l *Logger) AllocationLog(action, reservationID, resourceID string, extra ...any) {
	attrs := []any{
		slog.String("action", action),
		slog.String("reservation_id", reservationID),
		slog.String("resource_id", resourceID),
	}
	attrs = append(attrs, extra...)
	l.Logger.Info("Allocation event", attrs...)
}
