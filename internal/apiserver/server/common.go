// Package server 控制器管理 API
//
// 本包实现控制器的 HTTP 入口，包括：
//   - 资源目录与可用会议室查询
//   - 联邦域、域开放资源与对端 CA 证书
//   - 预约的创建、修改、查询与删除
//   - 跨域协议 /domain/*（由 interdomain 包注册）
//   - WebSocket 预约事件推送
//
// 文件组织：
//   - common.go: Handler 定义与通用工具函数
//   - handler.go: 路由与中间件
//   - resources.go / domains.go / reservations.go: 管理接口
//   - websocket.go: 预约事件网关
//   - metrics.go: Prometheus 指标
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"shongo-controller/internal/apiserver/interdomain"
	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/controller/booking"
	"shongo-controller/internal/controller/scheduler"
	"shongo-controller/internal/shared/eventbus"
	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/storage"
	"shongo-controller/pkg/logging"
)

// Booking 预约服务（由 booking.Service 实现）
type Booking interface {
	CreateResource(ctx context.Context, r *model.Resource) error
	UpdateResource(ctx context.Context, r *model.Resource) error
	DeleteResource(ctx context.Context, id string) error
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	ListResources(ctx context.Context) ([]*model.Resource, error)
	FindAvailableVirtualRooms(slot model.Interval, ports int, technologies model.Technologies) []availability.AvailableVirtualRoom
	IsResourceAvailable(id string, slot model.Interval) bool

	AllocateRoom(ctx context.Context, req booking.RoomRequest) (*model.Reservation, error)
	AllocateResource(ctx context.Context, req booking.ResourceRequest) (*model.Reservation, error)
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ListReservations(ctx context.Context, filter model.ReservationFilter) ([]*model.Reservation, error)
	DeleteReservation(ctx context.Context, id string) error

	Database() *availability.Database
}

// DomainConnector 跨域客户端（由 domains.CachedConnector 实现）
type DomainConnector interface {
	DomainStatuses(ctx context.Context) ([]*model.Domain, error)
	ListForeignCapabilities(ctx context.Context, specs []model.CapabilitySpecificationRequest, slot *model.Interval) (map[string][]*model.DomainCapability, error)
	Forget(ctx context.Context, domainID string) error
}

// CertificateStore 对端 CA 证书存储（由 objstore.CertificateStore 实现）
type CertificateStore interface {
	Put(ctx context.Context, domainName string, pemData []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Options Handler 依赖
//
// Connector、Certificates、Interdomain、EventBus 为可选项，为空时对应接口不可用。
type Options struct {
	Booking      Booking
	Domains      storage.DomainStore
	Connector    DomainConnector
	Certificates CertificateStore
	Interdomain  *interdomain.Handler
	EventBus     eventbus.ReservationEventBus
	Metrics      *Metrics
	CORSOrigins  []string
	Logger       *logging.Logger
}

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到对应的处理函数
//   - 把领域错误映射为 HTTP 状态码
//   - 协调事件网关和跨域客户端
type Handler struct {
	booking      Booking
	domains      storage.DomainStore
	connector    DomainConnector
	certificates CertificateStore
	interdomain  *interdomain.Handler

	eventGateway *EventGateway // WebSocket 事件网关
	metrics      *Metrics      // Prometheus 指标
	corsOrigins  []string
	logger       *logging.Logger
}

// NewHandler 创建 Handler 实例
func NewHandler(opts Options) *Handler {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics("shongo", prometheus.NewRegistry())
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default("apiserver")
	}
	h := &Handler{
		booking:      opts.Booking,
		domains:      opts.Domains,
		connector:    opts.Connector,
		certificates: opts.Certificates,
		interdomain:  opts.Interdomain,
		metrics:      opts.Metrics,
		corsOrigins:  opts.CORSOrigins,
		logger:       opts.Logger,
	}
	if opts.EventBus != nil {
		h.eventGateway = NewEventGateway(opts.EventBus, opts.Metrics, opts.Logger.Named("ws"))
	}
	return h
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError 领域错误映射为 HTTP 状态码，内部错误只记录日志
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, storage.ErrConflict),
		errors.Is(err, availability.ErrDuplicateResource),
		errors.Is(err, availability.ErrResourceInUse),
		scheduler.IsCapacityError(err):
		status = http.StatusConflict
	case errors.Is(err, scheduler.ErrNoAvailableVirtualRoom),
		errors.Is(err, scheduler.ErrNotEnoughEndpoints),
		errors.Is(err, availability.ErrResourceNotMaintained):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).WithError(err).Error("Request failed", "method", r.Method, "path", r.URL.Path)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON 解析请求体
func decodeJSON(r *http.Request, v interface{}) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

// parseSlot 解析 slot 查询参数，为空时返回 nil
func parseSlot(r *http.Request) (*model.Interval, error) {
	raw := r.URL.Query().Get("slot")
	if raw == "" {
		return nil, nil
	}
	slot, err := model.ParseInterval(raw)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 返回可用性数据库的统计，用于负载均衡器和监控系统检查服务状态。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.booking.Database().Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"resources":     stats.Resources,
		"virtual_rooms": stats.VirtualRooms,
		"allocations":   stats.Allocations,
		"time":          time.Now().UTC(),
	})
}
