// Package interdomain 跨域协议服务端
//
// 对端控制器通过 /domain/* 接口查询本域开放的资源能力、预约资源和管理预约。
// 除 login 与 status 外的接口都要求认证，认证结果（对端域）决定可见的资源与预约。
package interdomain

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"shongo-controller/internal/apiserver/auth"
	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/controller/booking"
	"shongo-controller/internal/shared/model"
	"shongo-controller/pkg/logging"
)

// Booking 预约服务（由 booking.Service 实现）
type Booking interface {
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	AllocateResource(ctx context.Context, req booking.ResourceRequest) (*model.Reservation, error)
	GetByRequest(ctx context.Context, requestID string) (*model.Reservation, error)
	DeleteByRequest(ctx context.Context, requestID, domainID string) error
	ListReservations(ctx context.Context, filter model.ReservationFilter) ([]*model.Reservation, error)
	IsResourceAvailable(id string, slot model.Interval) bool
	FindAvailableVirtualRooms(slot model.Interval, ports int, technologies model.Technologies) []availability.AvailableVirtualRoom
}

// DomainResources 域开放资源查询（由 storage.DomainStore 实现）
type DomainResources interface {
	GetDomainResource(ctx context.Context, domainID, resourceID string) (*model.DomainResource, error)
	ListDomainResources(ctx context.Context, domainID string, typ model.DomainCapabilityType) ([]*model.DomainResource, error)
}

// Handler 跨域协议处理器
type Handler struct {
	auth    *auth.Authenticator
	booking Booking
	domains DomainResources
	logger  *logging.Logger
}

// NewHandler 创建跨域协议处理器
func NewHandler(authenticator *auth.Authenticator, b Booking, domains DomainResources, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default("interdomain")
	}
	return &Handler{auth: authenticator, booking: b, domains: domains, logger: logger}
}

// RegisterRoutes 注册跨域协议路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /domain/login", h.Login)
	mux.HandleFunc("GET /domain/status", h.Status)
	mux.HandleFunc("POST /domain/status", h.Status)

	authed := auth.Middleware(h.auth, h.deny)
	mux.Handle("POST /domain/resource/list", authed(http.HandlerFunc(h.ListCapabilities)))
	mux.Handle("GET /domain/resource/allocate", authed(http.HandlerFunc(h.AllocateResource)))
	mux.Handle("GET /domain/reservation", authed(http.HandlerFunc(h.GetReservation)))
	mux.Handle("GET /domain/reservation/delete", authed(http.HandlerFunc(h.DeleteReservation)))
	mux.Handle("GET /domain/resource/reservation/list", authed(http.HandlerFunc(h.ListReservations)))
}

// ============================================================================
// 认证
// ============================================================================

// Login 对端登录换取访问令牌
// GET /domain/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	token, d, err := h.auth.Login(r)
	if err != nil {
		h.fail(w, r, "", "login", err)
		return
	}
	h.logger.WithDomain(d.Name).Info("Domain logged in")
	writeJSON(w, http.StatusOK, model.DomainLogin{AccessToken: token})
}

// Status 本域状态
// GET|POST /domain/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.DomainStatusResponse{Status: model.DomainStatusAvailable})
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request, err error) {
	h.fail(w, r, "", "authenticate", &NotAuthorizedError{Err: err})
}

// ============================================================================
// 资源
// ============================================================================

// ListCapabilities 列出向调用方开放的资源能力
// POST /domain/resource/list?slot=start/end
func (h *Handler) ListCapabilities(w http.ResponseWriter, r *http.Request) {
	d := auth.GetDomain(r.Context())
	start := time.Now()

	var specs []model.CapabilitySpecificationRequest
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		h.fail(w, r, d.Name, "list_capabilities", badRequest("invalid request body"))
		return
	}
	slot, err := optionalSlot(r)
	if err != nil {
		h.fail(w, r, d.Name, "list_capabilities", err)
		return
	}

	caps, err := h.capabilities(r.Context(), d, specs, slot)
	if err != nil {
		h.fail(w, r, d.Name, "list_capabilities", err)
		return
	}
	h.logger.DomainRequestLog(d.Name, "list_capabilities", time.Since(start), nil)
	writeJSON(w, http.StatusOK, caps)
}

// AllocateResource 为调用方创建或修改资源预约
// GET /domain/resource/allocate?slot=&resourceId=&userId=&description=&reservationRequestId=
func (h *Handler) AllocateResource(w http.ResponseWriter, r *http.Request) {
	d := auth.GetDomain(r.Context())
	start := time.Now()
	q := r.URL.Query()

	slot, err := requiredSlot(r)
	if err != nil {
		h.fail(w, r, d.Name, "allocate", err)
		return
	}
	resourceID := q.Get("resourceId")
	if resourceID == "" {
		h.fail(w, r, d.Name, "allocate", badRequest("resourceId is required"))
		return
	}
	dr, err := h.domains.GetDomainResource(r.Context(), d.ID, resourceID)
	if err != nil {
		h.fail(w, r, d.Name, "allocate", err)
		return
	}
	if dr == nil || dr.Type != model.DomainCapabilityResource {
		h.fail(w, r, d.Name, "allocate", forbidden("resource %s is not assigned to domain %s", resourceID, d.Name))
		return
	}

	reservation, err := h.booking.AllocateResource(r.Context(), booking.ResourceRequest{
		RequestID:   q.Get("reservationRequestId"),
		Slot:        slot,
		ResourceID:  resourceID,
		DomainID:    d.ID,
		CreatedBy:   model.FormatForeignUserID(d.ID, q.Get("userId")),
		Description: q.Get("description"),
	})
	if err != nil {
		h.fail(w, r, d.Name, "allocate", err)
		return
	}
	h.logger.DomainRequestLog(d.Name, "allocate", time.Since(start), nil)
	writeJSON(w, http.StatusOK, reservation.ToForeignReservation())
}

// ============================================================================
// 预约
// ============================================================================

// GetReservation 查询调用方的预约请求
// GET /domain/reservation?reservationRequestId=
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	d := auth.GetDomain(r.Context())
	requestID := r.URL.Query().Get("reservationRequestId")
	if requestID == "" {
		h.fail(w, r, d.Name, "get_reservation", badRequest("reservationRequestId is required"))
		return
	}

	reservation, err := h.booking.GetByRequest(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, d.Name, "get_reservation", err)
		return
	}
	if reservation == nil || reservation.DomainID != d.ID {
		h.fail(w, r, d.Name, "get_reservation", forbidden("reservation request %s not found", requestID))
		return
	}
	writeJSON(w, http.StatusOK, reservation.ToForeignReservation())
}

// DeleteReservation 删除调用方的预约请求，未知请求视为成功
// GET /domain/reservation/delete?reservationRequestId=
func (h *Handler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	d := auth.GetDomain(r.Context())
	start := time.Now()
	requestID := r.URL.Query().Get("reservationRequestId")
	if requestID == "" {
		h.fail(w, r, d.Name, "delete_reservation", badRequest("reservationRequestId is required"))
		return
	}

	if err := h.booking.DeleteByRequest(r.Context(), requestID, d.ID); err != nil {
		h.fail(w, r, d.Name, "delete_reservation", err)
		return
	}
	h.logger.DomainRequestLog(d.Name, "delete_reservation", time.Since(start), nil)
	writeJSON(w, http.StatusOK, model.Status{Code: model.StatusOK})
}

// ListReservations 开放给调用方的资源上的预约
//
// 其他域的预约只暴露时间段，不暴露请求与预约标识。
// GET /domain/resource/reservation/list?resourceId=&slot=
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	d := auth.GetDomain(r.Context())
	slot, err := optionalSlot(r)
	if err != nil {
		h.fail(w, r, d.Name, "list_reservations", err)
		return
	}

	var resourceIDs []string
	if id := r.URL.Query().Get("resourceId"); id != "" {
		dr, err := h.domains.GetDomainResource(r.Context(), d.ID, id)
		if err != nil {
			h.fail(w, r, d.Name, "list_reservations", err)
			return
		}
		if dr == nil {
			h.fail(w, r, d.Name, "list_reservations", forbidden("resource %s is not assigned to domain %s", id, d.Name))
			return
		}
		resourceIDs = []string{id}
	} else {
		assigned, err := h.domains.ListDomainResources(r.Context(), d.ID, model.DomainCapabilityResource)
		if err != nil {
			h.fail(w, r, d.Name, "list_reservations", err)
			return
		}
		for _, dr := range assigned {
			resourceIDs = append(resourceIDs, dr.ResourceID)
		}
	}

	result := make([]*model.ForeignReservation, 0)
	if len(resourceIDs) > 0 {
		reservations, err := h.booking.ListReservations(r.Context(), model.ReservationFilter{
			ResourceIDs: resourceIDs,
			Status:      model.ReservationStatusAllocated,
			Slot:        slot,
		})
		if err != nil {
			h.fail(w, r, d.Name, "list_reservations", err)
			return
		}
		for _, res := range reservations {
			fr := res.ToForeignReservation()
			if res.DomainID != d.ID {
				fr.ForeignReservationRequestID = ""
				fr.ForeignReservationID = ""
				fr.Message = ""
			}
			result = append(result, fr)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// ============================================================================
// 辅助函数
// ============================================================================

// fail 记录并输出错误，内部错误的细节只写入日志
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, domain, action string, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).WithError(err).Error("Domain request failed",
			"domain", domain, "action", action, "path", r.URL.Path)
	} else {
		h.logger.DomainRequestLog(domain, action, 0, err)
	}
	writeJSON(w, status, body)
}

func optionalSlot(r *http.Request) (*model.Interval, error) {
	raw := r.URL.Query().Get("slot")
	if raw == "" {
		return nil, nil
	}
	slot, err := model.ParseInterval(raw)
	if err != nil {
		return nil, badRequest("invalid slot: %v", err)
	}
	return &slot, nil
}

func requiredSlot(r *http.Request) (model.Interval, error) {
	slot, err := optionalSlot(r)
	if err != nil {
		return model.Interval{}, err
	}
	if slot == nil {
		return model.Interval{}, badRequest("slot is required")
	}
	return *slot, nil
}
