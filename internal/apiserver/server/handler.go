// Package server 路由配置与核心基础设施
package server

import (
	"net/http"
	"slices"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查与指标:
//   - GET /health
//   - GET /metrics
//
// 资源 (Resource):
//   - GET    /api/v1/resources                      - 列出资源
//   - POST   /api/v1/resources                      - 创建资源
//   - GET    /api/v1/resources/{id}                 - 获取资源
//   - PUT    /api/v1/resources/{id}                 - 更新资源
//   - DELETE /api/v1/resources/{id}                 - 删除资源
//   - GET    /api/v1/resources/{id}/availability    - 区间内是否可独占
//   - GET    /api/v1/virtual-rooms/available        - 可用会议室
//   - GET    /api/v1/stats                          - 可用性数据库统计
//
// 联邦域 (Domain):
//   - GET    /api/v1/domains                        - 列出域
//   - POST   /api/v1/domains                        - 登记域
//   - GET    /api/v1/domains/statuses               - 对端域状态
//   - POST   /api/v1/domains/capabilities           - 对端域资源能力
//   - GET    /api/v1/domains/{id}                   - 获取域
//   - PUT    /api/v1/domains/{id}                   - 更新域
//   - DELETE /api/v1/domains/{id}                   - 删除域
//   - PUT    /api/v1/domains/{id}/certificate       - 上传对端 CA 证书
//   - GET    /api/v1/domains/{id}/resources         - 开放给域的资源
//   - PUT    /api/v1/domains/{id}/resources/{rid}   - 开放资源
//   - DELETE /api/v1/domains/{id}/resources/{rid}   - 取消开放
//
// 预约 (Reservation):
//   - GET    /api/v1/reservations                   - 列出预约
//   - POST   /api/v1/reservations/room              - 会议预约
//   - POST   /api/v1/reservations/resource          - 资源预约
//   - GET    /api/v1/reservations/{id}              - 获取预约
//   - DELETE /api/v1/reservations/{id}              - 删除预约
//
// 跨域协议:
//   - /domain/*（见 interdomain 包）
//
// WebSocket:
//   - GET    /ws/reservations                       - 预约事件推送
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", h.metrics.Handler())

	// 资源
	mux.HandleFunc("GET /api/v1/resources", h.ListResources)
	mux.HandleFunc("POST /api/v1/resources", h.CreateResource)
	mux.HandleFunc("GET /api/v1/resources/{id}", h.GetResource)
	mux.HandleFunc("PUT /api/v1/resources/{id}", h.UpdateResource)
	mux.HandleFunc("DELETE /api/v1/resources/{id}", h.DeleteResource)
	mux.HandleFunc("GET /api/v1/resources/{id}/availability", h.ResourceAvailability)
	mux.HandleFunc("GET /api/v1/virtual-rooms/available", h.AvailableVirtualRooms)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)

	// 联邦域
	mux.HandleFunc("GET /api/v1/domains", h.ListDomains)
	mux.HandleFunc("POST /api/v1/domains", h.CreateDomain)
	mux.HandleFunc("GET /api/v1/domains/statuses", h.DomainStatuses)
	mux.HandleFunc("POST /api/v1/domains/capabilities", h.ForeignCapabilities)
	mux.HandleFunc("GET /api/v1/domains/{id}", h.GetDomain)
	mux.HandleFunc("PUT /api/v1/domains/{id}", h.UpdateDomain)
	mux.HandleFunc("DELETE /api/v1/domains/{id}", h.DeleteDomain)
	mux.HandleFunc("PUT /api/v1/domains/{id}/certificate", h.UploadCertificate)
	mux.HandleFunc("GET /api/v1/domains/{id}/resources", h.ListDomainResources)
	mux.HandleFunc("PUT /api/v1/domains/{id}/resources/{rid}", h.AssignDomainResource)
	mux.HandleFunc("DELETE /api/v1/domains/{id}/resources/{rid}", h.UnassignDomainResource)

	// 预约
	mux.HandleFunc("GET /api/v1/reservations", h.ListReservations)
	mux.HandleFunc("POST /api/v1/reservations/room", h.AllocateRoom)
	mux.HandleFunc("POST /api/v1/reservations/resource", h.AllocateResource)
	mux.HandleFunc("GET /api/v1/reservations/{id}", h.GetReservation)
	mux.HandleFunc("DELETE /api/v1/reservations/{id}", h.DeleteReservation)

	// 跨域协议
	if h.interdomain != nil {
		h.interdomain.RegisterRoutes(mux)
	}

	// 应用指标中间件到 REST API
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用 CORS 中间件
	corsHandler := h.corsMiddleware(apiHandler)

	// 创建顶层路由，WebSocket 绕过 metrics 中间件（避免 http.Hijacker 问题）
	topMux := http.NewServeMux()
	if h.eventGateway != nil {
		topMux.HandleFunc("GET /ws/reservations", h.eventGateway.HandleWebSocket)
	}
	topMux.Handle("/", corsHandler)

	return topMux
}

// corsMiddleware 添加 CORS 头支持跨域请求
//
// 未配置 CORSOrigins 时允许任意来源。
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(h.corsOrigins) > 0 {
			origin = ""
			if o := r.Header.Get("Origin"); slices.Contains(h.corsOrigins, o) {
				origin = o
				w.Header().Set("Vary", "Origin")
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
