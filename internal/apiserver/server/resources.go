package server

import (
	"net/http"
	"strconv"
	"strings"

	"shongo-controller/internal/shared/model"
)

// ListResources 列出资源
// GET /api/v1/resources
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.booking.ListResources(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if resources == nil {
		resources = []*model.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resources": resources, "count": len(resources)})
}

// CreateResource 创建资源
// POST /api/v1/resources
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var res model.Resource
	if !decodeJSON(r, &res) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.booking.CreateResource(r.Context(), &res); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &res)
}

// GetResource 获取资源
// GET /api/v1/resources/{id}
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.booking.GetResource(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpdateResource 更新资源
// PUT /api/v1/resources/{id}
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := h.booking.GetResource(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	var res model.Resource
	if !decodeJSON(r, &res) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res.ID = id
	res.CreatedAt = existing.CreatedAt
	if err := h.booking.UpdateResource(r.Context(), &res); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &res)
}

// DeleteResource 删除资源
// DELETE /api/v1/resources/{id}
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	if err := h.booking.DeleteResource(r.Context(), r.PathValue("id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResourceAvailability 资源在区间内是否可独占
// GET /api/v1/resources/{id}/availability?slot=start/end
func (h *Handler) ResourceAvailability(w http.ResponseWriter, r *http.Request) {
	slot, err := parseSlot(r)
	if err != nil || slot == nil {
		writeError(w, http.StatusBadRequest, "valid slot is required")
		return
	}
	id := r.PathValue("id")
	if _, ok := h.booking.Database().GetResource(id); !ok {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource_id": id,
		"slot":        slot.String(),
		"available":   h.booking.IsResourceAvailable(id, *slot),
	})
}

// AvailableVirtualRooms 区间内可用的会议室
// GET /api/v1/virtual-rooms/available?slot=start/end&ports=N&technologies=H323,SIP
func (h *Handler) AvailableVirtualRooms(w http.ResponseWriter, r *http.Request) {
	slot, err := parseSlot(r)
	if err != nil || slot == nil {
		writeError(w, http.StatusBadRequest, "valid slot is required")
		return
	}
	ports := 0
	if raw := r.URL.Query().Get("ports"); raw != "" {
		if ports, err = strconv.Atoi(raw); err != nil || ports < 0 {
			writeError(w, http.StatusBadRequest, "invalid ports")
			return
		}
	}
	var techs model.Technologies
	if raw := r.URL.Query().Get("technologies"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			t, err := model.ParseTechnology(strings.TrimSpace(s))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			techs = append(techs, t)
		}
	}

	rooms := h.booking.FindAvailableVirtualRooms(*slot, ports, techs)
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms, "count": len(rooms)})
}

// Stats 可用性数据库统计
// GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.booking.Database().Stats())
}
