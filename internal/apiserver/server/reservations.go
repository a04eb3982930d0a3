package server

import (
	"net/http"
	"strconv"

	"shongo-controller/internal/controller/booking"
	"shongo-controller/internal/shared/model"
)

// ListReservations 列出预约
// GET /api/v1/reservations?resource_id=&domain_id=&status=&slot=&limit=
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ReservationFilter{
		DomainID: q.Get("domain_id"),
		Status:   model.ReservationStatus(q.Get("status")),
	}
	if id := q.Get("resource_id"); id != "" {
		filter.ResourceIDs = []string{id}
	}
	slot, err := parseSlot(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Slot = slot
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	list, err := h.booking.ListReservations(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []*model.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": list, "count": len(list)})
}

// AllocateRoom 会议预约（RequestID 已有预约时为修改）
// POST /api/v1/reservations/room
func (h *Handler) AllocateRoom(w http.ResponseWriter, r *http.Request) {
	var req booking.RoomRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.booking.AllocateRoom(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// AllocateResource 资源预约（RequestID 已有预约时为修改）
// POST /api/v1/reservations/resource
func (h *Handler) AllocateResource(w http.ResponseWriter, r *http.Request) {
	var req booking.ResourceRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.booking.AllocateResource(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetReservation 获取预约
// GET /api/v1/reservations/{id}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.booking.GetReservation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteReservation 删除预约
// DELETE /api/v1/reservations/{id}
func (h *Handler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.booking.DeleteReservation(r.Context(), r.PathValue("id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
