package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"shongo-controller/internal/apiserver/auth"
	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/objstore"
)

// maxCertificateSize 证书上传大小上限
const maxCertificateSize = 64 << 10

// DomainRequest 登记或更新域的请求体
//
// Password 为对端登录本域时使用的密码，只保存 bcrypt 哈希；更新时为空表示不修改。
type DomainRequest struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	ShortName    string `json:"short_name,omitempty"`
	Organization string `json:"organization,omitempty"`
	URL          string `json:"url,omitempty"`
	Allocatable  bool   `json:"allocatable"`
	Password     string `json:"password,omitempty"`
}

// ListDomains 列出域
// GET /api/v1/domains
func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	list, err := h.domains.ListDomains(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []*model.Domain{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"domains": list, "count": len(list)})
}

// CreateDomain 登记域
// POST /api/v1/domains
func (h *Handler) CreateDomain(w http.ResponseWriter, r *http.Request) {
	var req DomainRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d := &model.Domain{
		ID:           req.ID,
		Name:         req.Name,
		ShortName:    req.ShortName,
		Organization: req.Organization,
		URL:          req.URL,
		Allocatable:  req.Allocatable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		d.PasswordHash = hash
	}
	if err := h.domains.CreateDomain(r.Context(), d); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.WithDomain(d.Name).Info("Domain registered", "domain_id", d.ID)
	writeJSON(w, http.StatusCreated, d)
}

// GetDomain 获取域
// GET /api/v1/domains/{id}
func (h *Handler) GetDomain(w http.ResponseWriter, r *http.Request) {
	d, err := h.domains.GetDomain(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// UpdateDomain 更新域
// PUT /api/v1/domains/{id}
func (h *Handler) UpdateDomain(w http.ResponseWriter, r *http.Request) {
	d, err := h.domains.GetDomain(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}

	var req DomainRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		d.Name = req.Name
	}
	d.ShortName = req.ShortName
	d.Organization = req.Organization
	d.URL = req.URL
	d.Allocatable = req.Allocatable
	d.UpdatedAt = time.Now().UTC()
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		d.PasswordHash = hash
	}
	if err := h.domains.UpdateDomain(r.Context(), d); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.forget(r, d.ID)
	writeJSON(w, http.StatusOK, d)
}

// DeleteDomain 删除域及其证书
// DELETE /api/v1/domains/{id}
func (h *Handler) DeleteDomain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := h.domains.GetDomain(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}
	if err := h.domains.DeleteDomain(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if d.CertificateKey != "" && h.certificates != nil {
		if err := h.certificates.Delete(r.Context(), d.CertificateKey); err != nil {
			h.logger.WithDomain(d.Name).WithError(err).Warn("Delete domain certificate failed")
		}
	}
	h.forget(r, id)
	h.logger.WithDomain(d.Name).Info("Domain deleted", "domain_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// UploadCertificate 上传对端 CA 证书（PEM）
// PUT /api/v1/domains/{id}/certificate
func (h *Handler) UploadCertificate(w http.ResponseWriter, r *http.Request) {
	if h.certificates == nil {
		writeError(w, http.StatusServiceUnavailable, "certificate storage is not configured")
		return
	}
	d, err := h.domains.GetDomain(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxCertificateSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read certificate")
		return
	}
	key, err := h.certificates.Put(r.Context(), d.Name, data)
	if err != nil {
		if errors.Is(err, objstore.ErrInvalidCertificate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeDomainError(w, r, err)
		return
	}
	d.CertificateKey = key
	d.UpdatedAt = time.Now().UTC()
	if err := h.domains.UpdateDomain(r.Context(), d); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.WithDomain(d.Name).Info("Domain certificate uploaded", "key", key)
	writeJSON(w, http.StatusOK, d)
}

// ListDomainResources 开放给域的资源
// GET /api/v1/domains/{id}/resources?type=RESOURCE|VIRTUAL_ROOM
func (h *Handler) ListDomainResources(w http.ResponseWriter, r *http.Request) {
	typ := model.DomainCapabilityType(r.URL.Query().Get("type"))
	list, err := h.domains.ListDomainResources(r.Context(), r.PathValue("id"), typ)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []*model.DomainResource{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resources": list, "count": len(list)})
}

// AssignDomainResource 开放资源给域（已存在时更新）
// PUT /api/v1/domains/{id}/resources/{rid}
func (h *Handler) AssignDomainResource(w http.ResponseWriter, r *http.Request) {
	var dr model.DomainResource
	if !decodeJSON(r, &dr) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dr.DomainID = r.PathValue("id")
	dr.ResourceID = r.PathValue("rid")
	if dr.Type == "" {
		dr.Type = model.DomainCapabilityResource
	}
	if dr.Type != model.DomainCapabilityResource && dr.Type != model.DomainCapabilityVirtualRoom {
		writeError(w, http.StatusBadRequest, "unknown capability type")
		return
	}

	d, err := h.domains.GetDomain(r.Context(), dr.DomainID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "domain not found")
		return
	}
	res, err := h.booking.GetResource(r.Context(), dr.ResourceID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if dr.Type == model.DomainCapabilityVirtualRoom && !res.HasCapability(model.CapabilityVirtualRooms) {
		writeError(w, http.StatusBadRequest, "resource has no virtual_rooms capability")
		return
	}

	if err := h.domains.UpsertDomainResource(r.Context(), &dr); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &dr)
}

// UnassignDomainResource 取消开放
// DELETE /api/v1/domains/{id}/resources/{rid}
func (h *Handler) UnassignDomainResource(w http.ResponseWriter, r *http.Request) {
	if err := h.domains.DeleteDomainResource(r.Context(), r.PathValue("id"), r.PathValue("rid")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DomainStatuses 对端域状态
// GET /api/v1/domains/statuses
func (h *Handler) DomainStatuses(w http.ResponseWriter, r *http.Request) {
	if h.connector == nil {
		writeError(w, http.StatusServiceUnavailable, "inter-domain connector is not configured")
		return
	}
	statuses, err := h.connector.DomainStatuses(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"domains": statuses, "count": len(statuses)})
}

// ForeignCapabilities 对端域开放给本域的资源能力
// POST /api/v1/domains/capabilities?slot=start/end
func (h *Handler) ForeignCapabilities(w http.ResponseWriter, r *http.Request) {
	if h.connector == nil {
		writeError(w, http.StatusServiceUnavailable, "inter-domain connector is not configured")
		return
	}
	var specs []model.CapabilitySpecificationRequest
	if !decodeJSON(r, &specs) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	slot, err := parseSlot(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.connector.ListForeignCapabilities(r.Context(), specs, slot)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"capabilities": result})
}

func (h *Handler) forget(r *http.Request, domainID string) {
	if h.connector == nil {
		return
	}
	if err := h.connector.Forget(r.Context(), domainID); err != nil {
		h.logger.WithError(err).Warn("Clear domain cache failed", "domain_id", domainID)
	}
}
