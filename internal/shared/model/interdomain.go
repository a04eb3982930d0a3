package model

// ============================================================================
// 跨域协议 DTO
// ============================================================================
//
// 字段名沿用对端控制器的 JSON 约定（camelCase），不可随意修改。

// StatusCode 协议状态码
type StatusCode string

const (
	StatusOK           StatusCode = "ok"
	StatusUnauthorized StatusCode = "unauthorized"
	StatusForbidden    StatusCode = "forbidden"
	StatusConflict     StatusCode = "conflict"
	StatusBadRequest   StatusCode = "bad_request"
	StatusError        StatusCode = "error"
)

// Status 协议状态信封
type Status struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message,omitempty"`
}

// DomainLogin 登录响应
type DomainLogin struct {
	AccessToken string `json:"accessToken"`
}

// DomainStatusResponse 域状态响应
type DomainStatusResponse struct {
	Status DomainStatus `json:"status"`
}

// CapabilitySpecificationRequest 能力查询条件
//
// TechnologyVariants 中任一技术组合被满足即可（组合内为"全部支持"）。
type CapabilitySpecificationRequest struct {
	CapabilityType     DomainCapabilityType `json:"capabilityType"`
	LicenseCount       *int                 `json:"licenseCount,omitempty"`
	TechnologyVariants []Technologies       `json:"technologyVariants,omitempty"`
}

// DomainCapability 对端可见的资源能力
//
// 除 RESOURCE 类型外 ID 会被清空，对端不能直接引用具体设备。
type DomainCapability struct {
	ID           string               `json:"id,omitempty"`
	Name         string               `json:"name,omitempty"`
	Description  string               `json:"description,omitempty"`
	Type         DomainCapabilityType `json:"type"`
	LicenseCount int                  `json:"licenseCount,omitempty"`
	Price        int                  `json:"price"`
	Priority     int                  `json:"priority"`
	Technologies Technologies         `json:"technologies,omitempty"`
	Available    bool                 `json:"available"`
}

// ForeignReservationStatus 跨域预约结果状态
type ForeignReservationStatus string

const (
	ForeignReservationOK     ForeignReservationStatus = "OK"
	ForeignReservationFailed ForeignReservationStatus = "FAILED"
)

// ForeignReservation 跨域预约
type ForeignReservation struct {
	ForeignReservationRequestID string                   `json:"foreignReservationRequestId"`
	ForeignReservationID        string                   `json:"foreignReservationId,omitempty"`
	Slot                        *Interval                `json:"slot,omitempty"`
	Status                      ForeignReservationStatus `json:"status"`
	Message                     string                   `json:"message,omitempty"`
	ResourceID                  string                   `json:"resourceId,omitempty"`
	LicenseCount                int                      `json:"licenseCount,omitempty"`
	Technologies                Technologies             `json:"technologies,omitempty"`
}

// ToForeignReservation 本地预约转换为跨域 DTO
func (r *Reservation) ToForeignReservation() *ForeignReservation {
	slot := r.Slot
	fr := &ForeignReservation{
		ForeignReservationRequestID: r.RequestID,
		Slot:                        &slot,
		Status:                      ForeignReservationOK,
		Message:                     r.Message,
		ResourceID:                  r.ResourceID,
		LicenseCount:                r.PortCount,
		Technologies:                r.Technologies,
	}
	switch r.Status {
	case ReservationStatusAllocated:
		fr.ForeignReservationID = r.ID
	case ReservationStatusFailed:
		fr.Status = ForeignReservationFailed
	}
	return fr
}

// ToCapability 开放资源转换为跨域能力
func (dr *DomainResource) ToCapability(r *Resource) DomainCapability {
	c := DomainCapability{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Type:         dr.Type,
		LicenseCount: dr.LicenseCount,
		Price:        dr.Price,
		Priority:     dr.Priority,
		Technologies: r.Technologies,
		Available:    r.Allocatable,
	}
	if dr.Type == DomainCapabilityVirtualRoom {
		c.Technologies = r.VirtualRoomTechnologies()
	}
	return c
}
