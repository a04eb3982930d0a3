package model

import "time"

// ============================================================================
// AllocatedResource - 资源分配记录
// ============================================================================

// AllocatedResource 某个资源在 [Slot.Start, Slot.End) 内的一次占用
//
// 对 virtual_rooms 资源 PortCount 表示占用的端口数；其他资源为独占，PortCount 为 0。
type AllocatedResource struct {
	ID            string    `json:"id" bson:"_id" db:"id"`
	ResourceID    string    `json:"resource_id" bson:"resource_id" db:"resource_id"`
	ReservationID string    `json:"reservation_id" bson:"reservation_id" db:"reservation_id"`
	Slot          Interval  `json:"slot" bson:"slot"`
	PortCount     int       `json:"port_count,omitempty" bson:"port_count,omitempty" db:"port_count"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

// IsVirtualRoom 是否为多点会议端口占用
func (a *AllocatedResource) IsVirtualRoom() bool {
	return a.PortCount > 0
}

// ============================================================================
// Reservation - 预约
// ============================================================================

// ReservationType 预约类型
type ReservationType string

const (
	ReservationTypeResource ReservationType = "resource" // 独占资源
	ReservationTypeRoom     ReservationType = "room"     // 多点会议室
)

// ReservationStatus 预约状态
//
// 状态流转：
//
//	allocated → deleted
//	failed（分配失败的请求只记录状态，不产生分配记录）
type ReservationStatus string

const (
	ReservationStatusAllocated ReservationStatus = "allocated"
	ReservationStatusFailed    ReservationStatus = "failed"
	ReservationStatusDeleted   ReservationStatus = "deleted"
)

// Reservation 预约
//
// RequestID 为预约请求标识，修改预约时保持不变（跨域协议以它定位预约）。
// DomainID 非空表示预约由外部域通过跨域协议创建。
type Reservation struct {
	ID           string            `json:"id" bson:"_id" db:"id"`
	RequestID    string            `json:"request_id" bson:"request_id" db:"request_id"`
	Type         ReservationType   `json:"type" bson:"type" db:"type"`
	Status       ReservationStatus `json:"status" bson:"status" db:"status"`
	Slot         Interval          `json:"slot" bson:"slot"`
	ResourceID   string            `json:"resource_id,omitempty" bson:"resource_id,omitempty" db:"resource_id"`
	PortCount    int               `json:"port_count,omitempty" bson:"port_count,omitempty" db:"port_count"`
	Technologies Technologies      `json:"technologies,omitempty" bson:"technologies,omitempty" db:"technologies"`
	DomainID     string            `json:"domain_id,omitempty" bson:"domain_id,omitempty" db:"domain_id"`
	CreatedBy    string            `json:"created_by,omitempty" bson:"created_by,omitempty" db:"created_by"`
	Description  string            `json:"description,omitempty" bson:"description,omitempty" db:"description"`
	Message      string            `json:"message,omitempty" bson:"message,omitempty" db:"message"`
	CreatedAt    time.Time         `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// IsActive 是否仍占用资源
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusAllocated
}

// ReservationFilter 预约查询条件
type ReservationFilter struct {
	ResourceIDs []string          // 为空表示不过滤
	DomainID    string            // 为空表示不过滤
	Status      ReservationStatus // 为空表示不过滤
	Slot        *Interval         // 与之重叠的预约
	Limit       int
}

// FormatForeignUserID 外部域用户标识，格式 "{domainID}:{userID}"
func FormatForeignUserID(domainID, userID string) string {
	return domainID + ":" + userID
}
