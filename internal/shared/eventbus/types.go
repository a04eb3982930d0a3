// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

// 预约事件类型
const (
	EventReservationAllocated = "reservation.allocated"
	EventReservationModified  = "reservation.modified"
	EventReservationDeleted   = "reservation.deleted"
	EventReservationFailed    = "reservation.failed"
)

// ReservationEvent 预约事件
type ReservationEvent struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	ReservationID string                 `json:"reservation_id,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	ResourceID    string                 `json:"resource_id,omitempty"`
	DomainID      string                 `json:"domain_id,omitempty"`
	Slot          string                 `json:"slot,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// KeyReservationEvents 预约事件流
	KeyReservationEvents = "reservation_events"

	// Stream 最大长度
	MaxStreamLength = 1000
)
