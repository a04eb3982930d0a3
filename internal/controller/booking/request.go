package booking

import (
	"fmt"

	"shongo-controller/internal/controller/scheduler"
	"shongo-controller/internal/shared/model"
)

// Participant 会议参与者
//
// ResourceID 非空表示登记的设备；否则为 Count 个使用 Technologies 的外部端点，
// Standalone 表示未登记但可直接呼叫的独立终端。
type Participant struct {
	ResourceID   string             `json:"resource_id,omitempty"`
	Count        int                `json:"count,omitempty"`
	Technologies model.Technologies `json:"technologies,omitempty"`
	Standalone   bool               `json:"standalone,omitempty"`
}

// RoomRequest 会议预约请求
//
// 同一 RequestID 已有 allocated 预约时视为修改。
type RoomRequest struct {
	RequestID      string                   `json:"request_id,omitempty"`
	Slot           model.Interval           `json:"slot"`
	Participants   []Participant            `json:"participants"`
	CallInitiation scheduler.CallInitiation `json:"call_initiation,omitempty"`
	DomainID       string                   `json:"domain_id,omitempty"`
	CreatedBy      string                   `json:"created_by,omitempty"`
	Description    string                   `json:"description,omitempty"`
}

// Validate 校验请求
func (r *RoomRequest) Validate() error {
	if err := r.Slot.Validate(); err != nil {
		return err
	}
	if r.Slot.IsEmpty() {
		return fmt.Errorf("slot must not be empty")
	}
	if len(r.Participants) == 0 {
		return fmt.Errorf("at least one participant is required")
	}
	for i, p := range r.Participants {
		if p.ResourceID == "" && len(p.Technologies) == 0 {
			return fmt.Errorf("participant %d: technologies are required for external endpoints", i)
		}
		if p.Count < 0 {
			return fmt.Errorf("participant %d: negative count", i)
		}
	}
	switch r.CallInitiation {
	case "", scheduler.CallInitiationVirtualRoom, scheduler.CallInitiationTerminal:
	default:
		return fmt.Errorf("unknown call initiation %q", r.CallInitiation)
	}
	return nil
}

// ResourceRequest 独占资源预约请求
//
// 同一 RequestID 已有 allocated 预约时视为修改。
type ResourceRequest struct {
	RequestID   string         `json:"request_id,omitempty"`
	Slot        model.Interval `json:"slot"`
	ResourceID  string         `json:"resource_id"`
	DomainID    string         `json:"domain_id,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	Description string         `json:"description,omitempty"`
}

// Validate 校验请求
func (r *ResourceRequest) Validate() error {
	if r.ResourceID == "" {
		return fmt.Errorf("resource_id is required")
	}
	if err := r.Slot.Validate(); err != nil {
		return err
	}
	if r.Slot.IsEmpty() {
		return fmt.Errorf("slot must not be empty")
	}
	return nil
}
