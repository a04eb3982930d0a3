// Package scheduler 会议调度
//
// Task 收集一次会议的全部端点，FindPlan 给出连接方案：
// 两个可以直接互通的独立终端直接相连；否则选择一台可用的多点会议
// 设备（虚拟会议室），所有端点连接到该会议室。
package scheduler

import "shongo-controller/internal/shared/model"

// Endpoint 调度视角下的会议端点
type Endpoint interface {
	// ID 端点标识（在同一 Task 内唯一）
	ID() string
	// Technologies 端点支持的技术
	Technologies() model.Technologies
	// Standalone 是否可以不经会议室直接呼叫其他端点
	Standalone() bool
	// Count 端点代表的参与者数量
	Count() int
	// ResourceID 登记设备的资源 ID，外部端点为空
	ResourceID() string
}

// ParticipantEndpoint 会议参与端点：登记的设备，或一组外部端点
type ParticipantEndpoint struct {
	id           string
	technologies model.Technologies
	standalone   bool
	count        int
	resourceID   string
}

// NewDeviceEndpoint 由登记的设备资源创建端点
func NewDeviceEndpoint(r *model.Resource) *ParticipantEndpoint {
	return &ParticipantEndpoint{
		id:           r.ID,
		technologies: r.Technologies,
		standalone:   r.IsStandalone(),
		count:        1,
		resourceID:   r.ID,
	}
}

// NewExternalEndpoint 创建外部端点（count 个使用相同技术的参与者）
func NewExternalEndpoint(id string, count int, techs ...model.Technology) *ParticipantEndpoint {
	if count < 1 {
		count = 1
	}
	return &ParticipantEndpoint{
		id:           id,
		technologies: model.NewTechnologies(techs...),
		count:        count,
	}
}

// NewStandaloneEndpoint 创建未登记的独立终端
func NewStandaloneEndpoint(id string, techs ...model.Technology) *ParticipantEndpoint {
	return &ParticipantEndpoint{
		id:           id,
		technologies: model.NewTechnologies(techs...),
		standalone:   true,
		count:        1,
	}
}

func (e *ParticipantEndpoint) ID() string                       { return e.id }
func (e *ParticipantEndpoint) Technologies() model.Technologies { return e.technologies }
func (e *ParticipantEndpoint) Standalone() bool                 { return e.standalone }
func (e *ParticipantEndpoint) Count() int                       { return e.count }
func (e *ParticipantEndpoint) ResourceID() string               { return e.resourceID }

// VirtualRoomEndpoint 方案中合成的虚拟会议室（占用设备的 PortCount 个端口）
type VirtualRoomEndpoint struct {
	Room      *model.Resource
	PortCount int
}

func (e *VirtualRoomEndpoint) ID() string { return e.Room.ID }

func (e *VirtualRoomEndpoint) Technologies() model.Technologies {
	return e.Room.VirtualRoomTechnologies()
}

func (e *VirtualRoomEndpoint) Standalone() bool   { return true }
func (e *VirtualRoomEndpoint) Count() int         { return 0 }
func (e *VirtualRoomEndpoint) ResourceID() string { return e.Room.ID }
