package scheduler

import "shongo-controller/internal/shared/model"

// Connection 两个端点之间的一次呼叫（From 发起）
type Connection struct {
	From       Endpoint
	To         Endpoint
	Technology model.Technology
}

// Plan 调度结果
type Plan struct {
	Interval    model.Interval
	Endpoints   []Endpoint
	Connections []Connection

	// VirtualRoom 方案使用的会议室，直连方案为 nil
	VirtualRoom *VirtualRoomEndpoint
}

// IsDirect 是否为不经会议室的直连方案
func (p *Plan) IsDirect() bool {
	return p.VirtualRoom == nil
}

// PortCount 方案占用的会议室端口数
func (p *Plan) PortCount() int {
	if p.VirtualRoom == nil {
		return 0
	}
	return p.VirtualRoom.PortCount
}

// Technologies 方案中使用到的全部技术
func (p *Plan) Technologies() model.Technologies {
	var ts model.Technologies
	for _, c := range p.Connections {
		ts = ts.Union(model.Technologies{c.Technology})
	}
	return ts
}

func (p *Plan) addEndpoint(e Endpoint) {
	p.Endpoints = append(p.Endpoints, e)
}

func (p *Plan) addConnection(from, to Endpoint, technology model.Technology) {
	p.Connections = append(p.Connections, Connection{From: from, To: to, Technology: technology})
}
