package scheduler

import (
	"fmt"

	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/shared/model"
)

// RoomFinder 可用会议室查询（由 availability.Database 实现）
type RoomFinder interface {
	FindAvailableVirtualRoomsByVariants(interval model.Interval, requiredPorts int, variants []model.Technologies) []availability.AvailableVirtualRoom
}

// Reachability 设备可达性查询（由 topology.Topology 实现）
type Reachability interface {
	CanReach(from, to string, technology model.Technology) bool
}

// Task 一次会议的调度任务
//
// Task 只读取可用性数据库，不做任何分配；不是并发安全的，
// 每个请求各自创建。
type Task struct {
	interval model.Interval
	rooms    RoomFinder
	topology Reachability
	cfg      *Config
	ranker   Ranker

	callInitiation CallInitiation
	endpoints      []Endpoint
	totalCount     int
	// connectivity 端点间可直接互通的技术（无向图）
	connectivity map[string]map[string]model.Technologies
}

// NewTask 创建调度任务，topo 为空时不检查拓扑可达性
func NewTask(interval model.Interval, rooms RoomFinder, topo Reachability, cfg *Config) *Task {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	t := &Task{
		interval: interval,
		rooms:    rooms,
		topology: topo,
		cfg:      cfg,
		ranker:   cfg.BuildRanker(),
	}
	t.Clear()
	return t
}

// Clear 清除已加入的端点
func (t *Task) Clear() {
	t.endpoints = nil
	t.totalCount = 0
	t.connectivity = make(map[string]map[string]model.Technologies)
	t.callInitiation = t.cfg.CallInitiation
}

// SetCallInitiation 覆盖本次任务的呼叫发起方
func (t *Task) SetCallInitiation(c CallInitiation) {
	t.callInitiation = c
}

// AddEndpoint 加入端点并更新连通图
func (t *Task) AddEndpoint(e Endpoint) {
	t.connectivity[e.ID()] = make(map[string]model.Technologies)
	for _, existing := range t.endpoints {
		common := e.Technologies().Intersect(existing.Technologies())
		if len(common) == 0 {
			continue
		}
		t.connectivity[e.ID()][existing.ID()] = common
		t.connectivity[existing.ID()][e.ID()] = common
	}
	t.endpoints = append(t.endpoints, e)
	t.totalCount += e.Count()
}

// AddEndpoints 批量加入端点
func (t *Task) AddEndpoints(endpoints ...Endpoint) {
	for _, e := range endpoints {
		t.AddEndpoint(e)
	}
}

// Endpoints 已加入的端点
func (t *Task) Endpoints() []Endpoint {
	return append([]Endpoint(nil), t.endpoints...)
}

// TotalCount 参与者总数
func (t *Task) TotalCount() int {
	return t.totalCount
}

// FindPlan 计算连接方案
//
// 参与者不足两个返回 ErrNotEnoughEndpoints；没有兼容的会议室返回
// ErrNoAvailableVirtualRoom；兼容的会议室端口都不够返回 ErrNotEnoughPorts。
func (t *Task) FindPlan() (*Plan, error) {
	if t.totalCount <= 1 {
		return nil, ErrNotEnoughEndpoints
	}
	if plan := t.findDirectPlan(); plan != nil {
		return plan, nil
	}
	return t.findVirtualRoomPlan()
}

// TechnologyVariants 能连接全部端点的技术组合
func (t *Task) TechnologyVariants() []model.Technologies {
	sets := make([]model.Technologies, len(t.endpoints))
	for i, e := range t.endpoints {
		sets[i] = e.Technologies()
	}
	return Interconnect(sets)
}

// findDirectPlan 恰好两个可以互通的独立终端时直接相连
func (t *Task) findDirectPlan() *Plan {
	if t.totalCount != 2 || len(t.endpoints) != 2 {
		return nil
	}
	for _, e := range t.endpoints {
		if !e.Standalone() {
			return nil
		}
	}

	from, to := t.endpoints[0], t.endpoints[1]
	common, ok := t.connectivity[from.ID()][to.ID()]
	if !ok {
		return nil
	}
	for _, tech := range common {
		switch {
		case t.reachable(from, to, tech):
		case t.reachable(to, from, tech):
			from, to = to, from
		default:
			continue
		}
		plan := &Plan{Interval: t.interval}
		plan.addEndpoint(from)
		plan.addEndpoint(to)
		plan.addConnection(from, to, tech)
		return plan
	}
	return nil
}

func (t *Task) findVirtualRoomPlan() (*Plan, error) {
	variants := t.TechnologyVariants()
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: endpoints share no technology", ErrNoAvailableVirtualRoom)
	}

	candidates := t.filterReachable(t.rooms.FindAvailableVirtualRoomsByVariants(t.interval, t.totalCount, variants))
	if len(candidates) == 0 {
		compatible := t.filterReachable(t.rooms.FindAvailableVirtualRoomsByVariants(t.interval, 0, variants))
		if len(compatible) > 0 {
			return nil, fmt.Errorf("%w: %d ports in %s for %v", ErrNotEnoughPorts, t.totalCount, t.interval, variants)
		}
		return nil, fmt.Errorf("%w: %s for %v", ErrNoAvailableVirtualRoom, t.interval, variants)
	}

	room := t.ranker.Rank(candidates)[0]
	vr := &VirtualRoomEndpoint{Room: room.Resource, PortCount: t.totalCount}

	plan := &Plan{Interval: t.interval, VirtualRoom: vr}
	plan.addEndpoint(vr)
	for _, e := range t.endpoints {
		plan.addEndpoint(e)
		tech, _ := t.connectionTechnology(vr, e)
		if t.callInitiation == CallInitiationTerminal && e.Standalone() {
			plan.addConnection(e, vr, tech)
		} else {
			plan.addConnection(vr, e, tech)
		}
	}
	return plan, nil
}

// filterReachable 只保留与每个登记设备端点都至少有一种技术可达的会议室
func (t *Task) filterReachable(rooms []availability.AvailableVirtualRoom) []availability.AvailableVirtualRoom {
	var result []availability.AvailableVirtualRoom
	for _, room := range rooms {
		vr := &VirtualRoomEndpoint{Room: room.Resource}
		ok := true
		for _, e := range t.endpoints {
			if _, found := t.connectionTechnology(vr, e); !found {
				ok = false
				break
			}
		}
		if ok {
			result = append(result, room)
		}
	}
	return result
}

// connectionTechnology 会议室与端点之间使用的技术
//
// 全部端点有唯一共同技术时使用它，否则按会议室的技术偏好顺序选择第一个端点支持且可达的技术。
func (t *Task) connectionTechnology(vr *VirtualRoomEndpoint, e Endpoint) (model.Technology, bool) {
	roomTechs := vr.Technologies()
	shared := roomTechs.Intersect(t.commonTechnologies())
	if len(shared) == 1 && t.roomReaches(vr, e, shared[0]) {
		return shared[0], true
	}
	for _, tech := range roomTechs.Intersect(e.Technologies()) {
		if t.roomReaches(vr, e, tech) {
			return tech, true
		}
	}
	return "", false
}

func (t *Task) roomReaches(vr *VirtualRoomEndpoint, e Endpoint, tech model.Technology) bool {
	if t.callInitiation == CallInitiationTerminal && e.Standalone() {
		return t.reachable(e, vr, tech)
	}
	return t.reachable(vr, e, tech)
}

// commonTechnologies 全部端点共同支持的技术
func (t *Task) commonTechnologies() model.Technologies {
	if len(t.endpoints) == 0 {
		return nil
	}
	common := t.endpoints[0].Technologies()
	for _, e := range t.endpoints[1:] {
		common = common.Intersect(e.Technologies())
	}
	return common
}

// reachable 拓扑检查：两端都是登记设备时要求拓扑可达，否则只要求技术匹配
func (t *Task) reachable(from, to Endpoint, tech model.Technology) bool {
	if !from.Technologies().Contains(tech) || !to.Technologies().Contains(tech) {
		return false
	}
	if t.topology == nil || from.ResourceID() == "" || to.ResourceID() == "" {
		return true
	}
	return t.topology.CanReach(from.ResourceID(), to.ResourceID(), tech)
}
