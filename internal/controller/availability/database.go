// Package availability 资源可用性数据库
//
// Database 在内存中维护资源目录和每个资源的分配区间索引，回答
// "某时间段内哪些多点会议设备还有足够端口"以及"某资源是否空闲"。
// 启动时由 booking 服务从存储加载工作区间内的分配记录，此后所有
// 分配变化都先经过 Database 校验再持久化。
//
// 所有方法并发安全：查询持读锁，变更持写锁。
package availability

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"shongo-controller/internal/controller/topology"
	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/rangeset"
	"shongo-controller/pkg/logging"
)

// DefaultMaxDeviceAllocationDuration 单次设备分配的最大时长，用于扩展加载窗口
const DefaultMaxDeviceAllocationDuration = 24 * time.Hour

// Options 数据库选项
type Options struct {
	// MaxDeviceAllocationDuration 加载窗口在工作区间两端的扩展量
	MaxDeviceAllocationDuration time.Duration
	// Topology 设备拓扑，为空时创建新的拓扑
	Topology *topology.Topology
	Logger   *logging.Logger
}

// AvailableVirtualRoom 可用的多点会议设备
type AvailableVirtualRoom struct {
	Resource       *model.Resource `json:"resource"`
	MaxPorts       int             `json:"max_ports"`
	AvailablePorts int             `json:"available_ports"`
}

// FullnessRatio 已占用端口比例 [0, 1]
func (r AvailableVirtualRoom) FullnessRatio() float64 {
	if r.MaxPorts <= 0 {
		return 1
	}
	used := r.MaxPorts - r.AvailablePorts
	if used < 0 {
		used = 0
	}
	return float64(used) / float64(r.MaxPorts)
}

// Stats 数据库统计
type Stats struct {
	Resources    int `json:"resources"`
	VirtualRooms int `json:"virtual_rooms"`
	Allocations  int `json:"allocations"`
}

// resourceState 单个资源的分配状态
type resourceState struct {
	index       *rangeset.Set[time.Time, string]
	allocations map[string]*model.AllocatedResource
}

func newResourceState() *resourceState {
	return &resourceState{
		index:       rangeset.NewTime[string](),
		allocations: make(map[string]*model.AllocatedResource),
	}
}

// Database 资源可用性数据库
type Database struct {
	mu sync.RWMutex

	resources   map[string]*model.Resource
	children    map[string]map[string]struct{}
	states      map[string]*resourceState
	allocations map[string]*model.AllocatedResource

	// 能力索引
	byCapability   map[model.CapabilityType]map[string]struct{}
	roomTechnology map[model.Technology]map[string]struct{}

	topology        *topology.Topology
	workingInterval *model.Interval
	maxDuration     time.Duration
	logger          *logging.Logger
}

// NewDatabase 创建空数据库
func NewDatabase(opts Options) *Database {
	if opts.MaxDeviceAllocationDuration <= 0 {
		opts.MaxDeviceAllocationDuration = DefaultMaxDeviceAllocationDuration
	}
	if opts.Topology == nil {
		opts.Topology = topology.New()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default("availability")
	}
	db := &Database{
		topology:    opts.Topology,
		maxDuration: opts.MaxDeviceAllocationDuration,
		logger:      opts.Logger,
	}
	db.reset()
	return db
}

func (db *Database) reset() {
	db.resources = make(map[string]*model.Resource)
	db.children = make(map[string]map[string]struct{})
	db.states = make(map[string]*resourceState)
	db.allocations = make(map[string]*model.AllocatedResource)
	db.byCapability = make(map[model.CapabilityType]map[string]struct{})
	db.roomTechnology = make(map[model.Technology]map[string]struct{})
}

// Topology 设备拓扑
func (db *Database) Topology() *topology.Topology {
	return db.topology
}

// ============================================================================
// 工作区间
// ============================================================================

// SetWorkingInterval 设置工作区间（只有与之重叠的分配需要常驻内存）
func (db *Database) SetWorkingInterval(interval model.Interval) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.workingInterval = &interval
}

// WorkingInterval 当前工作区间
func (db *Database) WorkingInterval() (model.Interval, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.workingInterval == nil {
		return model.Interval{}, false
	}
	return *db.workingInterval, true
}

// LoadWindow 从存储加载分配时使用的窗口：工作区间两端各扩展最大分配时长
func (db *Database) LoadWindow() (model.Interval, bool) {
	interval, ok := db.WorkingInterval()
	if !ok {
		return model.Interval{}, false
	}
	return interval.Extend(db.maxDuration), true
}

// Clear 清空资源和分配（拓扑同步清空）
func (db *Database) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	for id := range db.resources {
		db.topology.RemoveDeviceResource(id)
	}
	db.reset()
}

// Stats 返回统计信息
func (db *Database) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return Stats{
		Resources:    len(db.resources),
		VirtualRooms: len(db.byCapability[model.CapabilityVirtualRooms]),
		Allocations:  len(db.allocations),
	}
}

// ============================================================================
// 资源目录
// ============================================================================

// AddResource 加入资源
func (db *Database) AddResource(r *model.Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.resources[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, r.ID)
	}
	r = r.Clone()
	db.resources[r.ID] = r
	db.states[r.ID] = newResourceState()
	db.indexLocked(r)
	if r.IsDevice() {
		if err := db.topology.AddDeviceResource(r); err != nil {
			db.logger.WithResource(r.ID).WithError(err).Warn("Topology add failed")
		}
	}
	return nil
}

// UpdateResource 更新资源，保留已有的分配记录
func (db *Database) UpdateResource(r *model.Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	old, ok := db.resources[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotMaintained, r.ID)
	}
	db.unindexLocked(old)
	r = r.Clone()
	db.resources[r.ID] = r
	db.indexLocked(r)
	db.topology.UpdateDeviceResource(r)
	return nil
}

// RemoveResource 删除资源，仍有分配记录时返回 ErrResourceInUse
func (db *Database) RemoveResource(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	r, ok := db.resources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotMaintained, id)
	}
	if n := len(db.states[id].allocations); n > 0 {
		return fmt.Errorf("%w: %s (%d allocations)", ErrResourceInUse, id, n)
	}
	db.unindexLocked(r)
	delete(db.resources, id)
	delete(db.states, id)
	db.topology.RemoveDeviceResource(id)
	return nil
}

// GetResource 返回资源副本
func (db *Database) GetResource(id string) (*model.Resource, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.resources[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Resources 按 ID 排序的全部资源副本
func (db *Database) Resources() []*model.Resource {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make([]*model.Resource, 0, len(db.resources))
	for _, r := range db.resources {
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (db *Database) indexLocked(r *model.Resource) {
	if r.ParentID != "" {
		if db.children[r.ParentID] == nil {
			db.children[r.ParentID] = make(map[string]struct{})
		}
		db.children[r.ParentID][r.ID] = struct{}{}
	}
	for _, c := range r.Capabilities {
		addToIndex(db.byCapability, c.Type, r.ID)
	}
	if r.HasCapability(model.CapabilityVirtualRooms) {
		for _, t := range r.VirtualRoomTechnologies() {
			addToIndex(db.roomTechnology, t, r.ID)
		}
	}
}

func (db *Database) unindexLocked(r *model.Resource) {
	if r.ParentID != "" {
		delete(db.children[r.ParentID], r.ID)
	}
	for _, c := range r.Capabilities {
		removeFromIndex(db.byCapability, c.Type, r.ID)
	}
	for _, t := range r.VirtualRoomTechnologies() {
		removeFromIndex(db.roomTechnology, t, r.ID)
	}
}

func addToIndex[K comparable](index map[K]map[string]struct{}, key K, id string) {
	if index[key] == nil {
		index[key] = make(map[string]struct{})
	}
	index[key][id] = struct{}{}
}

func removeFromIndex[K comparable](index map[K]map[string]struct{}, key K, id string) {
	delete(index[key], id)
	if len(index[key]) == 0 {
		delete(index, key)
	}
}

// ============================================================================
// 分配记录
// ============================================================================

// AddAllocatedResource 登记分配记录（不做容量校验，用于从存储重建）
func (db *Database) AddAllocatedResource(a *model.AllocatedResource) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.addAllocationLocked(a)
}

// RemoveAllocatedResource 删除分配记录
//
// 未知 ID 说明调用方状态与数据库不一致，记录错误日志并返回 ErrUnknownAllocation。
func (db *Database) RemoveAllocatedResource(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.allocations[id]; !ok {
		db.logger.Error("Remove of unknown allocated resource", "allocation_id", id)
		return fmt.Errorf("%w: %s", ErrUnknownAllocation, id)
	}
	db.removeAllocationLocked(id)
	return nil
}

// GetAllocatedResources 资源在区间内的分配记录，按开始时间排序
func (db *Database) GetAllocatedResources(resourceID string, interval model.Interval) []*model.AllocatedResource {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := db.overlappingLocked(resourceID, interval)
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Slot.Start.Equal(result[j].Slot.Start) {
			return result[i].Slot.Start.Before(result[j].Slot.Start)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// GetAllocatedResource 按 ID 查询分配记录
func (db *Database) GetAllocatedResource(id string) (*model.AllocatedResource, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	a, ok := db.allocations[id]
	if !ok {
		return nil, false
	}
	c := *a
	return &c, true
}

// TryAllocate 校验容量并登记分配，整个过程持有写锁
//
// replacing 中的分配记录（修改预约时的旧分配）在校验期间被临时移除，
// 校验失败时恢复，成功时被新分配取代。失败时数据库状态不变。
func (db *Database) TryAllocate(a *model.AllocatedResource, replacing ...string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	r, ok := db.resources[a.ResourceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotMaintained, a.ResourceID)
	}
	if _, ok := db.allocations[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAllocation, a.ID)
	}
	for _, id := range replacing {
		if _, ok := db.allocations[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAllocation, id)
		}
	}

	if err := a.Slot.Validate(); err != nil {
		return fmt.Errorf("invalid allocation slot: %w", err)
	}

	lifted := make([]*model.AllocatedResource, 0, len(replacing))
	for _, id := range replacing {
		lifted = append(lifted, db.allocations[id])
		db.removeAllocationLocked(id)
	}

	err := db.checkLocked(r, a)
	if err == nil {
		err = db.addAllocationLocked(a)
	}
	if err != nil {
		db.restoreLocked(lifted)
		return err
	}
	return nil
}

// restoreLocked 把临时移除的分配放回索引
func (db *Database) restoreLocked(lifted []*model.AllocatedResource) {
	for _, old := range lifted {
		if err := db.addAllocationLocked(old); err != nil {
			db.logger.WithError(err).Error("Restore of lifted allocation failed", "allocation_id", old.ID)
		}
	}
}

func (db *Database) checkLocked(r *model.Resource, a *model.AllocatedResource) error {
	if !r.Allocatable {
		return fmt.Errorf("%w: %s is not allocatable", ErrResourceNotAvailable, r.ID)
	}
	if !a.IsVirtualRoom() {
		if !db.isAvailableLocked(r.ID, a.Slot) {
			return fmt.Errorf("%w: %s in %s", ErrResourceNotAvailable, r.ID, a.Slot)
		}
		return nil
	}
	if !r.HasCapability(model.CapabilityVirtualRooms) {
		return fmt.Errorf("%w: %s has no virtual rooms", ErrResourceNotAvailable, r.ID)
	}
	available := r.PortCount() - db.usedPortsLocked(r.ID, a.Slot)
	if available < a.PortCount {
		return fmt.Errorf("%w: %s has %d of %d requested in %s", ErrNotEnoughPorts, r.ID, available, a.PortCount, a.Slot)
	}
	return nil
}

func (db *Database) addAllocationLocked(a *model.AllocatedResource) error {
	state, ok := db.states[a.ResourceID]
	if !ok {
		db.logger.Error("Allocation for resource which is not maintained",
			"allocation_id", a.ID, "resource_id", a.ResourceID)
		return fmt.Errorf("%w: %s", ErrResourceNotMaintained, a.ResourceID)
	}
	if _, ok := db.allocations[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAllocation, a.ID)
	}
	c := *a
	if !state.index.Add(c.ID, c.Slot.Start, c.Slot.End) {
		return fmt.Errorf("invalid allocation slot %s", c.Slot)
	}
	state.allocations[c.ID] = &c
	db.allocations[c.ID] = &c
	return nil
}

func (db *Database) removeAllocationLocked(id string) {
	a := db.allocations[id]
	delete(db.allocations, id)
	if state, ok := db.states[a.ResourceID]; ok {
		state.index.Remove(id)
		delete(state.allocations, id)
	}
}

func (db *Database) overlappingLocked(resourceID string, interval model.Interval) []*model.AllocatedResource {
	state, ok := db.states[resourceID]
	if !ok {
		return nil
	}
	ids := state.index.Values(interval.Start, interval.End)
	result := make([]*model.AllocatedResource, 0, len(ids))
	for _, id := range ids {
		c := *state.allocations[id]
		result = append(result, &c)
	}
	return result
}

func (db *Database) usedPortsLocked(resourceID string, interval model.Interval) int {
	used := 0
	for _, a := range db.overlappingLocked(resourceID, interval) {
		used += a.PortCount
	}
	return used
}

// ============================================================================
// 可用性查询
// ============================================================================

// IsResourceAvailable 资源在区间内是否可独占
//
// 要求资源可分配、自身在区间内没有任何分配，且祖先和后代资源没有独占分配。
func (db *Database) IsResourceAvailable(id string, interval model.Interval) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	r, ok := db.resources[id]
	if !ok || !r.Allocatable {
		return false
	}
	return db.isAvailableLocked(id, interval)
}

func (db *Database) isAvailableLocked(id string, interval model.Interval) bool {
	if len(db.overlappingLocked(id, interval)) > 0 {
		return false
	}
	exclusive := func(rid string) bool {
		for _, a := range db.overlappingLocked(rid, interval) {
			if !a.IsVirtualRoom() {
				return true
			}
		}
		return false
	}

	visited := map[string]bool{id: true}
	for parent := db.resources[id].ParentID; parent != "" && !visited[parent]; {
		visited[parent] = true
		if exclusive(parent) {
			return false
		}
		p, ok := db.resources[parent]
		if !ok {
			break
		}
		parent = p.ParentID
	}

	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for child := range db.children[current] {
			if visited[child] {
				continue
			}
			visited[child] = true
			if exclusive(child) {
				return false
			}
			stack = append(stack, child)
		}
	}
	return true
}

// FindAvailableVirtualRooms 区间内支持全部 technologies 且可用端口不少于 requiredPorts 的设备
//
// technologies 为空表示不限技术；requiredPorts 为 0 时返回全部兼容设备（包括已满的）。
// 结果按可用端口降序，其次按支持技术数降序，最后按资源 ID 排序。
func (db *Database) FindAvailableVirtualRooms(interval model.Interval, requiredPorts int, technologies model.Technologies) []AvailableVirtualRoom {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rooms := db.findRoomsLocked(interval, requiredPorts, technologies, nil)
	sortRooms(rooms)
	return rooms
}

// FindAvailableVirtualRoomsByVariants 满足任一技术组合的可用设备（按设备去重）
func (db *Database) FindAvailableVirtualRoomsByVariants(interval model.Interval, requiredPorts int, variants []model.Technologies) []AvailableVirtualRoom {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if len(variants) == 0 {
		variants = []model.Technologies{nil}
	}
	seen := make(map[string]bool)
	var rooms []AvailableVirtualRoom
	for _, variant := range variants {
		rooms = append(rooms, db.findRoomsLocked(interval, requiredPorts, variant, seen)...)
	}
	sortRooms(rooms)
	return rooms
}

func (db *Database) findRoomsLocked(interval model.Interval, requiredPorts int, technologies model.Technologies, seen map[string]bool) []AvailableVirtualRoom {
	var rooms []AvailableVirtualRoom
	for _, id := range db.roomCandidatesLocked(technologies) {
		if seen[id] {
			continue
		}
		r := db.resources[id]
		if !r.Allocatable {
			continue
		}
		maxPorts := r.PortCount()
		available := maxPorts - db.usedPortsLocked(id, interval)
		if available < 0 {
			available = 0
		}
		if available < requiredPorts {
			continue
		}
		if seen != nil {
			seen[id] = true
		}
		rooms = append(rooms, AvailableVirtualRoom{
			Resource:       r.Clone(),
			MaxPorts:       maxPorts,
			AvailablePorts: available,
		})
	}
	return rooms
}

// roomCandidatesLocked 支持全部 technologies 的多点会议设备 ID
func (db *Database) roomCandidatesLocked(technologies model.Technologies) []string {
	var candidates map[string]struct{}
	if len(technologies) == 0 {
		candidates = db.byCapability[model.CapabilityVirtualRooms]
	} else {
		for i, t := range technologies {
			ids := db.roomTechnology[t]
			if i == 0 {
				candidates = make(map[string]struct{}, len(ids))
				for id := range ids {
					candidates[id] = struct{}{}
				}
				continue
			}
			for id := range candidates {
				if _, ok := ids[id]; !ok {
					delete(candidates, id)
				}
			}
		}
	}
	result := make([]string, 0, len(candidates))
	for id := range candidates {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// sortRooms 支持技术多的优先，其次可用端口多的优先
func sortRooms(rooms []AvailableVirtualRoom) {
	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := rooms[i], rooms[j]
		ta, tb := len(a.Resource.VirtualRoomTechnologies()), len(b.Resource.VirtualRoomTechnologies())
		if ta != tb {
			return ta > tb
		}
		if a.AvailablePorts != b.AvailablePorts {
			return a.AvailablePorts > b.AvailablePorts
		}
		return a.Resource.ID < b.Resource.ID
	})
}

// FindAvailableTerminals 区间内空闲且支持全部 technologies 的独立终端
func (db *Database) FindAvailableTerminals(interval model.Interval, technologies model.Technologies) []*model.Resource {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var result []*model.Resource
	for id := range db.byCapability[model.CapabilityStandaloneTerminal] {
		r := db.resources[id]
		if !r.Allocatable || !r.Technologies.ContainsAll(technologies) {
			continue
		}
		if !db.isAvailableLocked(id, interval) {
			continue
		}
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
