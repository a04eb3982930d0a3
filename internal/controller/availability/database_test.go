package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shongo-controller/internal/shared/model"
	"shongo-controller/pkg/logging"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// at 以分钟为单位的测试时间轴
func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func slot(start, end int) model.Interval {
	return model.NewInterval(at(start), at(end))
}

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	return NewDatabase(Options{Logger: logging.Discard()})
}

func mcu(id string, ports int, techs ...model.Technology) *model.Resource {
	return &model.Resource{
		ID:           id,
		Name:         id,
		Allocatable:  true,
		Address:      id + ".example.org",
		Technologies: model.NewTechnologies(techs...),
		Capabilities: []model.Capability{{Type: model.CapabilityVirtualRooms, PortCount: ports}},
	}
}

func alloc(id, resourceID string, s model.Interval, ports int) *model.AllocatedResource {
	return &model.AllocatedResource{ID: id, ResourceID: resourceID, ReservationID: "rsv-" + id, Slot: s, PortCount: ports}
}

// newMCUDatabase mcu1: 50 端口 H323+ADOBE_CONNECT，[1,100) 占 25；
// mcu2: 100 端口 SIP+ADOBE_CONNECT，[50,150) 占 50，[100,200) 占 30
func newMCUDatabase(t *testing.T) *Database {
	t.Helper()
	db := newTestDatabase(t)
	require.NoError(t, db.AddResource(mcu("mcu1", 50, model.TechnologyH323, model.TechnologyAdobeConnect)))
	require.NoError(t, db.AddResource(mcu("mcu2", 100, model.TechnologySIP, model.TechnologyAdobeConnect)))
	require.NoError(t, db.AddAllocatedResource(alloc("a1", "mcu1", slot(1, 100), 25)))
	require.NoError(t, db.AddAllocatedResource(alloc("a2", "mcu2", slot(50, 150), 50)))
	require.NoError(t, db.AddAllocatedResource(alloc("a3", "mcu2", slot(100, 200), 30)))
	return db
}

func roomIDs(rooms []AvailableVirtualRoom) []string {
	ids := make([]string, len(rooms))
	for i, r := range rooms {
		ids[i] = r.Resource.ID
	}
	return ids
}

func TestDatabase_FindAvailableVirtualRooms(t *testing.T) {
	db := newMCUDatabase(t)

	tests := []struct {
		name     string
		interval model.Interval
		ports    int
		techs    model.Technologies
		want     []string
	}{
		{"空闲时段两台都满足", slot(0, 1), 50, nil, []string{"mcu2", "mcu1"}},
		{"mcu1 端口不足", slot(50, 100), 50, nil, []string{"mcu2"}},
		{"H323+AC 只有 mcu1", slot(100, 149), 10, model.Technologies{model.TechnologyH323, model.TechnologyAdobeConnect}, []string{"mcu1"}},
		{"SIP+AC 只有 mcu2", slot(100, 149), 10, model.Technologies{model.TechnologySIP, model.TechnologyAdobeConnect}, []string{"mcu2"}},
		{"AC 按可用端口排序", slot(100, 149), 10, model.Technologies{model.TechnologyAdobeConnect}, []string{"mcu1", "mcu2"}},
		{"AC 需要 21 端口", slot(100, 149), 21, model.Technologies{model.TechnologyAdobeConnect}, []string{"mcu1"}},
		{"未知技术", slot(0, 1), 1, model.Technologies{model.TechnologyRTMP}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms := db.FindAvailableVirtualRooms(tt.interval, tt.ports, tt.techs)
			assert.Equal(t, tt.want, roomIDs(rooms))
		})
	}

	rooms := db.FindAvailableVirtualRooms(slot(100, 149), 10, model.Technologies{model.TechnologyAdobeConnect})
	require.Len(t, rooms, 2)
	assert.Equal(t, 50, rooms[0].AvailablePorts)
	assert.Equal(t, 20, rooms[1].AvailablePorts)
	assert.InDelta(t, 0.8, rooms[1].FullnessRatio(), 1e-9)
}

func TestDatabase_FindByVariants(t *testing.T) {
	db := newMCUDatabase(t)

	rooms := db.FindAvailableVirtualRoomsByVariants(slot(100, 149), 10, []model.Technologies{
		{model.TechnologyH323},
		{model.TechnologySIP},
		{model.TechnologyAdobeConnect},
	})
	assert.Equal(t, []string{"mcu1", "mcu2"}, roomIDs(rooms), "按设备去重")

	all := db.FindAvailableVirtualRoomsByVariants(slot(100, 149), 0, nil)
	assert.Len(t, all, 2)
}

func TestDatabase_NonAllocatableRoomSkipped(t *testing.T) {
	db := newMCUDatabase(t)
	r, ok := db.GetResource("mcu1")
	require.True(t, ok)
	r.Allocatable = false
	require.NoError(t, db.UpdateResource(r))

	assert.Equal(t, []string{"mcu2"}, roomIDs(db.FindAvailableVirtualRooms(slot(0, 1), 1, nil)))
}

func TestDatabase_RemoveAllocatedResource(t *testing.T) {
	db := newMCUDatabase(t)

	require.NoError(t, db.RemoveAllocatedResource("a1"))
	assert.Empty(t, db.GetAllocatedResources("mcu1", slot(0, 200)))

	err := db.RemoveAllocatedResource("a1")
	assert.ErrorIs(t, err, ErrUnknownAllocation)
	assert.Equal(t, 2, db.Stats().Allocations)
}

func TestDatabase_AddAllocatedResourceErrors(t *testing.T) {
	db := newMCUDatabase(t)

	err := db.AddAllocatedResource(alloc("x", "missing", slot(0, 10), 1))
	assert.ErrorIs(t, err, ErrResourceNotMaintained)

	err = db.AddAllocatedResource(alloc("a1", "mcu1", slot(0, 10), 1))
	assert.ErrorIs(t, err, ErrDuplicateAllocation)
}

func TestDatabase_GetAllocatedResources(t *testing.T) {
	db := newMCUDatabase(t)

	got := db.GetAllocatedResources("mcu2", slot(120, 130))
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].ID)
	assert.Equal(t, "a3", got[1].ID)

	assert.Len(t, db.GetAllocatedResources("mcu2", slot(150, 151)), 1)
	assert.Empty(t, db.GetAllocatedResources("mcu2", slot(200, 300)))
}

func TestDatabase_TryAllocatePorts(t *testing.T) {
	db := newMCUDatabase(t)

	err := db.TryAllocate(alloc("n1", "mcu1", slot(10, 20), 26))
	assert.ErrorIs(t, err, ErrNotEnoughPorts)
	assert.True(t, IsCapacityError(err))
	_, ok := db.GetAllocatedResource("n1")
	assert.False(t, ok, "失败的分配不留下记录")

	require.NoError(t, db.TryAllocate(alloc("n1", "mcu1", slot(10, 20), 25)))
	assert.Empty(t, db.FindAvailableVirtualRooms(slot(10, 20), 1, model.Technologies{model.TechnologyH323}))
}

func TestDatabase_TryAllocateReplacing(t *testing.T) {
	db := newMCUDatabase(t)

	// 修改 a1：旧分配被临时移除后 50 端口足够
	require.NoError(t, db.TryAllocate(alloc("a1v2", "mcu1", slot(1, 100), 50), "a1"))
	_, ok := db.GetAllocatedResource("a1")
	assert.False(t, ok)

	// 失败时旧分配恢复
	err := db.TryAllocate(alloc("a1v3", "mcu1", slot(1, 100), 51), "a1v2")
	assert.ErrorIs(t, err, ErrNotEnoughPorts)
	_, ok = db.GetAllocatedResource("a1v2")
	assert.True(t, ok)

	err = db.TryAllocate(alloc("a1v4", "mcu1", slot(1, 100), 1), "nope")
	assert.ErrorIs(t, err, ErrUnknownAllocation)

	// 区间颠倒：拒绝且旧分配保留
	err = db.TryAllocate(alloc("a1v5", "mcu1", slot(20, 10), 5), "a1v2")
	assert.Error(t, err)
	_, ok = db.GetAllocatedResource("a1v2")
	assert.True(t, ok)
	_, ok = db.GetAllocatedResource("a1v5")
	assert.False(t, ok)
	assert.Len(t, db.GetAllocatedResources("mcu1", slot(1, 100)), 1)
}

func TestDatabase_RoomOrderPrefersTechnologyCoverage(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, db.AddResource(mcu("wide", 10, model.TechnologyH323, model.TechnologySIP, model.TechnologyAdobeConnect)))
	require.NoError(t, db.AddResource(mcu("narrow", 50, model.TechnologyAdobeConnect)))
	require.NoError(t, db.AddResource(mcu("narrow2", 30, model.TechnologyAdobeConnect)))

	rooms := db.FindAvailableVirtualRooms(slot(0, 10), 2, model.Technologies{model.TechnologyAdobeConnect})
	assert.Equal(t, []string{"wide", "narrow", "narrow2"}, roomIDs(rooms), "技术覆盖优先，相同覆盖时按可用端口")
}

func TestDatabase_ExclusiveResources(t *testing.T) {
	db := newTestDatabase(t)
	room := &model.Resource{ID: "room", Name: "meeting room", Allocatable: true}
	term := &model.Resource{
		ID: "term", Name: "terminal", ParentID: "room", Allocatable: true,
		Technologies: model.Technologies{model.TechnologyH323},
		Capabilities: []model.Capability{{Type: model.CapabilityStandaloneTerminal}},
	}
	require.NoError(t, db.AddResource(room))
	require.NoError(t, db.AddResource(term))

	require.NoError(t, db.TryAllocate(alloc("r1", "room", slot(0, 60), 0)))
	assert.False(t, db.IsResourceAvailable("room", slot(30, 90)))
	assert.False(t, db.IsResourceAvailable("term", slot(30, 90)), "父资源被独占")
	assert.True(t, db.IsResourceAvailable("term", slot(60, 90)))
	assert.Empty(t, db.FindAvailableTerminals(slot(30, 90), model.Technologies{model.TechnologyH323}))

	terms := db.FindAvailableTerminals(slot(60, 90), model.Technologies{model.TechnologyH323})
	require.Len(t, terms, 1)
	assert.Equal(t, "term", terms[0].ID)

	err := db.TryAllocate(alloc("r2", "room", slot(59, 61), 0))
	assert.ErrorIs(t, err, ErrResourceNotAvailable)

	require.NoError(t, db.TryAllocate(alloc("t1", "term", slot(100, 110), 0)))
	assert.False(t, db.IsResourceAvailable("room", slot(105, 106)), "子资源被独占")
}

func TestDatabase_ResourceLifecycle(t *testing.T) {
	db := newMCUDatabase(t)

	assert.ErrorIs(t, db.AddResource(mcu("mcu1", 10, model.TechnologySIP)), ErrDuplicateResource)
	assert.ErrorIs(t, db.RemoveResource("mcu1"), ErrResourceInUse)
	assert.ErrorIs(t, db.UpdateResource(mcu("zzz", 10, model.TechnologySIP)), ErrResourceNotMaintained)

	require.NoError(t, db.RemoveAllocatedResource("a1"))
	require.NoError(t, db.RemoveResource("mcu1"))
	_, ok := db.GetResource("mcu1")
	assert.False(t, ok)
	_, ok = db.Topology().Node("mcu1")
	assert.False(t, ok, "拓扑同步删除")

	// 更新技术后索引随之变化
	require.NoError(t, db.UpdateResource(mcu("mcu2", 100, model.TechnologyH323)))
	assert.Empty(t, db.FindAvailableVirtualRooms(slot(0, 1), 1, model.Technologies{model.TechnologySIP}))
	assert.Len(t, db.FindAvailableVirtualRooms(slot(0, 1), 1, model.Technologies{model.TechnologyH323}), 1)
	assert.Len(t, db.GetAllocatedResources("mcu2", slot(0, 300)), 2, "更新保留分配")

	db.Clear()
	assert.Empty(t, db.Resources())
	assert.Empty(t, db.Topology().Nodes())
}

func TestDatabase_WorkingInterval(t *testing.T) {
	db := NewDatabase(Options{MaxDeviceAllocationDuration: time.Hour, Logger: logging.Discard()})

	_, ok := db.LoadWindow()
	assert.False(t, ok)

	db.SetWorkingInterval(slot(600, 1200))
	window, ok := db.LoadWindow()
	require.True(t, ok)
	assert.True(t, window.Start.Equal(at(540)))
	assert.True(t, window.End.Equal(at(1260)))
}
