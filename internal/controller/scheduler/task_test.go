package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/shared/model"
	"shongo-controller/pkg/logging"
)

var testInterval = model.NewInterval(
	time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC),
	time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC),
)

func newTestDatabase(t *testing.T, resources ...*model.Resource) *availability.Database {
	t.Helper()
	db := availability.NewDatabase(availability.Options{Logger: logging.Discard()})
	for _, r := range resources {
		require.NoError(t, db.AddResource(r))
	}
	return db
}

func newMCU(id string, ports int, techs ...model.Technology) *model.Resource {
	return &model.Resource{
		ID:           id,
		Name:         id,
		Allocatable:  true,
		Address:      id + ".example.org",
		Technologies: model.NewTechnologies(techs...),
		Capabilities: []model.Capability{{Type: model.CapabilityVirtualRooms, PortCount: ports}},
	}
}

func newTask(db *availability.Database, cfg *Config) *Task {
	return NewTask(testInterval, db, db.Topology(), cfg)
}

func TestTask_NotEnoughEndpoints(t *testing.T) {
	task := newTask(newTestDatabase(t), nil)

	_, err := task.FindPlan()
	assert.ErrorIs(t, err, ErrNotEnoughEndpoints)

	task.AddEndpoint(NewExternalEndpoint("h323", 1, model.TechnologyH323))
	plan, err := task.FindPlan()
	assert.ErrorIs(t, err, ErrNotEnoughEndpoints)
	assert.Nil(t, plan, "不能返回只有一个端点的方案")
}

func TestTask_DirectPlan(t *testing.T) {
	task := newTask(newTestDatabase(t), nil)
	task.AddEndpoints(
		NewStandaloneEndpoint("a", model.TechnologyH323),
		NewStandaloneEndpoint("b", model.TechnologyH323, model.TechnologySIP),
	)

	plan, err := task.FindPlan()
	require.NoError(t, err)
	assert.True(t, plan.IsDirect())
	assert.Len(t, plan.Endpoints, 2)
	require.Len(t, plan.Connections, 1)
	assert.Equal(t, model.TechnologyH323, plan.Connections[0].Technology)
	assert.Equal(t, 0, plan.PortCount())
}

func TestTask_Failures(t *testing.T) {
	tests := []struct {
		name      string
		resources []*model.Resource
		endpoints []Endpoint
		wantErr   error
	}{
		{
			name: "没有共同技术且没有会议室",
			endpoints: []Endpoint{
				NewStandaloneEndpoint("a", model.TechnologyH323),
				NewStandaloneEndpoint("b", model.TechnologySIP),
			},
			wantErr: ErrNoAvailableVirtualRoom,
		},
		{
			name: "非独立终端需要会议室",
			endpoints: []Endpoint{
				NewExternalEndpoint("a", 1, model.TechnologyH323),
				NewExternalEndpoint("b", 1, model.TechnologyH323),
			},
			wantErr: ErrNoAvailableVirtualRoom,
		},
		{
			name:      "会议室技术不兼容",
			resources: []*model.Resource{newMCU("mcu", 100, model.TechnologySIP)},
			endpoints: []Endpoint{
				NewExternalEndpoint("a", 3, model.TechnologyH323),
			},
			wantErr: ErrNoAvailableVirtualRoom,
		},
		{
			name:      "端点没有任何技术",
			resources: []*model.Resource{newMCU("mcu", 100, model.TechnologySIP)},
			endpoints: []Endpoint{
				NewExternalEndpoint("a", 2),
			},
			wantErr: ErrNoAvailableVirtualRoom,
		},
		{
			name:      "兼容会议室端口不足",
			resources: []*model.Resource{newMCU("mcu", 40, model.TechnologyH323)},
			endpoints: []Endpoint{
				NewExternalEndpoint("ext", 50, model.TechnologyH323),
			},
			wantErr: ErrNotEnoughPorts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newTask(newTestDatabase(t, tt.resources...), nil)
			task.AddEndpoints(tt.endpoints...)

			plan, err := task.FindPlan()
			assert.Nil(t, plan)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTask_ErrorKindsAreDistinguishable(t *testing.T) {
	assert.False(t, errors.Is(ErrNotEnoughPorts, ErrNoAvailableVirtualRoom))
	assert.True(t, errors.Is(ErrNotEnoughPorts, availability.ErrNotEnoughPorts))
	assert.True(t, IsCapacityError(ErrNotEnoughPorts))
	assert.False(t, IsCapacityError(ErrNoAvailableVirtualRoom))
}

func TestTask_SingleVirtualRoom(t *testing.T) {
	db := newTestDatabase(t, newMCU("mcu", 100, model.TechnologyH323, model.TechnologySIP))

	t.Run("一个独立终端和一个普通端点", func(t *testing.T) {
		task := newTask(db, nil)
		task.AddEndpoints(
			NewExternalEndpoint("a", 1, model.TechnologyH323),
			NewStandaloneEndpoint("b", model.TechnologyH323),
		)
		plan, err := task.FindPlan()
		require.NoError(t, err)
		assert.False(t, plan.IsDirect())
		assert.Len(t, plan.Endpoints, 3)
		assert.Len(t, plan.Connections, 2)
		assert.Equal(t, "mcu", plan.VirtualRoom.Room.ID)
		assert.Equal(t, 2, plan.PortCount())
	})

	t.Run("不同技术经会议室互通", func(t *testing.T) {
		task := newTask(db, nil)
		task.AddEndpoints(
			NewStandaloneEndpoint("a", model.TechnologyH323),
			NewStandaloneEndpoint("b", model.TechnologySIP),
		)
		plan, err := task.FindPlan()
		require.NoError(t, err)
		require.Len(t, plan.Connections, 2)
		assert.Equal(t, model.TechnologyH323, plan.Connections[0].Technology)
		assert.Equal(t, model.TechnologySIP, plan.Connections[1].Technology)
		assert.ElementsMatch(t, model.Technologies{model.TechnologyH323, model.TechnologySIP}, plan.Technologies())
		for _, c := range plan.Connections {
			assert.Equal(t, "mcu", c.From.ID(), "默认由会议室发起呼叫")
		}
	})

	t.Run("多个外部端点计入端口", func(t *testing.T) {
		task := newTask(db, nil)
		task.AddEndpoints(
			NewExternalEndpoint("ext", 50, model.TechnologyH323),
			NewStandaloneEndpoint("term", model.TechnologyH323),
		)
		plan, err := task.FindPlan()
		require.NoError(t, err)
		assert.Equal(t, 51, plan.PortCount())
		assert.Equal(t, 51, task.TotalCount())
	})
}

func TestTask_PortsAlreadyBooked(t *testing.T) {
	db := newTestDatabase(t, newMCU("mcu", 10, model.TechnologyH323))
	require.NoError(t, db.AddAllocatedResource(&model.AllocatedResource{
		ID: "a1", ResourceID: "mcu", ReservationID: "r1", Slot: testInterval, PortCount: 9,
	}))

	task := newTask(db, nil)
	task.AddEndpoint(NewExternalEndpoint("ext", 2, model.TechnologyH323))
	_, err := task.FindPlan()
	assert.ErrorIs(t, err, ErrNotEnoughPorts)
}

func TestTask_TopologyAndCallInitiation(t *testing.T) {
	term := &model.Resource{
		ID:           "term",
		Name:         "term",
		Allocatable:  true,
		Technologies: model.Technologies{model.TechnologyH323},
		Capabilities: []model.Capability{{Type: model.CapabilityStandaloneTerminal}},
	}
	db := newTestDatabase(t, newMCU("mcu", 10, model.TechnologyH323), term)

	task := newTask(db, nil)
	task.AddEndpoints(NewDeviceEndpoint(term), NewExternalEndpoint("ext", 2, model.TechnologyH323))
	_, err := task.FindPlan()
	assert.ErrorIs(t, err, ErrNoAvailableVirtualRoom, "终端没有地址和别名，会议室无法呼叫")

	task.Clear()
	task.SetCallInitiation(CallInitiationTerminal)
	task.AddEndpoints(NewDeviceEndpoint(term), NewExternalEndpoint("ext", 2, model.TechnologyH323))
	plan, err := task.FindPlan()
	require.NoError(t, err)
	require.Len(t, plan.Connections, 2)
	assert.Equal(t, "term", plan.Connections[0].From.ID(), "独立终端呼入会议室")
	assert.Equal(t, "mcu", plan.Connections[0].To.ID())
	assert.Equal(t, "mcu", plan.Connections[1].From.ID())
}

func TestTask_Ranking(t *testing.T) {
	db := newTestDatabase(t,
		newMCU("big", 100, model.TechnologyH323),
		newMCU("small", 20, model.TechnologyH323),
	)
	require.NoError(t, db.AddAllocatedResource(&model.AllocatedResource{
		ID: "a1", ResourceID: "small", ReservationID: "r1", Slot: testInterval, PortCount: 10,
	}))

	tests := []struct {
		name    string
		ranking string
		want    string
	}{
		{"容量优先", RankingCapacity, "big"},
		{"占用率优先", RankingFullness, "small"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Ranking: tt.ranking}
			require.NoError(t, cfg.Validate())

			task := newTask(db, cfg)
			task.AddEndpoint(NewExternalEndpoint("ext", 5, model.TechnologyH323))
			plan, err := task.FindPlan()
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.VirtualRoom.Room.ID)
		})
	}
}
