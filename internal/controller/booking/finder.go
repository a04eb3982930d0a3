package booking

import (
	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/shared/model"
)

// replacingFinder 修改预约时的会议室查询：被替换的旧分配不占用端口
type replacingFinder struct {
	db       *availability.Database
	replaced map[string][]*model.AllocatedResource // resourceID -> 旧分配
}

func newReplacingFinder(db *availability.Database, replaced []*model.AllocatedResource) *replacingFinder {
	f := &replacingFinder{db: db, replaced: make(map[string][]*model.AllocatedResource)}
	for _, a := range replaced {
		if a.IsVirtualRoom() {
			f.replaced[a.ResourceID] = append(f.replaced[a.ResourceID], a)
		}
	}
	return f
}

func (f *replacingFinder) FindAvailableVirtualRoomsByVariants(interval model.Interval, requiredPorts int, variants []model.Technologies) []availability.AvailableVirtualRoom {
	if len(f.replaced) == 0 {
		return f.db.FindAvailableVirtualRoomsByVariants(interval, requiredPorts, variants)
	}

	var result []availability.AvailableVirtualRoom
	for _, room := range f.db.FindAvailableVirtualRoomsByVariants(interval, 0, variants) {
		for _, a := range f.replaced[room.Resource.ID] {
			if a.Slot.Overlaps(interval) {
				room.AvailablePorts += a.PortCount
			}
		}
		if room.AvailablePorts > room.MaxPorts {
			room.AvailablePorts = room.MaxPorts
		}
		if room.AvailablePorts >= requiredPorts {
			result = append(result, room)
		}
	}
	return result
}
