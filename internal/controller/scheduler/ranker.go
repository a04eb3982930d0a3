package scheduler

import (
	"sort"

	"shongo-controller/internal/controller/availability"
)

// Ranker 会议室排序策略
//
// Rank 返回排好序的新切片，第一个即为选中的会议室。
type Ranker interface {
	Name() string
	Rank(rooms []availability.AvailableVirtualRoom) []availability.AvailableVirtualRoom
}

// CapacityRanker 支持技术多的优先，技术数相同时可用端口最多的优先
type CapacityRanker struct{}

// NewCapacityRanker 创建容量优先排序
func NewCapacityRanker() *CapacityRanker {
	return &CapacityRanker{}
}

// Name 返回策略名称
func (r *CapacityRanker) Name() string {
	return RankingCapacity
}

// Rank 按技术覆盖、可用端口降序排序
func (r *CapacityRanker) Rank(rooms []availability.AvailableVirtualRoom) []availability.AvailableVirtualRoom {
	result := append([]availability.AvailableVirtualRoom(nil), rooms...)
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		ta, tb := len(a.Resource.VirtualRoomTechnologies()), len(b.Resource.VirtualRoomTechnologies())
		if ta != tb {
			return ta > tb
		}
		if a.AvailablePorts != b.AvailablePorts {
			return a.AvailablePorts > b.AvailablePorts
		}
		return a.Resource.ID < b.Resource.ID
	})
	return result
}

// FullnessRanker 占用率最高的优先（把会议集中到少数设备上）
type FullnessRanker struct{}

// NewFullnessRanker 创建占用率优先排序
func NewFullnessRanker() *FullnessRanker {
	return &FullnessRanker{}
}

// Name 返回策略名称
func (r *FullnessRanker) Name() string {
	return RankingFullness
}

// Rank 按占用率降序排序
func (r *FullnessRanker) Rank(rooms []availability.AvailableVirtualRoom) []availability.AvailableVirtualRoom {
	result := append([]availability.AvailableVirtualRoom(nil), rooms...)
	sort.SliceStable(result, func(i, j int) bool {
		fa, fb := result[i].FullnessRatio(), result[j].FullnessRatio()
		if fa != fb {
			return fa > fb
		}
		return result[i].Resource.ID < result[j].Resource.ID
	})
	return result
}
