package scheduler

import (
	"sort"

	"shongo-controller/internal/shared/model"
)

// Interconnect 计算能连接全部端点的最小技术组合
//
// 返回的每个组合满足：每个端点至少支持组合中的一种技术，且去掉任一技术后
// 不再满足。任一端点不支持任何技术时返回 nil。结果按组合大小、再按 Key 排序。
func Interconnect(sets []model.Technologies) []model.Technologies {
	if len(sets) == 0 {
		return nil
	}
	var universe model.Technologies
	for _, s := range sets {
		if len(s) == 0 {
			return nil
		}
		universe = universe.Union(s)
	}
	universe = universe.Sorted()

	n := len(universe)
	masks := make([]uint, len(sets))
	for i, s := range sets {
		for j, t := range universe {
			if s.Contains(t) {
				masks[i] |= 1 << j
			}
		}
	}

	// 按组合大小从小到大枚举，保证先找到的组合不会是后找到组合的超集
	subsets := make([]uint, 0, 1<<n)
	for m := uint(1); m < 1<<n; m++ {
		subsets = append(subsets, m)
	}
	sort.SliceStable(subsets, func(i, j int) bool {
		return popcount(subsets[i]) < popcount(subsets[j])
	})

	var minimal []uint
	for _, m := range subsets {
		covers := true
		for _, mask := range masks {
			if mask&m == 0 {
				covers = false
				break
			}
		}
		if !covers {
			continue
		}
		redundant := false
		for _, kept := range minimal {
			if kept&m == kept {
				redundant = true
				break
			}
		}
		if !redundant {
			minimal = append(minimal, m)
		}
	}

	result := make([]model.Technologies, 0, len(minimal))
	for _, m := range minimal {
		var ts model.Technologies
		for j, t := range universe {
			if m&(1<<j) != 0 {
				ts = append(ts, t)
			}
		}
		result = append(result, ts)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if len(result[i]) != len(result[j]) {
			return len(result[i]) < len(result[j])
		}
		return result[i].Key() < result[j].Key()
	})
	return result
}

func popcount(m uint) int {
	n := 0
	for ; m != 0; m &= m - 1 {
		n++
	}
	return n
}
