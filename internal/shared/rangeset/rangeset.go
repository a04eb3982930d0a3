// Package rangeset 区间桶索引
//
// Set 维护一组 (value, start, end) 半开区间，把坐标轴切分为若干有序桶，
// 每个桶 [boundary_i, boundary_{i+1}) 记录覆盖它的全部 value。
// 用于回答"某个时间点/时间段内有哪些分配处于活动状态"。
//
// 桶边界由区间的起点和终点产生，并记录产生它的 owner；
// 当一个边界不再被任何区间拥有时才删除该桶，否则保留（相邻桶的值集合
// 可能相同，查询结果不受影响）。
//
// Set 不是并发安全的，由调用方加锁。
package rangeset

import (
	"cmp"
	"sort"
	"time"
)

// Bucket 桶快照（用于检查和测试）
type Bucket[K any, V comparable] struct {
	Start  K
	Values []V
}

type bucket[K any, V comparable] struct {
	start  K
	values map[V]struct{}
	owners map[V]struct{}
}

type span[K any] struct {
	start K
	end   K
}

// Set 区间桶索引
type Set[K any, V comparable] struct {
	compare func(a, b K) int
	buckets []*bucket[K, V]
	spans   map[V]span[K]
}

// New 使用自定义比较函数创建索引
func New[K any, V comparable](compare func(a, b K) int) *Set[K, V] {
	return &Set[K, V]{
		compare: compare,
		spans:   make(map[V]span[K]),
	}
}

// NewOrdered 创建以有序基本类型为坐标轴的索引
func NewOrdered[K cmp.Ordered, V comparable]() *Set[K, V] {
	return New[K, V](cmp.Compare[K])
}

// NewTime 创建以时间为坐标轴的索引
func NewTime[V comparable]() *Set[time.Time, V] {
	return New[time.Time, V](func(a, b time.Time) int { return a.Compare(b) })
}

// Add 插入区间 [start, end)
//
// value 已存在或 start > end 时返回 false。
// start == end 的退化区间只登记 value，不产生任何桶。
func (s *Set[K, V]) Add(value V, start, end K) bool {
	if _, ok := s.spans[value]; ok {
		return false
	}
	c := s.compare(start, end)
	if c > 0 {
		return false
	}
	s.spans[value] = span[K]{start: start, end: end}
	if c == 0 {
		return true
	}

	s.ensureBoundary(start, value)
	s.ensureBoundary(end, value)

	hi := s.lowerBound(end)
	for i := s.lowerBound(start); i < hi; i++ {
		s.buckets[i].values[value] = struct{}{}
	}
	return true
}

// Remove 删除 value 对应的区间，value 不存在时返回 false
func (s *Set[K, V]) Remove(value V) bool {
	sp, ok := s.spans[value]
	if !ok {
		return false
	}
	delete(s.spans, value)
	if s.compare(sp.start, sp.end) == 0 {
		return true
	}

	hi := s.lowerBound(sp.end)
	for i := s.lowerBound(sp.start); i < hi; i++ {
		delete(s.buckets[i].values, value)
	}
	// 先释放终点，起点桶的下标不受影响
	s.releaseBoundary(sp.end, value)
	s.releaseBoundary(sp.start, value)
	return true
}

// Values 返回与 [start, end) 重叠的全部 value，顺序不定
func (s *Set[K, V]) Values(start, end K) []V {
	if len(s.buckets) == 0 {
		return nil
	}
	lo := s.floorIndex(start)
	if lo < 0 {
		lo = 0
	}
	hi := s.lowerBound(end)
	if hi == len(s.buckets) {
		hi = len(s.buckets) - 1
	}
	return s.collect(lo, hi)
}

// ValuesClosed 与 Values 相同，但 end 为闭区间端点：起点恰为 end 的桶也计入
func (s *Set[K, V]) ValuesClosed(start, end K) []V {
	if len(s.buckets) == 0 {
		return nil
	}
	lo := s.floorIndex(start)
	if lo < 0 {
		lo = 0
	}
	return s.collect(lo, s.upperBound(end))
}

// ValuesAt 返回在时间点 p 处活动的 value
func (s *Set[K, V]) ValuesAt(p K) []V {
	i := s.floorIndex(p)
	if i < 0 {
		return nil
	}
	return s.collect(i, i+1)
}

// Contains 是否包含 value
func (s *Set[K, V]) Contains(value V) bool {
	_, ok := s.spans[value]
	return ok
}

// Range 返回 value 登记的区间
func (s *Set[K, V]) Range(value V) (start, end K, ok bool) {
	sp, ok := s.spans[value]
	return sp.start, sp.end, ok
}

// Len 登记的 value 数量
func (s *Set[K, V]) Len() int {
	return len(s.spans)
}

// Clear 重置为空
func (s *Set[K, V]) Clear() {
	s.buckets = nil
	s.spans = make(map[V]span[K])
}

// Buckets 返回按边界排序的桶快照
func (s *Set[K, V]) Buckets() []Bucket[K, V] {
	result := make([]Bucket[K, V], len(s.buckets))
	for i, b := range s.buckets {
		values := make([]V, 0, len(b.values))
		for v := range b.values {
			values = append(values, v)
		}
		result[i] = Bucket[K, V]{Start: b.start, Values: values}
	}
	return result
}

// ============================================================================
// 内部实现
// ============================================================================

// ensureBoundary 确保 k 处有桶并登记 owner；新桶复制其左侧桶的值
func (s *Set[K, V]) ensureBoundary(k K, owner V) {
	i := s.lowerBound(k)
	if i < len(s.buckets) && s.compare(s.buckets[i].start, k) == 0 {
		s.buckets[i].owners[owner] = struct{}{}
		return
	}
	b := &bucket[K, V]{
		start:  k,
		values: make(map[V]struct{}),
		owners: map[V]struct{}{owner: {}},
	}
	if i > 0 {
		for v := range s.buckets[i-1].values {
			b.values[v] = struct{}{}
		}
	}
	s.buckets = append(s.buckets, nil)
	copy(s.buckets[i+1:], s.buckets[i:])
	s.buckets[i] = b
}

// releaseBoundary 注销 owner，桶无 owner 时删除
func (s *Set[K, V]) releaseBoundary(k K, owner V) {
	i := s.lowerBound(k)
	if i >= len(s.buckets) || s.compare(s.buckets[i].start, k) != 0 {
		return
	}
	b := s.buckets[i]
	delete(b.owners, owner)
	if len(b.owners) == 0 {
		s.buckets = append(s.buckets[:i], s.buckets[i+1:]...)
	}
}

// collect 合并 [lo, hi) 范围内桶的值
func (s *Set[K, V]) collect(lo, hi int) []V {
	seen := make(map[V]struct{})
	var result []V
	for i := lo; i < hi; i++ {
		for v := range s.buckets[i].values {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}
	return result
}

// lowerBound 第一个边界 >= k 的桶下标
func (s *Set[K, V]) lowerBound(k K) int {
	return sort.Search(len(s.buckets), func(i int) bool {
		return s.compare(s.buckets[i].start, k) >= 0
	})
}

// upperBound 第一个边界 > k 的桶下标
func (s *Set[K, V]) upperBound(k K) int {
	return sort.Search(len(s.buckets), func(i int) bool {
		return s.compare(s.buckets[i].start, k) > 0
	})
}

// floorIndex 最后一个边界 <= k 的桶下标，不存在时返回 -1
func (s *Set[K, V]) floorIndex(k K) int {
	return s.upperBound(k) - 1
}
