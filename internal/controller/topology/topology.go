// Package topology 设备拓扑
//
// 有向多重图：节点为设备资源，边 (From, To, Technology, Type) 表示
// From 可以通过 Technology 以 Type 方式（IP 地址或别名）呼叫到 To。
// 资源变化时增量维护，删除设备时同时删除双向关联边。
package topology

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"shongo-controller/internal/shared/model"
)

// EdgeType 可达方式
type EdgeType string

const (
	EdgeIPAddress EdgeType = "IP_ADDRESS"
	EdgeAlias     EdgeType = "ALIAS"
)

var (
	// ErrNotDevice 资源不是设备（没有任何技术）
	ErrNotDevice = errors.New("resource is not a device")
	// ErrDuplicateNode 设备已在拓扑中
	ErrDuplicateNode = errors.New("device already in topology")
)

// Node 拓扑节点
type Node struct {
	Resource *model.Resource
}

// ID 节点 ID（即设备资源 ID）
func (n *Node) ID() string {
	return n.Resource.ID
}

// Edge 有向边
type Edge struct {
	From       string           `json:"from"`
	To         string           `json:"to"`
	Technology model.Technology `json:"technology"`
	Type       EdgeType         `json:"type"`
}

// Topology 设备拓扑图（并发安全）
type Topology struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	out   map[string][]Edge
	in    map[string][]Edge
}

// New 创建空拓扑
func New() *Topology {
	return &Topology{
		nodes: make(map[string]*Node),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}
}

// AddDeviceResource 加入设备并建立与现有设备之间的边
func (t *Topology) AddDeviceResource(r *model.Resource) error {
	if !r.IsDevice() {
		return fmt.Errorf("%w: %s", ErrNotDevice, r.ID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, r.ID)
	}
	t.addLocked(r)
	return nil
}

// UpdateDeviceResource 更新设备：删除旧节点及其边后重新加入
//
// 资源不再是设备时仅删除。
func (t *Topology) UpdateDeviceResource(r *model.Resource) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeLocked(r.ID)
	if r.IsDevice() {
		t.addLocked(r)
	}
}

// RemoveDeviceResource 删除设备及全部关联边，设备不存在时返回 false
func (t *Topology) RemoveDeviceResource(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(id)
}

// Node 查询节点
func (t *Topology) Node(id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Nodes 按 ID 排序的全部节点
func (t *Topology) Nodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodes := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	return nodes
}

// Edges 全部边
func (t *Topology) Edges() []Edge {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var edges []Edge
	for _, id := range t.sortedIDsLocked() {
		edges = append(edges, t.out[id]...)
	}
	return edges
}

// OutgoingEdges 以 id 为起点的边
func (t *Topology) OutgoingEdges(id string) []Edge {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Edge(nil), t.out[id]...)
}

// IncomingEdges 以 id 为终点的边
func (t *Topology) IncomingEdges(id string) []Edge {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Edge(nil), t.in[id]...)
}

// CanReach 判断 from 能否通过 technology 到达 to（广度优先，允许经过中间设备）
func (t *Topology) CanReach(from, to string, technology model.Technology) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.canReachLocked(from, to, technology)
}

// ReachableTechnologies from 可以到达 to 的全部技术
func (t *Topology) ReachableTechnologies(from, to string) model.Technologies {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[from]
	if !ok {
		return nil
	}
	result := model.Technologies{}
	for _, tech := range n.Resource.Technologies {
		if t.canReachLocked(from, to, tech) {
			result = append(result, tech)
		}
	}
	return result
}

// ============================================================================
// 内部实现（调用方持有锁）
// ============================================================================

func (t *Topology) addLocked(r *model.Resource) {
	t.nodes[r.ID] = &Node{Resource: r}
	for id, other := range t.nodes {
		if id == r.ID {
			continue
		}
		for _, e := range edgesBetween(r, other.Resource) {
			t.addEdgeLocked(e)
		}
		for _, e := range edgesBetween(other.Resource, r) {
			t.addEdgeLocked(e)
		}
	}
}

func (t *Topology) removeLocked(id string) bool {
	if _, ok := t.nodes[id]; !ok {
		return false
	}
	for _, e := range t.out[id] {
		t.in[e.To] = dropEdgesFrom(t.in[e.To], id)
	}
	for _, e := range t.in[id] {
		t.out[e.From] = dropEdgesTo(t.out[e.From], id)
	}
	delete(t.out, id)
	delete(t.in, id)
	delete(t.nodes, id)
	return true
}

func (t *Topology) addEdgeLocked(e Edge) {
	t.out[e.From] = append(t.out[e.From], e)
	t.in[e.To] = append(t.in[e.To], e)
}

func (t *Topology) canReachLocked(from, to string, technology model.Technology) bool {
	if _, ok := t.nodes[from]; !ok {
		return false
	}
	if _, ok := t.nodes[to]; !ok {
		return false
	}
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range t.out[current] {
			if e.Technology != technology || visited[e.To] {
				continue
			}
			if e.To == to {
				return true
			}
			visited[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return false
}

func (t *Topology) sortedIDsLocked() []string {
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// edgesBetween from→to 的边：双方共同支持的技术，to 有地址则 IP_ADDRESS，有该技术别名则 ALIAS
func edgesBetween(from, to *model.Resource) []Edge {
	var edges []Edge
	for _, tech := range from.Technologies.Intersect(to.Technologies) {
		if to.Address != "" {
			edges = append(edges, Edge{From: from.ID, To: to.ID, Technology: tech, Type: EdgeIPAddress})
		}
		if to.HasAliasFor(tech) {
			edges = append(edges, Edge{From: from.ID, To: to.ID, Technology: tech, Type: EdgeAlias})
		}
	}
	return edges
}

func dropEdgesFrom(edges []Edge, from string) []Edge {
	kept := edges[:0]
	for _, e := range edges {
		if e.From != from {
			kept = append(kept, e)
		}
	}
	return kept
}

func dropEdgesTo(edges []Edge, to string) []Edge {
	kept := edges[:0]
	for _, e := range edges {
		if e.To != to {
			kept = append(kept, e)
		}
	}
	return kept
}
