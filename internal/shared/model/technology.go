// Package model 定义核心数据模型
//
// technology.go 包含会议技术相关的定义：
//   - Technology：会议协议族（H323、SIP、Adobe Connect 等）
//   - Technologies：技术集合，兼容性判断基于集合交集
package model

import (
	"fmt"
	"sort"
	"strings"
)

// ============================================================================
// Technology - 会议技术
// ============================================================================

// Technology 会议协议族
type Technology string

const (
	TechnologyH323             Technology = "H323"
	TechnologySIP              Technology = "SIP"
	TechnologyAdobeConnect     Technology = "ADOBE_CONNECT"
	TechnologySkypeForBusiness Technology = "SKYPE_FOR_BUSINESS"
	TechnologyRTMP             Technology = "RTMP"
	TechnologyFreePBX          Technology = "FREEPBX"
	TechnologyPexip            Technology = "PEXIP"
)

// knownTechnologies 所有已知技术（校验用）
var knownTechnologies = map[Technology]bool{
	TechnologyH323:             true,
	TechnologySIP:              true,
	TechnologyAdobeConnect:     true,
	TechnologySkypeForBusiness: true,
	TechnologyRTMP:             true,
	TechnologyFreePBX:          true,
	TechnologyPexip:            true,
}

// IsValid 是否为已知技术
func (t Technology) IsValid() bool {
	return knownTechnologies[t]
}

// ParseTechnology 解析技术名称（大小写不敏感）
func ParseTechnology(s string) (Technology, error) {
	t := Technology(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown technology: %q", s)
	}
	return t, nil
}

// ============================================================================
// Technologies - 技术集合
// ============================================================================

// Technologies 技术集合
//
// 以有序切片表示，元素唯一；顺序在设备资源上表示偏好（越靠前越优先）。
type Technologies []Technology

// NewTechnologies 创建去重后的技术集合，保留首次出现的顺序
func NewTechnologies(techs ...Technology) Technologies {
	seen := make(map[Technology]bool, len(techs))
	result := make(Technologies, 0, len(techs))
	for _, t := range techs {
		if seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
	}
	return result
}

// Contains 是否包含指定技术
func (ts Technologies) Contains(t Technology) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

// ContainsAll 是否包含 other 中的全部技术
func (ts Technologies) ContainsAll(other Technologies) bool {
	for _, t := range other {
		if !ts.Contains(t) {
			return false
		}
	}
	return true
}

// Intersects 两个集合是否有交集
func (ts Technologies) Intersects(other Technologies) bool {
	for _, t := range other {
		if ts.Contains(t) {
			return true
		}
	}
	return false
}

// Intersect 返回交集，顺序以 ts 为准
func (ts Technologies) Intersect(other Technologies) Technologies {
	result := Technologies{}
	for _, t := range ts {
		if other.Contains(t) {
			result = append(result, t)
		}
	}
	return result
}

// Union 返回并集
func (ts Technologies) Union(other Technologies) Technologies {
	all := make([]Technology, 0, len(ts)+len(other))
	all = append(all, ts...)
	all = append(all, other...)
	return NewTechnologies(all...)
}

// Sorted 返回按名称排序的副本
func (ts Technologies) Sorted() Technologies {
	result := make(Technologies, len(ts))
	copy(result, ts)
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Key 集合的规范化标识（与顺序无关）
func (ts Technologies) Key() string {
	sorted := ts.Sorted()
	parts := make([]string, len(sorted))
	for i, t := range sorted {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// String 实现 fmt.Stringer
func (ts Technologies) String() string {
	return "[" + ts.Key() + "]"
}
