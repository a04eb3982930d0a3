package model

import (
	"fmt"
	"time"
)

// ============================================================================
// Alias - 设备别名
// ============================================================================

// AliasType 别名类型
type AliasType string

const (
	AliasH323E164  AliasType = "H323_E164"
	AliasH323URI   AliasType = "H323_URI"
	AliasH323IP    AliasType = "H323_IP"
	AliasSIPURI    AliasType = "SIP_URI"
	AliasSIPIP     AliasType = "SIP_IP"
	AliasAdobeURL  AliasType = "ADOBE_CONNECT_URI"
	AliasRoomName  AliasType = "ROOM_NAME"
	AliasSkypeURI  AliasType = "SKYPE_URI"
	AliasWebClient AliasType = "WEB_CLIENT_URI"
)

// aliasTechnologies 别名类型所属的技术
var aliasTechnologies = map[AliasType]Technology{
	AliasH323E164:  TechnologyH323,
	AliasH323URI:   TechnologyH323,
	AliasH323IP:    TechnologyH323,
	AliasSIPURI:    TechnologySIP,
	AliasSIPIP:     TechnologySIP,
	AliasAdobeURL:  TechnologyAdobeConnect,
	AliasSkypeURI:  TechnologySkypeForBusiness,
	AliasWebClient: TechnologyPexip,
}

// Technology 返回别名所属技术（ROOM_NAME 等与技术无关的别名返回空字符串）
func (t AliasType) Technology() Technology {
	return aliasTechnologies[t]
}

// Alias 设备别名（电话号码、URI 等）
type Alias struct {
	Type  AliasType `json:"type" bson:"type"`
	Value string    `json:"value" bson:"value"`
}

// ============================================================================
// Capability - 资源能力（标签化变体）
// ============================================================================

// CapabilityType 能力类型
type CapabilityType string

const (
	// CapabilityVirtualRooms 多点会议能力（MCU），按端口计量
	CapabilityVirtualRooms CapabilityType = "virtual_rooms"
	// CapabilityTerminal 终端能力，拥有固定别名
	CapabilityTerminal CapabilityType = "terminal"
	// CapabilityStandaloneTerminal 独立终端，可自行发起点对点呼叫
	CapabilityStandaloneTerminal CapabilityType = "standalone_terminal"
)

// Capability 资源能力
//
// 不同类型只使用各自字段：
//   - virtual_rooms：PortCount、Technologies（为空时继承设备技术）
//   - terminal / standalone_terminal：Aliases
type Capability struct {
	Type         CapabilityType `json:"type" bson:"type"`
	PortCount    int            `json:"port_count,omitempty" bson:"port_count,omitempty"`
	Technologies Technologies   `json:"technologies,omitempty" bson:"technologies,omitempty"`
	Aliases      []Alias        `json:"aliases,omitempty" bson:"aliases,omitempty"`
}

// Validate 校验能力字段
func (c Capability) Validate() error {
	switch c.Type {
	case CapabilityVirtualRooms:
		if c.PortCount <= 0 {
			return fmt.Errorf("virtual_rooms capability requires positive port_count")
		}
	case CapabilityTerminal, CapabilityStandaloneTerminal:
	default:
		return fmt.Errorf("unknown capability type: %q", c.Type)
	}
	for _, t := range c.Technologies {
		if !t.IsValid() {
			return fmt.Errorf("unknown technology: %q", t)
		}
	}
	return nil
}

// ============================================================================
// Resource - 可预约资源
// ============================================================================

// Resource 可预约资源
//
// Technologies 非空即视为设备资源（DeviceResource），参与拓扑和多点会议计算。
type Resource struct {
	ID           string       `json:"id" bson:"_id" db:"id"`
	Name         string       `json:"name" bson:"name" db:"name"`
	Description  string       `json:"description,omitempty" bson:"description,omitempty" db:"description"`
	ParentID     string       `json:"parent_id,omitempty" bson:"parent_id,omitempty" db:"parent_id"`
	Allocatable  bool         `json:"allocatable" bson:"allocatable" db:"allocatable"`
	Address      string       `json:"address,omitempty" bson:"address,omitempty" db:"address"` // 设备 IP/主机名
	Technologies Technologies `json:"technologies,omitempty" bson:"technologies,omitempty" db:"technologies"`
	Capabilities []Capability `json:"capabilities,omitempty" bson:"capabilities,omitempty" db:"capabilities"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// Validate 校验资源
func (r *Resource) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("resource id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("resource name is required")
	}
	if r.ParentID == r.ID {
		return fmt.Errorf("resource cannot be its own parent")
	}
	for _, t := range r.Technologies {
		if !t.IsValid() {
			return fmt.Errorf("unknown technology: %q", t)
		}
	}
	for _, c := range r.Capabilities {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsDevice 是否为设备资源
func (r *Resource) IsDevice() bool {
	return len(r.Technologies) > 0
}

// Capability 返回指定类型的能力
func (r *Resource) Capability(t CapabilityType) (Capability, bool) {
	for _, c := range r.Capabilities {
		if c.Type == t {
			return c, true
		}
	}
	return Capability{}, false
}

// HasCapability 是否具备指定类型的能力
func (r *Resource) HasCapability(t CapabilityType) bool {
	_, ok := r.Capability(t)
	return ok
}

// VirtualRoomTechnologies 多点会议支持的技术（能力未声明时使用设备技术）
func (r *Resource) VirtualRoomTechnologies() Technologies {
	c, ok := r.Capability(CapabilityVirtualRooms)
	if !ok {
		return nil
	}
	if len(c.Technologies) > 0 {
		return c.Technologies
	}
	return r.Technologies
}

// PortCount 多点会议端口总数，无此能力时返回 0
func (r *Resource) PortCount() int {
	c, ok := r.Capability(CapabilityVirtualRooms)
	if !ok {
		return 0
	}
	return c.PortCount
}

// IsStandalone 是否为独立终端
func (r *Resource) IsStandalone() bool {
	return r.HasCapability(CapabilityStandaloneTerminal)
}

// Aliases 设备的全部别名
func (r *Resource) Aliases() []Alias {
	var aliases []Alias
	for _, c := range r.Capabilities {
		aliases = append(aliases, c.Aliases...)
	}
	return aliases
}

// HasAliasFor 是否拥有指定技术的别名
func (r *Resource) HasAliasFor(t Technology) bool {
	for _, a := range r.Aliases() {
		if a.Type.Technology() == t {
			return true
		}
	}
	return false
}

// Clone 深拷贝
func (r *Resource) Clone() *Resource {
	c := *r
	c.Technologies = append(Technologies(nil), r.Technologies...)
	c.Capabilities = make([]Capability, len(r.Capabilities))
	for i, capability := range r.Capabilities {
		capability.Technologies = append(Technologies(nil), capability.Technologies...)
		capability.Aliases = append([]Alias(nil), capability.Aliases...)
		c.Capabilities[i] = capability
	}
	return &c
}
