package model

import (
	"fmt"
	"time"
)

// ============================================================================
// Domain - 联邦域
// ============================================================================

// DomainStatus 域可用状态
type DomainStatus string

const (
	DomainStatusAvailable    DomainStatus = "AVAILABLE"
	DomainStatusNotAvailable DomainStatus = "NOT_AVAILABLE"
)

// Domain 联邦中的对端控制器实例
//
// PasswordHash 为对端登录本域时使用的 bcrypt 哈希；
// CertificateKey 为对端 CA 证书在对象存储中的键（PKI 模式使用）。
type Domain struct {
	ID             string       `json:"id" bson:"_id" db:"id"`
	Name           string       `json:"name" bson:"name" db:"name"`
	ShortName      string       `json:"short_name" bson:"short_name" db:"short_name"`
	Organization   string       `json:"organization,omitempty" bson:"organization,omitempty" db:"organization"`
	URL            string       `json:"url,omitempty" bson:"url,omitempty" db:"url"`
	Allocatable    bool         `json:"allocatable" bson:"allocatable" db:"allocatable"`
	Status         DomainStatus `json:"status,omitempty" bson:"-" db:"-"`
	PasswordHash   string       `json:"-" bson:"password_hash,omitempty" db:"password_hash"`
	CertificateKey string       `json:"certificate_key,omitempty" bson:"certificate_key,omitempty" db:"certificate_key"`
	CreatedAt      time.Time    `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// Validate 校验域
func (d *Domain) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("domain id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("domain name is required")
	}
	return nil
}

// ============================================================================
// DomainResource - 向对端域开放的资源
// ============================================================================

// DomainCapabilityType 跨域能力类型
type DomainCapabilityType string

const (
	DomainCapabilityResource    DomainCapabilityType = "RESOURCE"
	DomainCapabilityVirtualRoom DomainCapabilityType = "VIRTUAL_ROOM"
)

// DomainResource 本域资源向某个对端域的开放配置
type DomainResource struct {
	DomainID     string               `json:"domain_id" bson:"domain_id" db:"domain_id"`
	ResourceID   string               `json:"resource_id" bson:"resource_id" db:"resource_id"`
	Type         DomainCapabilityType `json:"type" bson:"type" db:"type"`
	LicenseCount int                  `json:"license_count,omitempty" bson:"license_count,omitempty" db:"license_count"`
	Price        int                  `json:"price" bson:"price" db:"price"`
	Priority     int                  `json:"priority" bson:"priority" db:"priority"`
}
