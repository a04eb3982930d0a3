// Package cache 缓存层抽象接口
//
// 缓存外部域的能力和预约快照，当前由 Redis 实现，
// 单机部署使用进程内的 MemoryCache。
package cache

import (
	"context"

	"shongo-controller/internal/shared/model"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// DomainCapabilityCache 外部域能力与预约缓存接口
//
// Get 系列方法返回的 bool 表示缓存是否命中；命中但为空列表是合法结果。
type DomainCapabilityCache interface {
	SetDomainCapabilities(ctx context.Context, domainID string, caps []*model.DomainCapability) error
	GetDomainCapabilities(ctx context.Context, domainID string) ([]*model.DomainCapability, bool, error)
	SetDomainReservations(ctx context.Context, domainID string, reservations []*model.ForeignReservation) error
	GetDomainReservations(ctx context.Context, domainID string) ([]*model.ForeignReservation, bool, error)
	// DeleteDomain 清除域的全部缓存
	DeleteDomain(ctx context.Context, domainID string) error
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	DomainCapabilityCache
	Close() error
}
