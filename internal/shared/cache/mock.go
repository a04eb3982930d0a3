// Package cache 缓存层 mock 实现
package cache

import (
	"context"
	"sync"

	"shongo-controller/internal/shared/model"
)

// ============================================================================
// NoOpCache - 空操作的 Cache 实现（用于测试）
// ============================================================================

// NoOpCache 是一个不做任何操作的 Cache 实现，所有读取都不命中
type NoOpCache struct{}

// NewNoOpCache 创建 NoOpCache 实例
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Close 关闭缓存
func (c *NoOpCache) Close() error {
	return nil
}

func (c *NoOpCache) SetDomainCapabilities(ctx context.Context, domainID string, caps []*model.DomainCapability) error {
	return nil
}
func (c *NoOpCache) GetDomainCapabilities(ctx context.Context, domainID string) ([]*model.DomainCapability, bool, error) {
	return nil, false, nil
}
func (c *NoOpCache) SetDomainReservations(ctx context.Context, domainID string, reservations []*model.ForeignReservation) error {
	return nil
}
func (c *NoOpCache) GetDomainReservations(ctx context.Context, domainID string) ([]*model.ForeignReservation, bool, error) {
	return nil, false, nil
}
func (c *NoOpCache) DeleteDomain(ctx context.Context, domainID string) error {
	return nil
}

// 确保 NoOpCache 实现了 Cache 接口
var _ Cache = (*NoOpCache)(nil)

// ============================================================================
// MemoryCache - 进程内 Cache 实现（单机部署和测试）
// ============================================================================

// MemoryCache 进程内缓存，不过期，由刷新任务整体覆盖
type MemoryCache struct {
	mu           sync.RWMutex
	capabilities map[string][]*model.DomainCapability
	reservations map[string][]*model.ForeignReservation
}

// NewMemoryCache 创建 MemoryCache 实例
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		capabilities: make(map[string][]*model.DomainCapability),
		reservations: make(map[string][]*model.ForeignReservation),
	}
}

func (c *MemoryCache) Close() error {
	return nil
}

func (c *MemoryCache) SetDomainCapabilities(ctx context.Context, domainID string, caps []*model.DomainCapability) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capabilities[domainID] = append([]*model.DomainCapability{}, caps...)
	return nil
}

func (c *MemoryCache) GetDomainCapabilities(ctx context.Context, domainID string) ([]*model.DomainCapability, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	caps, ok := c.capabilities[domainID]
	if !ok {
		return nil, false, nil
	}
	return append([]*model.DomainCapability{}, caps...), true, nil
}

func (c *MemoryCache) SetDomainReservations(ctx context.Context, domainID string, reservations []*model.ForeignReservation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reservations[domainID] = append([]*model.ForeignReservation{}, reservations...)
	return nil
}

func (c *MemoryCache) GetDomainReservations(ctx context.Context, domainID string) ([]*model.ForeignReservation, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reservations, ok := c.reservations[domainID]
	if !ok {
		return nil, false, nil
	}
	return append([]*model.ForeignReservation{}, reservations...), true, nil
}

func (c *MemoryCache) DeleteDomain(ctx context.Context, domainID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.capabilities, domainID)
	delete(c.reservations, domainID)
	return nil
}

var _ Cache = (*MemoryCache)(nil)
