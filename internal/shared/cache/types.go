// Package cache 缓存层类型定义
package cache

import (
	"time"
)

// ============================================================================
// Key 前缀和 TTL 常量
// ============================================================================

const (
	// Key 前缀
	KeyDomainCapabilities = "domain_capabilities:"
	KeyDomainReservations = "domain_reservations:"

	// TTLDomainCache 外部域快照的过期时间，需大于刷新周期
	TTLDomainCache = 10 * time.Minute
)
