// Package eventbus 事件总线抽象接口
//
// 提供预约事件的发布/订阅能力，当前由 Redis Streams 实现，
// 单机部署使用进程内的 MemoryEventBus。
package eventbus

import (
	"context"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// ReservationEventBus 预约事件总线接口
type ReservationEventBus interface {
	PublishReservationEvent(ctx context.Context, event *ReservationEvent) error
	// GetReservationEvents 读取 fromID 之后的历史事件，fromID 为空表示从头读取
	GetReservationEvents(ctx context.Context, fromID string, count int64) ([]*ReservationEvent, error)
	// SubscribeReservationEvents 订阅新事件，ctx 取消后通道关闭
	SubscribeReservationEvents(ctx context.Context) (<-chan *ReservationEvent, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// EventBus 事件总线组合接口
type EventBus interface {
	ReservationEventBus
	Close() error
}
