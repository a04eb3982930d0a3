// Package queue 消息队列抽象接口
//
// 提供设备命令的分发和消费能力，当前由 Redis Streams 实现。
// 消费方是设备代理（外部进程），控制器只负责发布。
package queue

import (
	"context"
	"time"
)

// ============================================================================
// 队列接口定义
// ============================================================================

// DeviceCommandQueue 设备命令队列接口（每台设备一个流）
type DeviceCommandQueue interface {
	// PublishDeviceCommand 将命令发送给指定设备，返回消息 ID
	PublishDeviceCommand(ctx context.Context, deviceID string, cmd *DeviceCommand) (string, error)
	CreateDeviceConsumerGroup(ctx context.Context, deviceID string) error
	ConsumeDeviceCommands(ctx context.Context, deviceID, consumerID string, count int64, blockTimeout time.Duration) ([]*DeviceCommandMessage, error)
	AckDeviceCommand(ctx context.Context, deviceID, messageID string) error
	GetDeviceQueueLength(ctx context.Context, deviceID string) (int64, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// Queue 消息队列组合接口
type Queue interface {
	DeviceCommandQueue
	Close() error
}
