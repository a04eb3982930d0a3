// Package queue 消息队列 mock 实现
package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// ============================================================================
// NoOpQueue - 空操作的 Queue 实现（用于测试）
// ============================================================================

// NoOpQueue 是一个不做任何操作的 Queue 实现
type NoOpQueue struct{}

// NewNoOpQueue 创建 NoOpQueue 实例
func NewNoOpQueue() *NoOpQueue {
	return &NoOpQueue{}
}

// Close 关闭队列
func (q *NoOpQueue) Close() error {
	return nil
}

func (q *NoOpQueue) PublishDeviceCommand(ctx context.Context, deviceID string, cmd *DeviceCommand) (string, error) {
	return "", nil
}
func (q *NoOpQueue) CreateDeviceConsumerGroup(ctx context.Context, deviceID string) error {
	return nil
}
func (q *NoOpQueue) ConsumeDeviceCommands(ctx context.Context, deviceID, consumerID string, count int64, blockTimeout time.Duration) ([]*DeviceCommandMessage, error) {
	return []*DeviceCommandMessage{}, nil
}
func (q *NoOpQueue) AckDeviceCommand(ctx context.Context, deviceID, messageID string) error {
	return nil
}
func (q *NoOpQueue) GetDeviceQueueLength(ctx context.Context, deviceID string) (int64, error) {
	return 0, nil
}

// 确保 NoOpQueue 实现了 Queue 接口
var _ Queue = (*NoOpQueue)(nil)

// ============================================================================
// MemoryQueue - 进程内 Queue 实现（测试用）
// ============================================================================

// MemoryQueue 进程内设备命令队列，不阻塞，消费即出队
type MemoryQueue struct {
	mu      sync.Mutex
	seq     int
	streams map[string][]*DeviceCommandMessage
}

// NewMemoryQueue 创建 MemoryQueue 实例
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{streams: make(map[string][]*DeviceCommandMessage)}
}

func (q *MemoryQueue) Close() error {
	return nil
}

func (q *MemoryQueue) PublishDeviceCommand(ctx context.Context, deviceID string, cmd *DeviceCommand) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := strconv.Itoa(q.seq)
	q.streams[deviceID] = append(q.streams[deviceID], &DeviceCommandMessage{ID: id, Command: cmd})
	return id, nil
}

func (q *MemoryQueue) CreateDeviceConsumerGroup(ctx context.Context, deviceID string) error {
	return nil
}

func (q *MemoryQueue) ConsumeDeviceCommands(ctx context.Context, deviceID, consumerID string, count int64, blockTimeout time.Duration) ([]*DeviceCommandMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msgs := q.streams[deviceID]
	n := len(msgs)
	if count > 0 && int64(n) > count {
		n = int(count)
	}
	out := append([]*DeviceCommandMessage{}, msgs[:n]...)
	q.streams[deviceID] = msgs[n:]
	return out, nil
}

func (q *MemoryQueue) AckDeviceCommand(ctx context.Context, deviceID, messageID string) error {
	return nil
}

func (q *MemoryQueue) GetDeviceQueueLength(ctx context.Context, deviceID string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.streams[deviceID])), nil
}

var _ Queue = (*MemoryQueue)(nil)
