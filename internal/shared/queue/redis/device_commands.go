// Package redis DeviceCommandQueue 操作
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"shongo-controller/internal/shared/queue"
)

// PublishDeviceCommand 将命令发送给指定设备
func (s *Store) PublishDeviceCommand(ctx context.Context, deviceID string, cmd *queue.DeviceCommand) (string, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to marshal command: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: queue.DeviceCommandsKey(deviceID),
		MaxLen: queue.MaxDeviceStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(cmd.Type),
			"payload": string(payload),
		},
	}

	msgID, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish command to device %s: %w", deviceID, err)
	}

	log.Printf("[Redis/Queue] Published command to device: device=%s type=%s room=%s msg_id=%s", deviceID, cmd.Type, cmd.RoomID, msgID)
	return msgID, nil
}

// CreateDeviceConsumerGroup 创建设备消费者组
func (s *Store) CreateDeviceConsumerGroup(ctx context.Context, deviceID string) error {
	err := s.client.XGroupCreateMkStream(ctx, queue.DeviceCommandsKey(deviceID), queue.DeviceAgentConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group for device %s: %w", deviceID, err)
	}
	return nil
}

// ConsumeDeviceCommands 消费设备命令
func (s *Store) ConsumeDeviceCommands(ctx context.Context, deviceID, consumerID string, count int64, blockTimeout time.Duration) ([]*queue.DeviceCommandMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    queue.DeviceAgentConsumerGroup,
		Consumer: consumerID,
		Streams:  []string{queue.DeviceCommandsKey(deviceID), ">"},
		Count:    count,
		Block:    blockTimeout,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to consume device commands: %w", err)
	}

	var messages []*queue.DeviceCommandMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			payload, _ := msg.Values["payload"].(string)
			var cmd queue.DeviceCommand
			if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
				log.Printf("[Redis/Queue] Skip malformed command %s for device %s: %v", msg.ID, deviceID, err)
				continue
			}
			messages = append(messages, &queue.DeviceCommandMessage{ID: msg.ID, Command: &cmd})
		}
	}
	return messages, nil
}

// AckDeviceCommand 确认设备命令已处理
func (s *Store) AckDeviceCommand(ctx context.Context, deviceID, messageID string) error {
	return s.client.XAck(ctx, queue.DeviceCommandsKey(deviceID), queue.DeviceAgentConsumerGroup, messageID).Err()
}

// GetDeviceQueueLength 获取设备命令流长度
func (s *Store) GetDeviceQueueLength(ctx context.Context, deviceID string) (int64, error) {
	return s.client.XLen(ctx, queue.DeviceCommandsKey(deviceID)).Result()
}

// 确保 Store 实现了 Queue 接口
var _ queue.Queue = (*Store)(nil)
