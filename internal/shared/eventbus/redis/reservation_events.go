// Package redis ReservationEvents 事件总线操作
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"shongo-controller/internal/shared/eventbus"
)

// PublishReservationEvent 发布预约事件
func (s *Store) PublishReservationEvent(ctx context.Context, event *eventbus.ReservationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: eventbus.KeyReservationEvents,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"type":    event.Type,
			"payload": string(payload),
		},
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	event.ID = id

	log.Printf("[Redis/EventBus] Published event: id=%s type=%s reservation=%s", id, event.Type, event.ReservationID)
	return nil
}

// GetReservationEvents 读取 fromID 之后的历史事件
func (s *Store) GetReservationEvents(ctx context.Context, fromID string, count int64) ([]*eventbus.ReservationEvent, error) {
	start := "-"
	if fromID != "" {
		// 排他起点
		start = "(" + fromID
	}

	var msgs []redis.XMessage
	var err error
	if count > 0 {
		msgs, err = s.client.XRangeN(ctx, eventbus.KeyReservationEvents, start, "+", count).Result()
	} else {
		msgs, err = s.client.XRange(ctx, eventbus.KeyReservationEvents, start, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	events := make([]*eventbus.ReservationEvent, 0, len(msgs))
	for _, msg := range msgs {
		if event := decodeEvent(msg); event != nil {
			events = append(events, event)
		}
	}
	return events, nil
}

// SubscribeReservationEvents 订阅新的预约事件
func (s *Store) SubscribeReservationEvents(ctx context.Context) (<-chan *eventbus.ReservationEvent, error) {
	ch := make(chan *eventbus.ReservationEvent, 100)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{eventbus.KeyReservationEvents, lastID},
				Count:   10,
				Block:   5 * time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() == nil {
					log.Printf("[Redis/EventBus] Event subscription error: %v", err)
				}
				return
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					lastID = msg.ID
					event := decodeEvent(msg)
					if event == nil {
						continue
					}
					select {
					case ch <- event:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// decodeEvent 解析流消息，格式错误的消息记录日志后跳过
func decodeEvent(msg redis.XMessage) *eventbus.ReservationEvent {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		log.Printf("[Redis/EventBus] Message %s has no payload", msg.ID)
		return nil
	}
	var event eventbus.ReservationEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Printf("[Redis/EventBus] Message %s decode failed: %v", msg.ID, err)
		return nil
	}
	event.ID = msg.ID
	return &event
}

// 确保 Store 实现了 EventBus 接口
var _ eventbus.EventBus = (*Store)(nil)
