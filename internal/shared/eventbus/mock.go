// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"
	"strconv"
	"sync"
)

// ============================================================================
// NoOpEventBus - 空操作的 EventBus 实现（用于测试）
// ============================================================================

// NoOpEventBus 是一个不做任何操作的 EventBus 实现
type NoOpEventBus struct{}

// NewNoOpEventBus 创建 NoOpEventBus 实例
func NewNoOpEventBus() *NoOpEventBus {
	return &NoOpEventBus{}
}

// Close 关闭事件总线
func (e *NoOpEventBus) Close() error {
	return nil
}

func (e *NoOpEventBus) PublishReservationEvent(ctx context.Context, event *ReservationEvent) error {
	return nil
}
func (e *NoOpEventBus) GetReservationEvents(ctx context.Context, fromID string, count int64) ([]*ReservationEvent, error) {
	return []*ReservationEvent{}, nil
}
func (e *NoOpEventBus) SubscribeReservationEvents(ctx context.Context) (<-chan *ReservationEvent, error) {
	ch := make(chan *ReservationEvent)
	close(ch)
	return ch, nil
}

// 确保 NoOpEventBus 实现了 EventBus 接口
var _ EventBus = (*NoOpEventBus)(nil)

// ============================================================================
// MemoryEventBus - 进程内 EventBus 实现（单机部署和测试）
// ============================================================================

// MemoryEventBus 进程内事件总线，保留最近 MaxStreamLength 条事件
//
// 订阅者消费过慢时丢弃事件，不阻塞发布方。
type MemoryEventBus struct {
	mu          sync.Mutex
	seq         int
	events      []*ReservationEvent
	subscribers map[chan *ReservationEvent]struct{}
}

// NewMemoryEventBus 创建 MemoryEventBus 实例
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{subscribers: make(map[chan *ReservationEvent]struct{})}
}

func (e *MemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, ch)
	}
	return nil
}

func (e *MemoryEventBus) PublishReservationEvent(ctx context.Context, event *ReservationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	event.ID = strconv.Itoa(e.seq)
	e.events = append(e.events, event)
	if len(e.events) > MaxStreamLength {
		e.events = e.events[len(e.events)-MaxStreamLength:]
	}

	for ch := range e.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (e *MemoryEventBus) GetReservationEvents(ctx context.Context, fromID string, count int64) ([]*ReservationEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := 0
	if fromID != "" {
		n, err := strconv.Atoi(fromID)
		if err != nil {
			return nil, err
		}
		from = n
	}

	result := []*ReservationEvent{}
	for _, ev := range e.events {
		id, _ := strconv.Atoi(ev.ID)
		if id <= from {
			continue
		}
		result = append(result, ev)
		if count > 0 && int64(len(result)) >= count {
			break
		}
	}
	return result, nil
}

func (e *MemoryEventBus) SubscribeReservationEvents(ctx context.Context) (<-chan *ReservationEvent, error) {
	ch := make(chan *ReservationEvent, 100)

	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
	}()
	return ch, nil
}

var _ EventBus = (*MemoryEventBus)(nil)
