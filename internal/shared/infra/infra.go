// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Storage：持久化存储（SQLite / PostgreSQL / MongoDB）
//   - Cache：外域能力缓存（Redis 或进程内）
//   - EventBus：预约事件总线（Redis Streams 或进程内）
//   - Queue：设备命令队列（Redis Streams 或进程内）
package infra

import (
	"fmt"
	"log"

	"shongo-controller/internal/config"
	"shongo-controller/internal/shared/cache"
	"shongo-controller/internal/shared/eventbus"
	"shongo-controller/internal/shared/queue"
	"shongo-controller/internal/shared/storage"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Storage 持久化存储
	Storage storage.PersistentStore

	// Cache 外域能力缓存
	Cache cache.Cache

	// EventBus 预约事件总线
	EventBus eventbus.EventBus

	// Queue 设备命令队列
	Queue queue.Queue

	redis *RedisInfra
}

// New 按配置初始化基础设施
//
// 未配置 Redis 时使用进程内实现（单机部署）。
func New(cfg *config.Config) (*Infrastructure, error) {
	store, err := NewPersistentStore(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DatabaseDBName)
	if err != nil {
		return nil, err
	}

	if !cfg.RedisEnabled() {
		log.Printf("[Infra] Redis not configured, using in-memory cache/eventbus/queue")
		inf := NewMemoryInfrastructure()
		inf.Storage = store
		return inf, nil
	}

	r, err := NewRedisInfra(cfg.RedisURL)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Infrastructure{
		Storage:  store,
		Cache:    r.Cache(),
		EventBus: r.EventBus(),
		Queue:    r.Queue(),
		redis:    r,
	}, nil
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.Storage != nil {
		if err := i.Storage.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Cache != nil {
		if err := i.Cache.Close(); err != nil {
			lastErr = err
		}
	}

	if i.EventBus != nil {
		if err := i.EventBus.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Queue != nil {
		if err := i.Queue.Close(); err != nil {
			lastErr = err
		}
	}

	// 各组件共享同一个 Redis 客户端，最后统一关闭
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			lastErr = fmt.Errorf("close redis: %w", err)
		}
	}

	return lastErr
}

// NewMemoryInfrastructure 创建进程内基础设施（单机部署与测试）
func NewMemoryInfrastructure() *Infrastructure {
	return &Infrastructure{
		Cache:    cache.NewMemoryCache(),
		EventBus: eventbus.NewMemoryEventBus(),
		Queue:    queue.NewMemoryQueue(),
	}
}
