// Package redis Redis 缓存实现（外部域快照）
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store Redis 缓存存储
type Store struct {
	client *redis.Client
	owned  bool // 连接由本实例创建时 Close 负责关闭
}

// NewStoreFromURL 从 URL 创建 Redis 缓存实例
func NewStoreFromURL(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Cache] Connected to %s", opts.Addr)
	return &Store{client: client, owned: true}, nil
}

// NewStoreFromClient 复用已有 Redis 客户端（与事件总线、队列共享连接）
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 关闭 Redis 连接（共享连接时不做任何事）
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
