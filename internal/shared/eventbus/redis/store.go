// Package redis Redis Streams 事件总线实现
package redis

import (
	"github.com/redis/go-redis/v9"
)

// Store Redis 事件总线
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 复用已有 Redis 客户端
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 共享连接由创建方（infra.RedisInfra）关闭
func (s *Store) Close() error {
	return nil
}
