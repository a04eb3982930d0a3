// Package redis DomainCapability 缓存操作
package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"shongo-controller/internal/shared/cache"
	"shongo-controller/internal/shared/model"
)

// SetDomainCapabilities 缓存域能力列表
func (s *Store) SetDomainCapabilities(ctx context.Context, domainID string, caps []*model.DomainCapability) error {
	return s.setJSON(ctx, cache.KeyDomainCapabilities+domainID, caps)
}

// GetDomainCapabilities 获取缓存的域能力列表
func (s *Store) GetDomainCapabilities(ctx context.Context, domainID string) ([]*model.DomainCapability, bool, error) {
	var caps []*model.DomainCapability
	ok, err := s.getJSON(ctx, cache.KeyDomainCapabilities+domainID, &caps)
	return caps, ok, err
}

// SetDomainReservations 缓存域预约列表
func (s *Store) SetDomainReservations(ctx context.Context, domainID string, reservations []*model.ForeignReservation) error {
	return s.setJSON(ctx, cache.KeyDomainReservations+domainID, reservations)
}

// GetDomainReservations 获取缓存的域预约列表
func (s *Store) GetDomainReservations(ctx context.Context, domainID string) ([]*model.ForeignReservation, bool, error) {
	var reservations []*model.ForeignReservation
	ok, err := s.getJSON(ctx, cache.KeyDomainReservations+domainID, &reservations)
	return reservations, ok, err
}

// DeleteDomain 删除域的全部缓存
func (s *Store) DeleteDomain(ctx context.Context, domainID string) error {
	return s.client.Del(ctx, cache.KeyDomainCapabilities+domainID, cache.KeyDomainReservations+domainID).Err()
}

func (s *Store) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, cache.TTLDomainCache).Err()
}

// getJSON 读取并反序列化，key 不存在时返回 false
func (s *Store) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// 确保 Store 实现了 Cache 接口
var _ cache.Cache = (*Store)(nil)
