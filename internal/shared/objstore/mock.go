package objstore

import (
	"context"
	"sync"
)

// MemoryObjectStore 进程内对象存储（未配置 MinIO 时使用）
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryObjectStore 创建进程内对象存储
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte)}
}

func (m *MemoryObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

var (
	_ ObjectStore = (*MemoryObjectStore)(nil)
	_ ObjectStore = (*Client)(nil)
)
