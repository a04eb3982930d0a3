// Package mongostore 实现基于 MongoDB 的 PersistentStore
//
// 使用 mongo-go-driver v2，通过 bson tag 实现 model 结构体的序列化/反序列化。
// 所有 Collection 名称和索引在 ensureIndexes 中统一管理。
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"shongo-controller/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection 名称常量
const (
	ColResources          = "resources"
	ColReservations       = "reservations"
	ColAllocatedResources = "allocated_resources"
	ColDomains            = "domains"
	ColDomainResources    = "domain_resources"
)

// Store 实现 storage.PersistentStore 接口的 MongoDB 驱动
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.PersistentStore = (*Store)(nil)

// NewStore 创建 MongoDB 存储实例
//
// uri: MongoDB 连接 URI，如 "mongodb://localhost:27017"
// dbName: 数据库名称，如 "shongo"
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	// 验证连接
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{client: client, db: db}

	// 创建索引
	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("WARNING: mongostore: ensure indexes failed: %v", err)
	}

	return s, nil
}

// Close 关闭 MongoDB 连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// col 获取指定 Collection
func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// ensureIndexes 创建所有必要的索引
func (s *Store) ensureIndexes(ctx context.Context) error {
	type idx struct {
		col    string
		keys   bson.D
		unique bool
	}

	indexes := []idx{
		// resources
		{ColResources, bson.D{{Key: "parent_id", Value: 1}}, false},

		// reservations
		{ColReservations, bson.D{{Key: "request_id", Value: 1}, {Key: "created_at", Value: -1}}, false},
		{ColReservations, bson.D{{Key: "resource_id", Value: 1}}, false},
		{ColReservations, bson.D{{Key: "slot.start", Value: 1}, {Key: "slot.end", Value: 1}}, false},

		// allocated_resources
		{ColAllocatedResources, bson.D{{Key: "reservation_id", Value: 1}}, false},
		{ColAllocatedResources, bson.D{{Key: "slot.start", Value: 1}, {Key: "slot.end", Value: 1}}, false},

		// domains
		{ColDomains, bson.D{{Key: "name", Value: 1}}, true},

		// domain_resources
		{ColDomainResources, bson.D{{Key: "domain_id", Value: 1}, {Key: "resource_id", Value: 1}}, true},
	}

	for _, i := range indexes {
		model := mongo.IndexModel{Keys: i.keys}
		if i.unique {
			model.Options = options.Index().SetUnique(true)
		}
		if _, err := s.col(i.col).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create index on %s: %w", i.col, err)
		}
	}

	return nil
}
