// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：repository/（SQL，配合 driver/ 方言）、mongostore/
//   - 初始化时通过依赖注入传入实现
//
// 缓存、事件总线、队列在独立包中：cache/、eventbus/、queue/
package storage

import (
	"context"

	"shongo-controller/internal/shared/model"
)

// ============================================================================
// 持久化存储接口（由 repository.Store / mongostore.Store 实现）
// ============================================================================

// ResourceStore 资源目录存储接口
//
// Get 系列方法在实体不存在时返回 (nil, nil)；Update/Delete 返回 ErrNotFound。
type ResourceStore interface {
	CreateResource(ctx context.Context, r *model.Resource) error
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	ListResources(ctx context.Context) ([]*model.Resource, error)
	UpdateResource(ctx context.Context, r *model.Resource) error
	DeleteResource(ctx context.Context, id string) error
}

// ReservationStore 预约与分配记录存储接口
//
// 预约与其分配记录总是在同一事务中写入，不会出现只有一半的分配。
type ReservationStore interface {
	// CreateReservation 写入预约及其分配记录
	CreateReservation(ctx context.Context, r *model.Reservation, allocations []*model.AllocatedResource) error
	// ReplaceReservation 把 previousID 标记为 deleted、删除其分配，并写入新预约
	ReplaceReservation(ctx context.Context, previousID string, r *model.Reservation, allocations []*model.AllocatedResource) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	// GetReservationByRequest 返回预约请求最新的一条预约
	GetReservationByRequest(ctx context.Context, requestID string) (*model.Reservation, error)
	ListReservations(ctx context.Context, filter model.ReservationFilter) ([]*model.Reservation, error)
	// DeleteReservation 标记预约为 deleted 并删除其分配记录
	DeleteReservation(ctx context.Context, id string) error

	// ListAllocatedResources 与 window 重叠的全部分配记录
	ListAllocatedResources(ctx context.Context, window model.Interval) ([]*model.AllocatedResource, error)
	ListAllocatedResourcesByReservation(ctx context.Context, reservationID string) ([]*model.AllocatedResource, error)
}

// DomainStore 联邦域存储接口
type DomainStore interface {
	CreateDomain(ctx context.Context, d *model.Domain) error
	GetDomain(ctx context.Context, id string) (*model.Domain, error)
	GetDomainByName(ctx context.Context, name string) (*model.Domain, error)
	ListDomains(ctx context.Context) ([]*model.Domain, error)
	UpdateDomain(ctx context.Context, d *model.Domain) error
	DeleteDomain(ctx context.Context, id string) error

	// UpsertDomainResource 开放资源给域（已存在时更新）
	UpsertDomainResource(ctx context.Context, dr *model.DomainResource) error
	GetDomainResource(ctx context.Context, domainID, resourceID string) (*model.DomainResource, error)
	// ListDomainResources typ 为空表示全部类型
	ListDomainResources(ctx context.Context, domainID string, typ model.DomainCapabilityType) ([]*model.DomainResource, error)
	DeleteDomainResource(ctx context.Context, domainID, resourceID string) error
}

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	ResourceStore
	ReservationStore
	DomainStore
	Close() error
}
