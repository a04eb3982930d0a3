// Package booking 预约服务
//
// Service 把调度结果落地为持久化的预约：先在可用性数据库中原子地校验并登记
// 分配，再在一个存储事务中写入预约和分配记录；持久化失败时回滚内存中的
// 分配，二者始终一致。成功后发布预约事件并向设备投递命令。
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/controller/scheduler"
	"shongo-controller/internal/shared/eventbus"
	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/storage"
	"shongo-controller/pkg/logging"
)

// DefaultLookahead 工作区间默认向后延伸的长度
const DefaultLookahead = 31 * 24 * time.Hour

// CommandDispatcher 设备命令分发（由 executor.Dispatcher 实现）
type CommandDispatcher interface {
	DispatchPlan(ctx context.Context, reservationID string, plan *scheduler.Plan) error
	DispatchDeleteRoom(ctx context.Context, r *model.Reservation) error
}

// Recorder 预约指标记录（由 server.Metrics 实现）
type Recorder interface {
	RecordPlan(result string, duration time.Duration)
	RecordAllocation(kind model.ReservationType, result string)
}

// Options 服务依赖
type Options struct {
	Store      storage.PersistentStore
	Database   *availability.Database
	EventBus   eventbus.ReservationEventBus
	Dispatcher CommandDispatcher
	Recorder   Recorder
	Scheduler  *scheduler.Config
	// Lookahead 工作区间 [now, now+Lookahead)
	Lookahead time.Duration
	Logger    *logging.Logger
}

// Service 预约服务
type Service struct {
	store      storage.PersistentStore
	db         *availability.Database
	events     eventbus.ReservationEventBus
	dispatcher CommandDispatcher
	recorder   Recorder
	cfg        *scheduler.Config
	lookahead  time.Duration
	logger     *logging.Logger

	now   func() time.Time
	newID func() string
}

// NewService 创建预约服务
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Database == nil {
		return nil, fmt.Errorf("booking: store and database are required")
	}
	cfg := opts.Scheduler
	if cfg == nil {
		cfg = scheduler.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.EventBus == nil {
		opts.EventBus = eventbus.NewNoOpEventBus()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default("booking")
	}
	return &Service{
		store:      opts.Store,
		db:         opts.Database,
		events:     opts.EventBus,
		dispatcher: opts.Dispatcher,
		recorder:   opts.Recorder,
		cfg:        cfg,
		lookahead:  opts.Lookahead,
		logger:     opts.Logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// Database 可用性数据库
func (s *Service) Database() *availability.Database {
	return s.db
}

// Rebuild 从存储重建可用性数据库
//
// 工作区间为 [now, now+lookahead)，加载与其扩展窗口重叠的全部分配记录。
func (s *Service) Rebuild(ctx context.Context) error {
	start := time.Now()
	now := s.now().UTC().Truncate(time.Second)

	s.db.Clear()
	s.db.SetWorkingInterval(model.NewInterval(now, now.Add(s.lookahead)))

	resources, err := s.store.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}
	for _, r := range resources {
		if err := s.db.AddResource(r); err != nil {
			return fmt.Errorf("add resource %s: %w", r.ID, err)
		}
	}

	window, _ := s.db.LoadWindow()
	allocations, err := s.store.ListAllocatedResources(ctx, window)
	if err != nil {
		return fmt.Errorf("load allocations: %w", err)
	}
	for _, a := range allocations {
		if err := s.db.AddAllocatedResource(a); err != nil {
			return fmt.Errorf("add allocation %s: %w", a.ID, err)
		}
	}

	s.logger.WithDuration(time.Since(start)).Info("Availability database rebuilt",
		"resources", len(resources),
		"allocations", len(allocations),
		"window", window.String(),
	)
	return nil
}

// loadSlot 请求区间超出加载窗口时，从存储补充加载与其重叠的分配记录
func (s *Service) loadSlot(ctx context.Context, slot model.Interval) error {
	window, ok := s.db.LoadWindow()
	if ok && !slot.Start.Before(window.Start) && !slot.End.After(window.End) {
		return nil
	}
	allocations, err := s.store.ListAllocatedResources(ctx, slot)
	if err != nil {
		return fmt.Errorf("load allocations for %s: %w", slot, err)
	}
	loaded := 0
	for _, a := range allocations {
		if _, exists := s.db.GetAllocatedResource(a.ID); exists {
			continue
		}
		if err := s.db.AddAllocatedResource(a); err != nil {
			if errors.Is(err, availability.ErrDuplicateAllocation) {
				continue
			}
			return fmt.Errorf("add allocation %s: %w", a.ID, err)
		}
		loaded++
	}
	if loaded > 0 {
		s.logger.Debug("Loaded allocations outside window", "slot", slot.String(), "allocations", loaded)
	}
	return nil
}

// ============================================================================
// 资源目录
// ============================================================================

// CreateResource 创建资源（先存储，后内存）
func (s *Service) CreateResource(ctx context.Context, r *model.Resource) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := s.store.CreateResource(ctx, r); err != nil {
		return err
	}
	if err := s.db.AddResource(r); err != nil {
		if delErr := s.store.DeleteResource(ctx, r.ID); delErr != nil {
			s.logger.WithResource(r.ID).WithError(delErr).Error("Compensating resource delete failed")
		}
		return err
	}
	s.logger.WithResource(r.ID).Info("Resource created")
	return nil
}

// UpdateResource 更新资源
func (s *Service) UpdateResource(ctx context.Context, r *model.Resource) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.UpdatedAt = s.now()
	if err := s.store.UpdateResource(ctx, r); err != nil {
		return err
	}
	if err := s.db.UpdateResource(r); err != nil {
		s.logger.WithResource(r.ID).WithError(err).Error("Availability database out of sync")
		return err
	}
	return nil
}

// DeleteResource 删除资源，仍有分配记录时返回 availability.ErrResourceInUse
func (s *Service) DeleteResource(ctx context.Context, id string) error {
	r, ok := s.db.GetResource(id)
	if !ok {
		return fmt.Errorf("%w: resource %s", storage.ErrNotFound, id)
	}
	if err := s.db.RemoveResource(id); err != nil {
		return err
	}
	if err := s.store.DeleteResource(ctx, id); err != nil {
		if addErr := s.db.AddResource(r); addErr != nil {
			s.logger.WithResource(id).WithError(addErr).Error("Restore of resource failed")
		}
		return err
	}
	s.logger.WithResource(id).Info("Resource deleted")
	return nil
}

// GetResource 查询资源
func (s *Service) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	return s.store.GetResource(ctx, id)
}

// ListResources 列出资源
func (s *Service) ListResources(ctx context.Context) ([]*model.Resource, error) {
	return s.store.ListResources(ctx)
}

// FindAvailableVirtualRooms 区间内可用的会议室
func (s *Service) FindAvailableVirtualRooms(slot model.Interval, ports int, technologies model.Technologies) []availability.AvailableVirtualRoom {
	return s.db.FindAvailableVirtualRooms(slot, ports, technologies)
}

// IsResourceAvailable 资源在区间内是否可独占
func (s *Service) IsResourceAvailable(id string, slot model.Interval) bool {
	return s.db.IsResourceAvailable(id, slot)
}

type nopRecorder struct{}

func (nopRecorder) RecordPlan(string, time.Duration)                {}
func (nopRecorder) RecordAllocation(model.ReservationType, string) {}
