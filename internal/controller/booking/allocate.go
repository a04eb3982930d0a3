package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shongo-controller/internal/controller/availability"
	"shongo-controller/internal/controller/scheduler"
	"shongo-controller/internal/shared/eventbus"
	"shongo-controller/internal/shared/model"
)

// AllocateRoom 为会议分配会议室（或直连方案）
//
// 调度失败时返回 scheduler 的错误（ErrNotEnoughEndpoints、ErrNoAvailableVirtualRoom、
// ErrNotEnoughPorts）；新请求的失败会记录为 failed 预约。
func (s *Service) AllocateRoom(ctx context.Context, req RoomRequest) (*model.Reservation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.RequestID == "" {
		req.RequestID = s.newID()
	}

	previous, previousAllocs, err := s.activeReservation(ctx, req.RequestID, req.DomainID)
	if err != nil {
		return nil, err
	}
	if err := s.loadSlot(ctx, req.Slot); err != nil {
		return nil, err
	}

	endpoints, err := s.endpoints(req.Participants)
	if err != nil {
		return nil, err
	}

	cfg := *s.cfg
	if req.CallInitiation != "" {
		cfg.CallInitiation = req.CallInitiation
	}
	finder := newReplacingFinder(s.db, previousAllocs)
	task := scheduler.NewTask(req.Slot, finder, s.db.Topology(), &cfg)
	task.AddEndpoints(endpoints...)

	start := time.Now()
	plan, err := task.FindPlan()
	s.recorder.RecordPlan(planResult(err), time.Since(start))
	if err != nil {
		return nil, s.fail(ctx, previous, s.newReservation(req.RequestID, model.ReservationTypeRoom, req.Slot, req.DomainID, req.CreatedBy, req.Description), err)
	}

	r := s.newReservation(req.RequestID, model.ReservationTypeRoom, req.Slot, req.DomainID, req.CreatedBy, req.Description)
	r.Technologies = plan.Technologies()

	var alloc *model.AllocatedResource
	if vr := plan.VirtualRoom; vr != nil {
		r.ResourceID = vr.Room.ID
		r.PortCount = vr.PortCount
		alloc = s.newAllocation(r, vr.Room.ID, vr.PortCount)
	}

	if err := s.commit(ctx, previous, previousAllocs, r, alloc); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, previous, r, plan)
	return r, nil
}

// AllocateResource 独占预约资源
func (s *Service) AllocateResource(ctx context.Context, req ResourceRequest) (*model.Reservation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.RequestID == "" {
		req.RequestID = s.newID()
	}

	previous, previousAllocs, err := s.activeReservation(ctx, req.RequestID, req.DomainID)
	if err != nil {
		return nil, err
	}
	if err := s.loadSlot(ctx, req.Slot); err != nil {
		return nil, err
	}

	r := s.newReservation(req.RequestID, model.ReservationTypeResource, req.Slot, req.DomainID, req.CreatedBy, req.Description)
	r.ResourceID = req.ResourceID
	resource, ok := s.db.GetResource(req.ResourceID)
	if !ok {
		return nil, s.fail(ctx, previous, r, fmt.Errorf("%w: %s", availability.ErrResourceNotMaintained, req.ResourceID))
	}
	r.Technologies = resource.Technologies

	alloc := s.newAllocation(r, req.ResourceID, 0)
	if err := s.commit(ctx, previous, previousAllocs, r, alloc); err != nil {
		if availability.IsCapacityError(err) {
			return nil, s.fail(ctx, previous, r, err)
		}
		return nil, err
	}
	s.afterCommit(ctx, previous, r, nil)
	return r, nil
}

// activeReservation 请求当前的 allocated 预约及其分配（修改场景）
func (s *Service) activeReservation(ctx context.Context, requestID, domainID string) (*model.Reservation, []*model.AllocatedResource, error) {
	existing, err := s.store.GetReservationByRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if existing == nil || !existing.IsActive() {
		return nil, nil, nil
	}
	if existing.DomainID != domainID {
		return nil, nil, fmt.Errorf("%w: %s", ErrForeignRequest, requestID)
	}
	allocs, err := s.store.ListAllocatedResourcesByReservation(ctx, existing.ID)
	if err != nil {
		return nil, nil, err
	}
	return existing, allocs, nil
}

// endpoints 把参与者转换为调度端点
func (s *Service) endpoints(participants []Participant) ([]scheduler.Endpoint, error) {
	result := make([]scheduler.Endpoint, 0, len(participants))
	seen := make(map[string]int, len(participants))
	for i, p := range participants {
		switch {
		case p.ResourceID != "":
			if first, dup := seen[p.ResourceID]; dup {
				return nil, fmt.Errorf("%w: participants %d and %d are the same resource %s", ErrInvalidRequest, first, i, p.ResourceID)
			}
			seen[p.ResourceID] = i
			r, ok := s.db.GetResource(p.ResourceID)
			if !ok {
				return nil, fmt.Errorf("%w: participant %d: unknown resource %s", ErrInvalidRequest, i, p.ResourceID)
			}
			result = append(result, scheduler.NewDeviceEndpoint(r))
		case p.Standalone:
			result = append(result, scheduler.NewStandaloneEndpoint(fmt.Sprintf("participant-%d", i+1), p.Technologies...))
		default:
			result = append(result, scheduler.NewExternalEndpoint(fmt.Sprintf("participant-%d", i+1), p.Count, p.Technologies...))
		}
	}
	return result, nil
}

func (s *Service) newReservation(requestID string, typ model.ReservationType, slot model.Interval, domainID, createdBy, description string) *model.Reservation {
	now := s.now()
	return &model.Reservation{
		ID:          s.newID(),
		RequestID:   requestID,
		Type:        typ,
		Status:      model.ReservationStatusAllocated,
		Slot:        slot,
		DomainID:    domainID,
		CreatedBy:   createdBy,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *Service) newAllocation(r *model.Reservation, resourceID string, ports int) *model.AllocatedResource {
	return &model.AllocatedResource{
		ID:            s.newID(),
		ResourceID:    resourceID,
		ReservationID: r.ID,
		Slot:          r.Slot,
		PortCount:     ports,
		CreatedAt:     r.CreatedAt,
	}
}

// commit 校验并登记分配，然后持久化；持久化失败时恢复可用性数据库
func (s *Service) commit(ctx context.Context, previous *model.Reservation, previousAllocs []*model.AllocatedResource, r *model.Reservation, alloc *model.AllocatedResource) error {
	// 只有加载窗口内的旧分配常驻内存
	var lifted []*model.AllocatedResource
	for _, a := range previousAllocs {
		if _, ok := s.db.GetAllocatedResource(a.ID); ok {
			lifted = append(lifted, a)
		}
	}
	liftedIDs := make([]string, len(lifted))
	for i, a := range lifted {
		liftedIDs[i] = a.ID
	}

	var allocs []*model.AllocatedResource
	if alloc != nil {
		if err := s.db.TryAllocate(alloc, liftedIDs...); err != nil {
			s.recorder.RecordAllocation(r.Type, "rejected")
			return err
		}
		allocs = append(allocs, alloc)
	} else {
		for _, id := range liftedIDs {
			if err := s.db.RemoveAllocatedResource(id); err != nil {
				return err
			}
		}
	}

	var err error
	if previous != nil {
		r.RequestID = previous.RequestID
		err = s.store.ReplaceReservation(ctx, previous.ID, r, allocs)
	} else {
		err = s.store.CreateReservation(ctx, r, allocs)
	}
	if err != nil {
		if alloc != nil {
			if rmErr := s.db.RemoveAllocatedResource(alloc.ID); rmErr != nil {
				s.logger.WithReservation(r.ID).WithError(rmErr).Error("Rollback of allocation failed")
			}
		}
		for _, a := range lifted {
			if addErr := s.db.AddAllocatedResource(a); addErr != nil {
				s.logger.WithReservation(previous.ID).WithError(addErr).Error("Restore of previous allocation failed")
			}
		}
		s.recorder.RecordAllocation(r.Type, "error")
		return fmt.Errorf("persist reservation: %w", err)
	}
	s.recorder.RecordAllocation(r.Type, "allocated")
	return nil
}

// afterCommit 发布事件并投递设备命令，失败只记录日志（预约已生效）
func (s *Service) afterCommit(ctx context.Context, previous, r *model.Reservation, plan *scheduler.Plan) {
	eventType := eventbus.EventReservationAllocated
	if previous != nil {
		eventType = eventbus.EventReservationModified
	}
	s.publish(ctx, eventType, r, nil)
	s.logger.AllocationLog(eventType, r.ID, r.ResourceID,
		"request_id", r.RequestID,
		"slot", r.Slot.String(),
		"port_count", r.PortCount,
	)

	if s.dispatcher == nil {
		return
	}
	if previous != nil {
		if err := s.dispatcher.DispatchDeleteRoom(ctx, previous); err != nil {
			s.logger.WithReservation(previous.ID).WithError(err).Warn("Dispatch delete room failed")
		}
	}
	if plan != nil {
		if err := s.dispatcher.DispatchPlan(ctx, r.ID, plan); err != nil {
			s.logger.WithReservation(r.ID).WithError(err).Warn("Dispatch plan failed")
		}
	}
}

// fail 记录调度失败
//
// 新请求写入一条 failed 预约，供跨域查询返回失败状态；修改失败时原预约保持不变。
func (s *Service) fail(ctx context.Context, previous, r *model.Reservation, cause error) error {
	r.Status = model.ReservationStatusFailed
	r.Message = cause.Error()
	r.ResourceID = ""
	if previous == nil {
		if err := s.store.CreateReservation(ctx, r, nil); err != nil {
			s.logger.WithReservation(r.ID).WithError(err).Error("Store failed reservation")
		}
	}
	s.recorder.RecordAllocation(r.Type, "failed")
	s.publish(ctx, eventbus.EventReservationFailed, r, map[string]interface{}{"error": cause.Error()})
	s.logger.WithReservation(r.ID).WithError(cause).Info("Reservation request failed", "request_id", r.RequestID)
	return cause
}

func (s *Service) publish(ctx context.Context, eventType string, r *model.Reservation, data map[string]interface{}) {
	event := &eventbus.ReservationEvent{
		Type:          eventType,
		ReservationID: r.ID,
		RequestID:     r.RequestID,
		ResourceID:    r.ResourceID,
		DomainID:      r.DomainID,
		Slot:          r.Slot.String(),
		Timestamp:     s.now(),
		Data:          data,
	}
	if err := s.events.PublishReservationEvent(ctx, event); err != nil {
		s.logger.WithReservation(r.ID).WithError(err).Warn("Publish reservation event failed", "type", eventType)
	}
}

func planResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, scheduler.ErrNotEnoughPorts):
		return "not_enough_ports"
	case errors.Is(err, scheduler.ErrNoAvailableVirtualRoom):
		return "no_virtual_room"
	case errors.Is(err, scheduler.ErrNotEnoughEndpoints):
		return "not_enough_endpoints"
	default:
		return "error"
	}
}
