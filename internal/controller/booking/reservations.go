package booking

import (
	"context"
	"fmt"

	"shongo-controller/internal/shared/eventbus"
	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/storage"
)

// GetReservation 查询预约，不存在时返回 (nil, nil)
func (s *Service) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// GetByRequest 预约请求当前的预约，不存在时返回 (nil, nil)
func (s *Service) GetByRequest(ctx context.Context, requestID string) (*model.Reservation, error) {
	return s.store.GetReservationByRequest(ctx, requestID)
}

// ListReservations 列出预约
func (s *Service) ListReservations(ctx context.Context, filter model.ReservationFilter) ([]*model.Reservation, error) {
	return s.store.ListReservations(ctx, filter)
}

// DeleteReservation 删除预约并释放其分配
func (s *Service) DeleteReservation(ctx context.Context, id string) error {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: reservation %s", storage.ErrNotFound, id)
	}
	return s.delete(ctx, r)
}

// DeleteByRequest 删除预约请求当前的预约
//
// 请求不存在或已删除时返回 nil（幂等）；domainID 与预约所属域不一致时返回 ErrForeignRequest。
func (s *Service) DeleteByRequest(ctx context.Context, requestID, domainID string) error {
	r, err := s.store.GetReservationByRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if r == nil || r.Status == model.ReservationStatusDeleted {
		return nil
	}
	if r.DomainID != domainID {
		return fmt.Errorf("%w: %s", ErrForeignRequest, requestID)
	}
	return s.delete(ctx, r)
}

func (s *Service) delete(ctx context.Context, r *model.Reservation) error {
	allocs, err := s.store.ListAllocatedResourcesByReservation(ctx, r.ID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteReservation(ctx, r.ID); err != nil {
		return err
	}
	for _, a := range allocs {
		if _, ok := s.db.GetAllocatedResource(a.ID); !ok {
			continue
		}
		if err := s.db.RemoveAllocatedResource(a.ID); err != nil {
			s.logger.WithReservation(r.ID).WithError(err).Error("Release of allocation failed")
		}
	}

	wasActive := r.IsActive()
	r.Status = model.ReservationStatusDeleted
	s.publish(ctx, eventbus.EventReservationDeleted, r, nil)
	s.logger.AllocationLog(eventbus.EventReservationDeleted, r.ID, r.ResourceID, "request_id", r.RequestID)

	if wasActive && s.dispatcher != nil {
		if err := s.dispatcher.DispatchDeleteRoom(ctx, r); err != nil {
			s.logger.WithReservation(r.ID).WithError(err).Warn("Dispatch delete room failed")
		}
	}
	return nil
}
