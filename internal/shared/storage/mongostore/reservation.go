package mongostore

import (
	"context"
	"fmt"
	"log"

	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ReservationStore
//
// 单机 MongoDB 不支持多文档事务，预约与分配记录按顺序写入，
// 后续写入失败时删除已写入的文档。
// ============================================================================

func (s *Store) CreateReservation(ctx context.Context, r *model.Reservation, allocations []*model.AllocatedResource) error {
	if err := insertOne(ctx, s.col(ColReservations), r); err != nil {
		return err
	}
	if err := s.insertAllocations(ctx, allocations); err != nil {
		s.rollbackReservation(ctx, r.ID)
		return err
	}
	return nil
}

func (s *Store) ReplaceReservation(ctx context.Context, previousID string, r *model.Reservation, allocations []*model.AllocatedResource) error {
	previous, err := s.ListAllocatedResourcesByReservation(ctx, previousID)
	if err != nil {
		return err
	}

	err = updateWhere(ctx, s.col(ColReservations),
		bson.D{{Key: "_id", Value: previousID}, {Key: "status", Value: model.ReservationStatusAllocated}},
		bson.D{{Key: "status", Value: model.ReservationStatusDeleted}, {Key: "updated_at", Value: r.UpdatedAt}})
	if err == storage.ErrNotFound {
		return fmt.Errorf("%w: reservation %s is not allocated", storage.ErrConflict, previousID)
	}
	if err != nil {
		return err
	}

	restore := func() {
		if err := updateFields(ctx, s.col(ColReservations), previousID, bson.D{{Key: "status", Value: model.ReservationStatusAllocated}}); err != nil {
			log.Printf("[MongoStore] restore reservation %s failed: %v", previousID, err)
		}
		if err := s.insertAllocations(ctx, previous); err != nil {
			log.Printf("[MongoStore] restore allocations of %s failed: %v", previousID, err)
		}
	}

	if _, err := s.col(ColAllocatedResources).DeleteMany(ctx, bson.D{{Key: "reservation_id", Value: previousID}}); err != nil {
		restore()
		return wrapError(err)
	}
	if err := s.CreateReservation(ctx, r, allocations); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) insertAllocations(ctx context.Context, allocations []*model.AllocatedResource) error {
	if len(allocations) == 0 {
		return nil
	}
	docs := make([]interface{}, len(allocations))
	for i, a := range allocations {
		docs[i] = a
	}
	_, err := s.col(ColAllocatedResources).InsertMany(ctx, docs)
	return wrapError(err)
}

// rollbackReservation 删除写了一半的预约
func (s *Store) rollbackReservation(ctx context.Context, id string) {
	if _, err := s.col(ColAllocatedResources).DeleteMany(ctx, bson.D{{Key: "reservation_id", Value: id}}); err != nil {
		log.Printf("[MongoStore] rollback allocations of %s failed: %v", id, err)
	}
	if err := deleteByID(ctx, s.col(ColReservations), id); err != nil {
		log.Printf("[MongoStore] rollback reservation %s failed: %v", id, err)
	}
}

func (s *Store) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return findOne[model.Reservation](ctx, s.col(ColReservations), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetReservationByRequest(ctx context.Context, requestID string) (*model.Reservation, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var result model.Reservation

	// 优先未删除的预约
	err := s.col(ColReservations).FindOne(ctx, bson.D{
		{Key: "request_id", Value: requestID},
		{Key: "status", Value: bson.D{{Key: "$ne", Value: model.ReservationStatusDeleted}}},
	}, opts).Decode(&result)
	if err == nil {
		return &result, nil
	}
	if wrapError(err) != storage.ErrNotFound {
		return nil, wrapError(err)
	}

	err = s.col(ColReservations).FindOne(ctx, bson.D{{Key: "request_id", Value: requestID}}, opts).Decode(&result)
	if err != nil {
		if wrapError(err) == storage.ErrNotFound {
			return nil, nil
		}
		return nil, wrapError(err)
	}
	return &result, nil
}

func (s *Store) ListReservations(ctx context.Context, filter model.ReservationFilter) ([]*model.Reservation, error) {
	f := bson.D{}
	if len(filter.ResourceIDs) > 0 {
		f = append(f, bson.E{Key: "resource_id", Value: bson.D{{Key: "$in", Value: filter.ResourceIDs}}})
	}
	if filter.DomainID != "" {
		f = append(f, bson.E{Key: "domain_id", Value: filter.DomainID})
	}
	if filter.Status != "" {
		f = append(f, bson.E{Key: "status", Value: filter.Status})
	}
	if filter.Slot != nil {
		f = append(f, overlapFilter("slot", filter.Slot.Start, filter.Slot.End)...)
	}

	opts := options.Find().SetSort(bson.D{{Key: "slot.start", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return findMany[model.Reservation](ctx, s.col(ColReservations), f, opts)
}

func (s *Store) DeleteReservation(ctx context.Context, id string) error {
	if err := updateFields(ctx, s.col(ColReservations), id, bson.D{{Key: "status", Value: model.ReservationStatusDeleted}}); err != nil {
		return err
	}
	_, err := s.col(ColAllocatedResources).DeleteMany(ctx, bson.D{{Key: "reservation_id", Value: id}})
	return wrapError(err)
}

func (s *Store) ListAllocatedResources(ctx context.Context, window model.Interval) ([]*model.AllocatedResource, error) {
	opts := options.Find().SetSort(bson.D{{Key: "slot.start", Value: 1}, {Key: "_id", Value: 1}})
	return findMany[model.AllocatedResource](ctx, s.col(ColAllocatedResources),
		overlapFilter("slot", window.Start, window.End), opts)
}

func (s *Store) ListAllocatedResourcesByReservation(ctx context.Context, reservationID string) ([]*model.AllocatedResource, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return findMany[model.AllocatedResource](ctx, s.col(ColAllocatedResources),
		bson.D{{Key: "reservation_id", Value: reservationID}}, opts)
}
