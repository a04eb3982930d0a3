package mongostore

import (
	"context"

	"shongo-controller/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ResourceStore
// ============================================================================

func (s *Store) CreateResource(ctx context.Context, r *model.Resource) error {
	return insertOne(ctx, s.col(ColResources), r)
}

func (s *Store) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	return findOne[model.Resource](ctx, s.col(ColResources), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) ListResources(ctx context.Context) ([]*model.Resource, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return findMany[model.Resource](ctx, s.col(ColResources), bson.D{}, opts)
}

func (s *Store) UpdateResource(ctx context.Context, r *model.Resource) error {
	return updateFields(ctx, s.col(ColResources), r.ID, bson.D{
		{Key: "name", Value: r.Name},
		{Key: "description", Value: r.Description},
		{Key: "parent_id", Value: r.ParentID},
		{Key: "allocatable", Value: r.Allocatable},
		{Key: "address", Value: r.Address},
		{Key: "technologies", Value: r.Technologies},
		{Key: "capabilities", Value: r.Capabilities},
		{Key: "updated_at", Value: r.UpdatedAt},
	})
}

func (s *Store) DeleteResource(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColResources), id)
}
