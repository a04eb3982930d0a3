package mongostore

import (
	"context"

	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// DomainStore
// ============================================================================

func (s *Store) CreateDomain(ctx context.Context, d *model.Domain) error {
	return insertOne(ctx, s.col(ColDomains), d)
}

func (s *Store) GetDomain(ctx context.Context, id string) (*model.Domain, error) {
	return findOne[model.Domain](ctx, s.col(ColDomains), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetDomainByName(ctx context.Context, name string) (*model.Domain, error) {
	return findOne[model.Domain](ctx, s.col(ColDomains), bson.D{{Key: "name", Value: name}})
}

func (s *Store) ListDomains(ctx context.Context) ([]*model.Domain, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	return findMany[model.Domain](ctx, s.col(ColDomains), bson.D{}, opts)
}

func (s *Store) UpdateDomain(ctx context.Context, d *model.Domain) error {
	return updateFields(ctx, s.col(ColDomains), d.ID, bson.D{
		{Key: "name", Value: d.Name},
		{Key: "short_name", Value: d.ShortName},
		{Key: "organization", Value: d.Organization},
		{Key: "url", Value: d.URL},
		{Key: "allocatable", Value: d.Allocatable},
		{Key: "password_hash", Value: d.PasswordHash},
		{Key: "certificate_key", Value: d.CertificateKey},
		{Key: "updated_at", Value: d.UpdatedAt},
	})
}

func (s *Store) DeleteDomain(ctx context.Context, id string) error {
	if err := deleteByID(ctx, s.col(ColDomains), id); err != nil {
		return err
	}
	_, err := s.col(ColDomainResources).DeleteMany(ctx, bson.D{{Key: "domain_id", Value: id}})
	return wrapError(err)
}

// ============================================================================
// DomainResource
// ============================================================================

func domainResourceKey(domainID, resourceID string) bson.D {
	return bson.D{{Key: "domain_id", Value: domainID}, {Key: "resource_id", Value: resourceID}}
}

func (s *Store) UpsertDomainResource(ctx context.Context, dr *model.DomainResource) error {
	opts := options.UpdateOne().SetUpsert(true)
	_, err := s.col(ColDomainResources).UpdateOne(ctx,
		domainResourceKey(dr.DomainID, dr.ResourceID),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "type", Value: dr.Type},
			{Key: "license_count", Value: dr.LicenseCount},
			{Key: "price", Value: dr.Price},
			{Key: "priority", Value: dr.Priority},
		}}}, opts)
	return wrapError(err)
}

func (s *Store) GetDomainResource(ctx context.Context, domainID, resourceID string) (*model.DomainResource, error) {
	return findOne[model.DomainResource](ctx, s.col(ColDomainResources), domainResourceKey(domainID, resourceID))
}

func (s *Store) ListDomainResources(ctx context.Context, domainID string, typ model.DomainCapabilityType) ([]*model.DomainResource, error) {
	filter := bson.D{{Key: "domain_id", Value: domainID}}
	if typ != "" {
		filter = append(filter, bson.E{Key: "type", Value: typ})
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "priority", Value: -1},
		{Key: "price", Value: 1},
		{Key: "resource_id", Value: 1},
	})
	return findMany[model.DomainResource](ctx, s.col(ColDomainResources), filter, opts)
}

func (s *Store) DeleteDomainResource(ctx context.Context, domainID, resourceID string) error {
	res, err := s.col(ColDomainResources).DeleteOne(ctx, domainResourceKey(domainID, resourceID))
	if err != nil {
		return wrapError(err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
