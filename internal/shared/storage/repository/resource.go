package repository

import (
	"context"
	"database/sql"
	"fmt"

	"shongo-controller/internal/shared/model"
)

const resourceColumns = `id, name, description, parent_id, allocatable, address, technologies, capabilities, created_at, updated_at`

// CreateResource 创建资源
func (s *Store) CreateResource(ctx context.Context, r *model.Resource) error {
	techJSON, err := marshalJSON(r.Technologies)
	if err != nil {
		return err
	}
	capsJSON, err := marshalJSON(r.Capabilities)
	if err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO resources (` + resourceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Name, r.Description, r.ParentID, r.Allocatable, r.Address,
		techJSON, capsJSON, r.CreatedAt, r.UpdatedAt)
	return s.wrapError(err)
}

// GetResource 获取资源
func (s *Store) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	query := s.rebind(`SELECT ` + resourceColumns + ` FROM resources WHERE id = $1`)
	r, err := scanResource(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListResources 列出全部资源（按 ID 排序）
func (s *Store) ListResources(ctx context.Context) ([]*model.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []*model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// UpdateResource 更新资源
func (s *Store) UpdateResource(ctx context.Context, r *model.Resource) error {
	techJSON, err := marshalJSON(r.Technologies)
	if err != nil {
		return err
	}
	capsJSON, err := marshalJSON(r.Capabilities)
	if err != nil {
		return err
	}

	query := s.rebind(`
		UPDATE resources
		SET name = $1, description = $2, parent_id = $3, allocatable = $4, address = $5,
		    technologies = $6, capabilities = $7, updated_at = $8
		WHERE id = $9
	`)
	result, err := s.db.ExecContext(ctx, query,
		r.Name, r.Description, r.ParentID, r.Allocatable, r.Address,
		techJSON, capsJSON, r.UpdatedAt, r.ID)
	if err != nil {
		return s.wrapError(err)
	}
	return expectAffected(result)
}

// DeleteResource 删除资源
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM resources WHERE id = $1`), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// scanResource 从数据库行扫描 Resource
func scanResource(scanner rowScanner) (*model.Resource, error) {
	r := &model.Resource{}
	var description, parentID, address sql.NullString
	var techJSON, capsJSON []byte
	err := scanner.Scan(
		&r.ID, &r.Name, &description, &parentID, &r.Allocatable, &address,
		&techJSON, &capsJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Description = description.String
	r.ParentID = parentID.String
	r.Address = address.String
	if err := unmarshalJSON(techJSON, &r.Technologies); err != nil {
		return nil, fmt.Errorf("resource %s technologies: %w", r.ID, err)
	}
	if err := unmarshalJSON(capsJSON, &r.Capabilities); err != nil {
		return nil, fmt.Errorf("resource %s capabilities: %w", r.ID, err)
	}
	return r, nil
}
