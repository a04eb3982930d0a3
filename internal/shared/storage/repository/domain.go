package repository

import (
	"context"
	"database/sql"

	"shongo-controller/internal/shared/model"
)

const domainColumns = `id, name, short_name, organization, url, allocatable, password_hash, certificate_key, created_at, updated_at`

// === Domain 联邦域 ===

// CreateDomain 创建域
func (s *Store) CreateDomain(ctx context.Context, d *model.Domain) error {
	query := s.rebind(`
		INSERT INTO domains (` + domainColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Name, d.ShortName, d.Organization, d.URL, d.Allocatable,
		d.PasswordHash, d.CertificateKey, d.CreatedAt, d.UpdatedAt)
	return s.wrapError(err)
}

// GetDomain 获取域
func (s *Store) GetDomain(ctx context.Context, id string) (*model.Domain, error) {
	return s.getDomain(ctx, `id = $1`, id)
}

// GetDomainByName 按名称获取域（域间登录使用）
func (s *Store) GetDomainByName(ctx context.Context, name string) (*model.Domain, error) {
	return s.getDomain(ctx, `name = $1`, name)
}

func (s *Store) getDomain(ctx context.Context, where string, arg interface{}) (*model.Domain, error) {
	query := s.rebind(`SELECT ` + domainColumns + ` FROM domains WHERE ` + where)
	d, err := scanDomain(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// ListDomains 列出全部域
func (s *Store) ListDomains(ctx context.Context) ([]*model.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+domainColumns+` FROM domains ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []*model.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// UpdateDomain 更新域
func (s *Store) UpdateDomain(ctx context.Context, d *model.Domain) error {
	query := s.rebind(`
		UPDATE domains
		SET name = $1, short_name = $2, organization = $3, url = $4, allocatable = $5,
		    password_hash = $6, certificate_key = $7, updated_at = $8
		WHERE id = $9
	`)
	result, err := s.db.ExecContext(ctx, query,
		d.Name, d.ShortName, d.Organization, d.URL, d.Allocatable,
		d.PasswordHash, d.CertificateKey, d.UpdatedAt, d.ID)
	if err != nil {
		return s.wrapError(err)
	}
	return expectAffected(result)
}

// DeleteDomain 删除域（开放给该域的资源一并删除）
func (s *Store) DeleteDomain(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM domain_resources WHERE domain_id = $1`), id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM domains WHERE id = $1`), id)
		if err != nil {
			return err
		}
		return expectAffected(result)
	})
}

func scanDomain(scanner rowScanner) (*model.Domain, error) {
	d := &model.Domain{}
	var shortName, organization, url, passwordHash, certificateKey sql.NullString
	err := scanner.Scan(
		&d.ID, &d.Name, &shortName, &organization, &url, &d.Allocatable,
		&passwordHash, &certificateKey, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ShortName = shortName.String
	d.Organization = organization.String
	d.URL = url.String
	d.PasswordHash = passwordHash.String
	d.CertificateKey = certificateKey.String
	return d, nil
}

// === DomainResource 开放给域的资源 ===

// UpsertDomainResource 开放资源给域，已存在时更新价格、优先级和许可数
func (s *Store) UpsertDomainResource(ctx context.Context, dr *model.DomainResource) error {
	query := s.rebind(`
		INSERT INTO domain_resources (domain_id, resource_id, type, license_count, price, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
	` + s.dialect.UpsertConflict("domain_id, resource_id", []string{
		"type = EXCLUDED.type",
		"license_count = EXCLUDED.license_count",
		"price = EXCLUDED.price",
		"priority = EXCLUDED.priority",
	}))
	_, err := s.db.ExecContext(ctx, query,
		dr.DomainID, dr.ResourceID, dr.Type, dr.LicenseCount, dr.Price, dr.Priority)
	return err
}

// GetDomainResource 获取域对某资源的开放记录
func (s *Store) GetDomainResource(ctx context.Context, domainID, resourceID string) (*model.DomainResource, error) {
	query := s.rebind(`
		SELECT domain_id, resource_id, type, license_count, price, priority
		FROM domain_resources WHERE domain_id = $1 AND resource_id = $2
	`)
	dr := &model.DomainResource{}
	err := s.db.QueryRowContext(ctx, query, domainID, resourceID).Scan(
		&dr.DomainID, &dr.ResourceID, &dr.Type, &dr.LicenseCount, &dr.Price, &dr.Priority)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dr, nil
}

// ListDomainResources 列出开放给域的资源，typ 为空表示全部类型
//
// 结果按优先级降序、价格升序排列。
func (s *Store) ListDomainResources(ctx context.Context, domainID string, typ model.DomainCapabilityType) ([]*model.DomainResource, error) {
	query := `SELECT domain_id, resource_id, type, license_count, price, priority
		FROM domain_resources WHERE domain_id = $1`
	args := []interface{}{domainID}
	if typ != "" {
		query += ` AND type = $2`
		args = append(args, typ)
	}
	query += ` ORDER BY priority DESC, price, resource_id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*model.DomainResource
	for rows.Next() {
		dr := &model.DomainResource{}
		if err := rows.Scan(&dr.DomainID, &dr.ResourceID, &dr.Type, &dr.LicenseCount, &dr.Price, &dr.Priority); err != nil {
			return nil, err
		}
		result = append(result, dr)
	}
	return result, rows.Err()
}

// DeleteDomainResource 撤销资源对域的开放
func (s *Store) DeleteDomainResource(ctx context.Context, domainID, resourceID string) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM domain_resources WHERE domain_id = $1 AND resource_id = $2`),
		domainID, resourceID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}
