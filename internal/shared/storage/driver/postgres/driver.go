// Package postgres PostgreSQL 数据库驱动
//
// 提供 PostgreSQL 连接管理、方言实现和 Schema 迁移。
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shongo-controller/internal/shared/storage/dbutil"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// uniqueViolation PostgreSQL 唯一键冲突错误码
const uniqueViolation = "23505"

// Dialect PostgreSQL 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverPostgres
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.RebindToPositional(query)
}

func (d *Dialect) CurrentTimestamp() string {
	return "NOW()"
}

func (d *Dialect) BooleanLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (d *Dialect) UpsertConflict(conflictColumns string, updateExprs []string) string {
	return dbutil.UpsertClause(conflictColumns, updateExprs)
}

func (d *Dialect) IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Open 创建 PostgreSQL 数据库连接
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// NewDialect 创建 PostgreSQL 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

// schema PostgreSQL 建表语句（幂等）
const schema = `
CREATE TABLE IF NOT EXISTS resources (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    description TEXT,
    parent_id VARCHAR(64),
    allocatable BOOLEAN NOT NULL DEFAULT FALSE,
    address VARCHAR(255),
    technologies JSONB NOT NULL DEFAULT '[]',
    capabilities JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reservations (
    id VARCHAR(64) PRIMARY KEY,
    request_id VARCHAR(64) NOT NULL,
    type VARCHAR(32) NOT NULL,
    status VARCHAR(32) NOT NULL,
    slot_start BIGINT NOT NULL,
    slot_end BIGINT NOT NULL,
    resource_id VARCHAR(64),
    port_count INTEGER NOT NULL DEFAULT 0,
    technologies JSONB NOT NULL DEFAULT '[]',
    domain_id VARCHAR(64),
    created_by VARCHAR(200),
    description TEXT,
    message TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reservations_request ON reservations (request_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reservations_resource ON reservations (resource_id);
CREATE INDEX IF NOT EXISTS idx_reservations_slot ON reservations (slot_start, slot_end);

CREATE TABLE IF NOT EXISTS allocated_resources (
    id VARCHAR(64) PRIMARY KEY,
    resource_id VARCHAR(64) NOT NULL REFERENCES resources(id),
    reservation_id VARCHAR(64) NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
    slot_start BIGINT NOT NULL,
    slot_end BIGINT NOT NULL,
    port_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_allocated_resources_slot ON allocated_resources (slot_start, slot_end);
CREATE INDEX IF NOT EXISTS idx_allocated_resources_reservation ON allocated_resources (reservation_id);

CREATE TABLE IF NOT EXISTS domains (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(200) NOT NULL UNIQUE,
    short_name VARCHAR(64),
    organization VARCHAR(200),
    url VARCHAR(500),
    allocatable BOOLEAN NOT NULL DEFAULT FALSE,
    password_hash VARCHAR(200),
    certificate_key VARCHAR(500),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS domain_resources (
    domain_id VARCHAR(64) NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
    resource_id VARCHAR(64) NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
    type VARCHAR(32) NOT NULL,
    license_count INTEGER NOT NULL DEFAULT 0,
    price INTEGER NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (domain_id, resource_id)
);
`
