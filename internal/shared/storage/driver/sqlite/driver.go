// Package sqlite SQLite 数据库驱动
//
// 提供 SQLite 连接管理、方言实现和自动 Schema 迁移。
// 适用于开发、测试和轻量级部署场景。
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"shongo-controller/internal/shared/storage/dbutil"

	_ "modernc.org/sqlite"
)

// Dialect SQLite 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverSQLite
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.StripPgCasts(dbutil.RebindToQuestion(query))
}

func (d *Dialect) CurrentTimestamp() string {
	return "datetime('now')"
}

func (d *Dialect) BooleanLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *Dialect) UpsertConflict(conflictColumns string, updateExprs []string) string {
	return dbutil.UpsertClause(conflictColumns, updateExprs)
}

// IsDuplicateKey modernc 驱动不导出稳定的错误码常量，按消息判断
func (d *Dialect) IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Open 创建 SQLite 数据库连接
// dsn 示例: "file:shongo.db?cache=shared&mode=rwc" 或 ":memory:"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// 内存库每个连接都是独立的数据库，必须固定为单连接
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// SQLite 优化设置
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return db, nil
}

// NewDialect 创建 SQLite 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

// schema SQLite 完整建表语句（等价于 PostgreSQL 建表语句）
const schema = `
-- resources
CREATE TABLE IF NOT EXISTS resources (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    description TEXT,
    parent_id VARCHAR(64),
    allocatable BOOLEAN NOT NULL DEFAULT 0,
    address VARCHAR(255),
    technologies TEXT NOT NULL DEFAULT '[]',
    capabilities TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);

-- reservations
CREATE TABLE IF NOT EXISTS reservations (
    id VARCHAR(64) PRIMARY KEY,
    request_id VARCHAR(64) NOT NULL,
    type VARCHAR(32) NOT NULL,
    status VARCHAR(32) NOT NULL,
    slot_start INTEGER NOT NULL,
    slot_end INTEGER NOT NULL,
    resource_id VARCHAR(64),
    port_count INTEGER NOT NULL DEFAULT 0,
    technologies TEXT NOT NULL DEFAULT '[]',
    domain_id VARCHAR(64),
    created_by VARCHAR(200),
    description TEXT,
    message TEXT,
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_reservations_request ON reservations (request_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reservations_resource ON reservations (resource_id);
CREATE INDEX IF NOT EXISTS idx_reservations_slot ON reservations (slot_start, slot_end);

-- allocated_resources
CREATE TABLE IF NOT EXISTS allocated_resources (
    id VARCHAR(64) PRIMARY KEY,
    resource_id VARCHAR(64) NOT NULL REFERENCES resources(id),
    reservation_id VARCHAR(64) NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
    slot_start INTEGER NOT NULL,
    slot_end INTEGER NOT NULL,
    port_count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_allocated_resources_slot ON allocated_resources (slot_start, slot_end);
CREATE INDEX IF NOT EXISTS idx_allocated_resources_reservation ON allocated_resources (reservation_id);

-- domains
CREATE TABLE IF NOT EXISTS domains (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(200) NOT NULL UNIQUE,
    short_name VARCHAR(64),
    organization VARCHAR(200),
    url VARCHAR(500),
    allocatable BOOLEAN NOT NULL DEFAULT 0,
    password_hash VARCHAR(200),
    certificate_key VARCHAR(500),
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);

-- domain_resources
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
