// Package repository 数据库无关的资源目录与预约存储层
//
// 通过 dbutil.Dialect 接口屏蔽不同数据库的 SQL 差异，
// 所有 SQL 以 PostgreSQL 风格编写，运行时由 Dialect.Rebind() 转换。
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"shongo-controller/internal/shared/storage"
	"shongo-controller/internal/shared/storage/dbutil"
)

// Store 通用存储实现
// 实现了 storage.PersistentStore 接口
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

var _ storage.PersistentStore = (*Store)(nil)

// NewStore 创建通用存储
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// DB 返回底层数据库连接（仅用于测试）
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect 返回当前方言
func (s *Store) Dialect() dbutil.Dialect {
	return s.dialect
}

// rebind 快捷方法：将 PG 风格 SQL 转换为当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

// withTx 在事务中执行 fn，fn 返回错误时回滚
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// wrapError 将驱动错误转换为 storage 包的哨兵错误
func (s *Store) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if s.dialect.IsDuplicateKey(err) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	return err
}

// expectAffected 检查 UPDATE/DELETE 是否命中记录
func expectAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// rowScanner sql.Row 与 sql.Rows 的共同接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// marshalJSON 序列化 JSON 列，nil 切片写为 "[]"
func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

// unmarshalJSON 反序列化 JSON 列，空值忽略
func unmarshalJSON(data []byte, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
