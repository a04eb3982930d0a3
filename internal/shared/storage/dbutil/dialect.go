// Package dbutil 提供数据库方言抽象和工具函数
//
// 通过 Dialect 接口屏蔽不同数据库（PostgreSQL、SQLite）的 SQL 差异，
// 使 repository 层可以编写与数据库无关的业务逻辑。
package dbutil

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"
)

// Dialect 数据库方言接口
//
// 不同数据库的 SQL 语法差异通过该接口屏蔽：
//   - 占位符：PostgreSQL 用 $1, $2；SQLite 用 ?
//   - 时间函数：PostgreSQL 用 NOW()；SQLite 用 datetime('now')
//   - UPSERT：冲突子句
//   - 唯一键冲突的错误类型
type Dialect interface {
	// DriverType 返回驱动类型标识
	DriverType() DriverType

	// Rebind 将 PostgreSQL 风格的占位符 ($1, $2, ...) 转换为目标数据库的占位符格式
	Rebind(query string) string

	// CurrentTimestamp 返回当前时间戳的 SQL 表达式
	CurrentTimestamp() string

	// BooleanLiteral 返回布尔字面量
	BooleanLiteral(b bool) string

	// UpsertConflict 生成 UPSERT 的冲突处理子句
	// conflictColumns: 冲突检测列，如 "domain_id, resource_id"
	// updateExprs: 更新表达式列表，如 "price = EXCLUDED.price"
	UpsertConflict(conflictColumns string, updateExprs []string) string

	// IsDuplicateKey 错误是否为唯一键冲突
	IsDuplicateKey(err error) bool

	// AutoMigrate 自动创建/迁移数据库 Schema
	AutoMigrate(db *sql.DB) error
}

// pgPlaceholderRe 匹配 PostgreSQL 风格占位符 $1, $2, ...
var pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)

// pgCastRe 匹配 PostgreSQL 类型转换 ::type
var pgCastRe = regexp.MustCompile(`::(\w+)`)

// RebindToPositional 保持 $N 占位符不变（PostgreSQL 专用）
func RebindToPositional(query string) string {
	return query
}

// RebindToQuestion 将 $N 占位符转换为 ? （SQLite 专用）
func RebindToQuestion(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?")
}

// StripPgCasts 去除 PostgreSQL 类型转换 (::varchar, ::text 等)
func StripPgCasts(query string) string {
	return pgCastRe.ReplaceAllString(query, "")
}

// UpsertClause 通用的 ON CONFLICT ... DO UPDATE 子句（PostgreSQL 与 SQLite 语法相同）
func UpsertClause(conflictColumns string, updateExprs []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", conflictColumns, strings.Join(updateExprs, ", "))
}

// BuildDynamicQuery 构建动态 WHERE 条件的查询
// 根据方言自动调整占位符
func BuildDynamicQuery(d Dialect, baseQuery string, conditions []string, args []interface{}) (string, []interface{}) {
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	return d.Rebind(baseQuery), args
}

// PlaceholderList 生成指定数量的占位符列表，如 "$1, $2, $3"（未 Rebind）
func PlaceholderList(start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// ToMillis 时间转为 UTC 毫秒时间戳（预约时间段以整数存储，两种数据库比较语义一致）
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis 毫秒时间戳转为 UTC 时间
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
