package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// buildDatabaseURL 根据驱动类型构建数据库连接字符串
func buildDatabaseURL(db DatabaseConfig, password string) string {
	switch strings.ToLower(db.Driver) {
	case "sqlite":
		dbPath := db.Path
		if dbPath == "" {
			dbPath = "/var/lib/shongo/shongo.db"
		}
		if dbPath == ":memory:" {
			return dbPath
		}
		return fmt.Sprintf("file:%s?cache=shared&mode=rwc", dbPath)
	case "mongodb":
		if db.URI != "" {
			return db.URI
		}
		if db.User != "" && password != "" {
			return fmt.Sprintf("mongodb://%s:%s@%s:%d", db.User, password, db.Host, db.Port)
		}
		return fmt.Sprintf("mongodb://%s:%d", db.Host, db.Port)
	default: // postgres
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			db.User, password, db.Host, db.Port, db.Name, db.SSLMode)
	}
}

// detectDatabaseDriver 检测数据库驱动类型
// 优先级：YAML driver 字段 > DATABASE_URL 前缀自动检测 > 默认 sqlite
func detectDatabaseDriver(yamlDriver, databaseURL string) string {
	// 1. YAML 显式指定
	if d := strings.ToLower(yamlDriver); d == "sqlite" || d == "postgres" || d == "mongodb" {
		return d
	}
	// 2. 从 DATABASE_URL 前缀自动检测
	if strings.HasPrefix(databaseURL, "file:") || strings.HasPrefix(databaseURL, "sqlite:") || databaseURL == ":memory:" {
		return "sqlite"
	}
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return "postgres"
	}
	if strings.HasPrefix(databaseURL, "mongodb://") || strings.HasPrefix(databaseURL, "mongodb+srv://") {
		return "mongodb"
	}
	// 3. 默认 sqlite（单机部署）
	return "sqlite"
}

// buildRedisURL 构建 Redis 连接字符串，未配置时返回空串
func buildRedisURL(redis RedisConfig) string {
	if redis.URL != "" {
		return redis.URL
	}
	if redis.Host == "" {
		return ""
	}
	if redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", redis.Password, redis.Host, redis.Port, redis.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

var passwordRe = regexp.MustCompile(`(://[^:/]*:)([^@]+)(@)`)

// maskPassword 隐藏密码
func maskPassword(url string) string {
	return passwordRe.ReplaceAllString(url, "${1}***${3}")
}

// parseEnv 解析环境字符串
func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

// getEnv 获取环境变量，支持默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// RedisEnabled 是否配置了 Redis
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Driver: %s, DB: %s, Redis: %s, Domain: %s}",
		c.Env, c.DatabaseDriver, maskPassword(c.DatabaseURL), maskPassword(c.RedisURL), c.InterDomain.LocalDomain)
}

// validate 验证并填充调度器默认值
func (s *SchedulerConfig) validate() error {
	if s.Ranking == "" {
		s.Ranking = "capacity"
	}
	if s.CallInitiation == "" {
		s.CallInitiation = "VIRTUAL_ROOM"
	}
	switch s.Ranking {
	case "capacity", "fullness":
	default:
		return fmt.Errorf("scheduler.ranking: unknown value %q", s.Ranking)
	}
	switch s.CallInitiation {
	case "VIRTUAL_ROOM", "TERMINAL":
	default:
		return fmt.Errorf("scheduler.call_initiation: unknown value %q", s.CallInitiation)
	}
	return nil
}

// validate 填充可用性数据库默认值
func (a *AvailabilityConfig) validate() {
	if a.MaxDeviceAllocationDuration <= 0 {
		a.MaxDeviceAllocationDuration = 24 * time.Hour
	}
	if a.Lookahead <= 0 {
		a.Lookahead = 31 * 24 * time.Hour
	}
}

// validate 填充域间协议默认值
func (d *InterDomainConfig) validate() {
	if d.CommandTimeout <= 0 {
		d.CommandTimeout = 30 * time.Second
	}
	if d.CacheRefreshRate <= 0 {
		d.CacheRefreshRate = time.Minute
	}
	if d.AccessTokenTTL <= 0 {
		d.AccessTokenTTL = time.Hour
	}
}

// validate 填充日志默认值
func (l *LogConfig) validate() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}
