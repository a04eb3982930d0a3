// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在 .env 文件或环境变量中（YAML 中不存储任何密码）。
//
// 配置路径确定策略：
//  1. --config 命令行参数（SetConfigDir）
//  2. CONFIG_DIR 环境变量
//  3. 按 APP_ENV 选择默认路径：
//     - prod → /etc/shongo/
//     - dev/test → ./configs/
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	APIServer    APIServerConfig    `yaml:"api_server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Availability AvailabilityConfig `yaml:"availability"`
	InterDomain  InterDomainConfig  `yaml:"interdomain"`
	TLS          TLSConfig          `yaml:"tls"`
	Auth         AuthConfig         `yaml:"auth"`
	Log          LogConfig          `yaml:"log"`
}

// APIServerConfig API Server 配置
type APIServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"` // 为空表示允许所有来源
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres", "sqlite" 或 "mongodb"（默认 sqlite）
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从环境变量读取（DB_PASSWORD）
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	URI      string `yaml:"uri"` // MongoDB 连接 URI（优先于 host/port）
}

// RedisConfig Redis 配置，host 与 url 均为空时不启用 Redis（使用进程内实现）
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL（优先于 host/port/db）
}

// MinIOConfig MinIO 对象存储配置（保存对端域的 CA 证书），endpoint 为空时不启用
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey string `yaml:"-"`        // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	Ranking        string `yaml:"ranking"`         // capacity | fullness
	CallInitiation string `yaml:"call_initiation"` // VIRTUAL_ROOM | TERMINAL
}

// AvailabilityConfig 资源可用性数据库配置
type AvailabilityConfig struct {
	MaxDeviceAllocationDuration time.Duration `yaml:"max_device_allocation_duration"`
	// Lookahead 工作区间向后延伸的长度
	Lookahead time.Duration `yaml:"lookahead"`
}

// InterDomainConfig 域间协议配置
type InterDomainConfig struct {
	LocalDomain       string        `yaml:"local_domain"` // 本域名称（对端看到的 CN）
	CommandTimeout    time.Duration `yaml:"command_timeout"`
	CacheRefreshRate  time.Duration `yaml:"cache_refresh_rate"`
	PKIClientAuth     bool          `yaml:"pki_client_auth"`
	BasicAuthPassword string        `yaml:"-"` // 只从 INTERDOMAIN_BASIC_AUTH_PASSWORD 环境变量读取
	AccessTokenTTL    time.Duration `yaml:"access_token_ttl"`
}

// TLSConfig TLS/HTTPS 配置
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"` // 服务端证书
	KeyFile  string `yaml:"key_file"`  // 服务端私钥
	CAFile   string `yaml:"ca_file"`   // 校验对端客户端证书的 CA
	// AutoCert 证书文件未配置时在 CertDir 下生成本域 CA 与证书
	AutoCert bool   `yaml:"auto_cert"`
	CertDir  string `yaml:"cert_dir"`
}

// AuthConfig 认证配置
// 注意：JWTSecret 只从环境变量读取，不存储在 YAML 中
type AuthConfig struct {
	JWTSecret string `yaml:"-"` // 只从 JWT_SECRET 环境变量读取
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	DatabaseDriver string // "postgres", "sqlite" 或 "mongodb"
	DatabaseURL    string
	DatabaseDBName string // MongoDB 数据库名称
	RedisURL       string // 为空表示不启用 Redis
	APIServer      APIServerConfig
	MinIO          MinIOConfig
	Scheduler      SchedulerConfig
	Availability   AvailabilityConfig
	InterDomain    InterDomainConfig
	TLS            TLSConfig
	Auth           AuthConfig
	Log            LogConfig
	ConfigFilePath string // 实际加载的配置文件路径
}

// yamlConfigInternal 内部包装，记录配置文件来源（不参与 YAML 序列化）
type yamlConfigInternal struct {
	YAMLConfig `yaml:",inline"`
	loadedFrom string
}
