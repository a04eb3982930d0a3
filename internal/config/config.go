package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
//  1. 根据 APP_ENV 加载 .env.{env}（敏感信息）
//  2. 加载 {env}.yaml
//  3. 环境变量覆盖
//  4. validate() 填充默认值
func Load() (*Config, error) {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)

	yamlCfg, err := loadYAMLConfig(env)
	if err != nil {
		return nil, err
	}
	return build(env, yamlCfg)
}

// build 由 YAML 配置与环境变量构建最终配置
func build(env Environment, yamlCfg *yamlConfigInternal) (*Config, error) {
	applyEnvOverrides(&yamlCfg.YAMLConfig)

	databaseURL := os.Getenv("DATABASE_URL")
	driver := detectDatabaseDriver(yamlCfg.Database.Driver, databaseURL)
	yamlCfg.Database.Driver = driver
	if databaseURL == "" {
		databaseURL = buildDatabaseURL(yamlCfg.Database, yamlCfg.Database.Password)
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = buildRedisURL(yamlCfg.Redis)
	}

	cfg := &Config{
		Env:            env,
		DatabaseDriver: driver,
		DatabaseURL:    databaseURL,
		DatabaseDBName: yamlCfg.Database.Name,
		RedisURL:       redisURL,
		APIServer:      yamlCfg.APIServer,
		MinIO:          yamlCfg.MinIO,
		Scheduler:      yamlCfg.Scheduler,
		Availability:   yamlCfg.Availability,
		InterDomain:    yamlCfg.InterDomain,
		TLS:            yamlCfg.TLS,
		Auth:           yamlCfg.Auth,
		Log:            yamlCfg.Log,
		ConfigFilePath: yamlCfg.loadedFrom,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultYAMLConfig 代码硬编码默认值
func defaultYAMLConfig() YAMLConfig {
	return YAMLConfig{
		APIServer: APIServerConfig{Port: "8181"},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    "/var/lib/shongo/shongo.db",
			Host:    "localhost",
			Port:    5432,
			User:    "shongo",
			Name:    "shongo",
			SSLMode: "disable",
		},
		MinIO: MinIOConfig{Bucket: "shongo-domain-certificates"},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// loadYAMLConfig 加载 {env}.yaml，文件不存在时只使用默认值
func loadYAMLConfig(env Environment) (*yamlConfigInternal, error) {
	cfg := &yamlConfigInternal{YAMLConfig: defaultYAMLConfig()}

	path := findConfigFile(env)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg.YAMLConfig); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.loadedFrom = path
	return cfg, nil
}

// applyEnvOverrides 环境变量覆盖 YAML 配置，密码只从这里读取
func applyEnvOverrides(c *YAMLConfig) {
	c.Database.Password = os.Getenv("DB_PASSWORD")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.MinIO.AccessKey = os.Getenv("MINIO_ROOT_USER")
	c.MinIO.SecretKey = os.Getenv("MINIO_ROOT_PASSWORD")
	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.InterDomain.BasicAuthPassword = os.Getenv("INTERDOMAIN_BASIC_AUTH_PASSWORD")

	c.APIServer.Port = getEnv("API_PORT", c.APIServer.Port)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", c.MinIO.Endpoint)
	c.InterDomain.LocalDomain = getEnv("LOCAL_DOMAIN", c.InterDomain.LocalDomain)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	if v := os.Getenv("INTERDOMAIN_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.InterDomain.CommandTimeout = d
		}
	}
	if v := os.Getenv("INTERDOMAIN_PKI_CLIENT_AUTH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.InterDomain.PKIClientAuth = b
		}
	}
}

// validate 验证配置并填充默认值
func (c *Config) validate() error {
	if c.APIServer.Port == "" {
		c.APIServer.Port = "8181"
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	c.Availability.validate()
	c.InterDomain.validate()
	c.Log.validate()

	if c.InterDomain.LocalDomain == "" {
		return fmt.Errorf("interdomain.local_domain is required")
	}
	if c.Auth.JWTSecret == "" {
		if c.Env == EnvProduction {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.Auth.JWTSecret = "shongo-dev-secret"
	}
	if c.InterDomain.PKIClientAuth && !c.TLS.Enabled {
		return fmt.Errorf("interdomain.pki_client_auth requires tls.enabled")
	}
	if c.TLS.Enabled && !c.TLS.AutoCert && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file are required when tls is enabled without auto_cert")
	}
	return nil
}
