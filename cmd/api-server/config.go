package main

import (
	"fmt"
	"os"
	"time"

	"codequest/internal/common/cache"
	"codequest/internal/common/db"
	"codequest/internal/common/mq"
	"codequest/internal/common/storage"
	"codequest/internal/execution/sandbox"
	"codequest/internal/execution/service"
	userservice "codequest/internal/user/service"
	"codequest/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	Issuer    string        `yaml:"issuer"`
	AccessTTL time.Duration `yaml:"accessTTL"`
}

// LoginLimitConfig bounds failed login attempts.
type LoginLimitConfig struct {
	MaxFailures int           `yaml:"maxFailures"`
	Window      time.Duration `yaml:"window"`
}

// GitHubConfig holds GitHub OAuth application settings.
type GitHubConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RedirectURI  string `yaml:"redirectUri"`
	Scope        string `yaml:"scope"`
	AllowSignup  bool   `yaml:"allowSignup"`
}

// SandboxConfig holds settings for the code execution backend.
type SandboxConfig struct {
	BaseURL  string `yaml:"baseUrl"`
	Language string `yaml:"language"`
	Version  string `yaml:"version"`

	RunTimeout     time.Duration `yaml:"runTimeout"`
	CompileTimeout time.Duration `yaml:"compileTimeout"`

	RunMemoryLimitBytes     int64 `yaml:"runMemoryLimitBytes"`
	CompileMemoryLimitBytes int64 `yaml:"compileMemoryLimitBytes"`

	MaxRetries     int           `yaml:"maxRetries"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
	HealthCheckTTL time.Duration `yaml:"healthCheckTTL"`
	HTTPTimeout    time.Duration `yaml:"httpTimeout"`
}

// ExecutionConfig holds rate limiting and payload bounds for runs.
type ExecutionConfig struct {
	RateLimitRequests int           `yaml:"rateLimitRequests"`
	RateLimitWindow   time.Duration `yaml:"rateLimitWindow"`

	MaxUserCodeChars   int `yaml:"maxUserCodeChars"`
	MaxEvalScriptChars int `yaml:"maxEvalScriptChars"`
	MaxSourceChars     int `yaml:"maxSourceChars"`
	MaxOutputChars     int `yaml:"maxOutputChars"`
}

// EventsConfig holds audit event publishing settings.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
}

// AssetConfig holds lesson asset settings.
type AssetConfig struct {
	CacheDir        string        `yaml:"cacheDir"`
	CacheTTL        time.Duration `yaml:"cacheTTL"`
	CacheLockWait   time.Duration `yaml:"cacheLockWait"`
	CacheMaxEntries int           `yaml:"cacheMaxEntries"`
	CacheMaxBytes   int64         `yaml:"cacheMaxBytes"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
}

// AppConfig holds the api-server configuration.
type AppConfig struct {
	Server ServerConfig  `yaml:"server"`
	Logger logger.Config `yaml:"logger"`

	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	Kafka    mq.KafkaConfig      `yaml:"kafka"`
	MinIO    storage.MinIOConfig `yaml:"minio"`

	JWT        JWTConfig        `yaml:"jwt"`
	LoginLimit LoginLimitConfig `yaml:"loginLimit"`
	GitHub     GitHubConfig     `yaml:"github"`

	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Execution ExecutionConfig `yaml:"execution"`
	Events    EventsConfig    `yaml:"events"`
	Assets    AssetConfig     `yaml:"assets"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.Sandbox.BaseURL == "" {
		return nil, fmt.Errorf("sandbox base url is required")
	}
	if cfg.Events.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required when events are enabled")
	}
	applyRedisDefaults(&cfg.Redis)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "codequest"
	}
	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = 24 * time.Hour
	}

	if cfg.Sandbox.Language == "" {
		cfg.Sandbox.Language = "python"
	}
	if cfg.Sandbox.Version == "" {
		cfg.Sandbox.Version = "3.10"
	}
	if cfg.Sandbox.RunTimeout == 0 {
		cfg.Sandbox.RunTimeout = 10 * time.Second
	}
	if cfg.Sandbox.CompileTimeout == 0 {
		cfg.Sandbox.CompileTimeout = 10 * time.Second
	}
	if cfg.Sandbox.RunMemoryLimitBytes == 0 {
		cfg.Sandbox.RunMemoryLimitBytes = 256 * 1024 * 1024
	}
	if cfg.Sandbox.CompileMemoryLimitBytes == 0 {
		cfg.Sandbox.CompileMemoryLimitBytes = 256 * 1024 * 1024
	}
	if cfg.Sandbox.RetryDelay == 0 {
		cfg.Sandbox.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Sandbox.HealthCheckTTL == 0 {
		cfg.Sandbox.HealthCheckTTL = 30 * time.Second
	}
	if cfg.Sandbox.HTTPTimeout == 0 {
		cfg.Sandbox.HTTPTimeout = 30 * time.Second
	}

	if cfg.Execution.RateLimitRequests == 0 {
		cfg.Execution.RateLimitRequests = 10
	}
	if cfg.Execution.RateLimitWindow == 0 {
		cfg.Execution.RateLimitWindow = time.Minute
	}
	if cfg.Execution.MaxUserCodeChars == 0 {
		cfg.Execution.MaxUserCodeChars = 64 * 1024
	}
	if cfg.Execution.MaxEvalScriptChars == 0 {
		cfg.Execution.MaxEvalScriptChars = 128 * 1024
	}
	if cfg.Execution.MaxSourceChars == 0 {
		cfg.Execution.MaxSourceChars = 256 * 1024
	}
	if cfg.Execution.MaxOutputChars == 0 {
		cfg.Execution.MaxOutputChars = 64 * 1024
	}

	if cfg.Events.Enabled && cfg.Events.Topic == "" {
		cfg.Events.Topic = "codequest.execution.events"
	}

	if cfg.Assets.CacheDir == "" {
		cfg.Assets.CacheDir = "/tmp/codequest-assets"
	}
	if cfg.Assets.CacheTTL == 0 {
		cfg.Assets.CacheTTL = time.Hour
	}
	if cfg.Assets.CacheLockWait == 0 {
		cfg.Assets.CacheLockWait = 30 * time.Second
	}
	if cfg.Assets.MaxUploadBytes == 0 {
		cfg.Assets.MaxUploadBytes = 32 * 1024 * 1024
	}

	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}

func (c SandboxConfig) toClientConfig() sandbox.Config {
	return sandbox.Config{
		BaseURL:                 c.BaseURL,
		Language:                c.Language,
		Version:                 c.Version,
		RunTimeout:              c.RunTimeout,
		CompileTimeout:          c.CompileTimeout,
		RunMemoryLimitBytes:     c.RunMemoryLimitBytes,
		CompileMemoryLimitBytes: c.CompileMemoryLimitBytes,
		MaxRetries:              c.MaxRetries,
		RetryDelay:              c.RetryDelay,
		HealthCheckTTL:          c.HealthCheckTTL,
		HTTPTimeout:             c.HTTPTimeout,
	}
}

func (c ExecutionConfig) toLimits() service.Limits {
	return service.Limits{
		MaxUserCodeChars:   c.MaxUserCodeChars,
		MaxEvalScriptChars: c.MaxEvalScriptChars,
		MaxSourceChars:     c.MaxSourceChars,
		MaxOutputChars:     c.MaxOutputChars,
	}
}

func (c JWTConfig) toTokenConfig() userservice.TokenConfig {
	return userservice.TokenConfig{
		Secret:    c.Secret,
		Issuer:    c.Issuer,
		AccessTTL: c.AccessTTL,
	}
}

func (c LoginLimitConfig) toServiceConfig() userservice.LoginLimitConfig {
	return userservice.LoginLimitConfig{
		MaxFailures: c.MaxFailures,
		Window:      c.Window,
	}
}

func (c GitHubConfig) toServiceConfig() userservice.GitHubOAuthConfig {
	return userservice.GitHubOAuthConfig{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.RedirectURI,
		Scope:        c.Scope,
		AllowSignup:  c.AllowSignup,
	}
}
