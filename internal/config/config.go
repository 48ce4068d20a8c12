package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Clamd     ClamdConfig     `mapstructure:"clamd"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// ProfileBaseURL 是在线简历的公开地址前缀，用于生成 link-back 二维码。
	ProfileBaseURL string `mapstructure:"profile_base_url"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowQuery       time.Duration `mapstructure:"slow_query"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// JWTConfig 描述访问令牌校验所需的密钥。
// 令牌由外部认证服务签发，这里只做校验（admin CLI 可用私钥签发调试令牌）。
type JWTConfig struct {
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
}

// WorkerConfig contains asynq worker settings.
type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	ExportMaxRetry    int           `mapstructure:"export_max_retry"`
	// RenderTimeout 是单次 PDF 打印的上限。
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	MetricsPort   int           `mapstructure:"metrics_port"`
}

// GeneratorConfig 描述 AI 模板生成服务。
type GeneratorConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	BaseURL   string `mapstructure:"base_url"`
}

// ClamdConfig 描述病毒扫描服务地址。
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// AllowedOriginList splits the comma separated origin list.
func (a APIConfig) AllowedOriginList() []string {
	if strings.TrimSpace(a.AllowedOrigins) == "" {
		return nil
	}
	parts := strings.Split(a.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ReadPublicKey loads the PEM encoded public key used to validate access tokens.
func (j JWTConfig) ReadPublicKey() ([]byte, error) {
	return os.ReadFile(j.PublicKeyPath)
}

// ReadPrivateKey loads the PEM encoded private key (admin tooling only).
func (j JWTConfig) ReadPrivateKey() ([]byte, error) {
	if strings.TrimSpace(j.PrivateKeyPath) == "" {
		return nil, nil
	}
	return os.ReadFile(j.PrivateKeyPath)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.profile_base_url", "http://localhost:3000/cv")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "cvforge")
	v.SetDefault("database.user", "cvforge")
	v.SetDefault("database.password", "cvforge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.slow_query", 500*time.Millisecond)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "cvforge")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("jwt.public_key_path", "/run/secrets/jwt_public.pem")
	v.SetDefault("jwt.access_ttl", 15*time.Minute)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.generation_timeout", 90*time.Second)
	v.SetDefault("worker.export_max_retry", 3)
	v.SetDefault("worker.render_timeout", 60*time.Second)
	v.SetDefault("worker.metrics_port", 9091)
	v.SetDefault("generator.model", "claude-sonnet-4-20250514")
	v.SetDefault("generator.max_tokens", 8192)
	v.SetDefault("clamd.addr", "tcp://localhost:3310")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                   "API_PORT",
		"api.profile_base_url":       "PROFILE_BASE_URL",
		"api.allowed_origins":        "WS_ALLOWED_ORIGINS",
		"database.host":              "DATABASE_HOST",
		"database.port":              "DATABASE_PORT",
		"database.name":              "POSTGRES_DB",
		"database.user":              "POSTGRES_USER",
		"database.password":          "POSTGRES_PASSWORD",
		"database.sslmode":           "DATABASE_SSLMODE",
		"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
		"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
		"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",
		"database.slow_query":        "DATABASE_SLOW_QUERY",
		"redis.host":                 "REDIS_HOST",
		"redis.port":                 "REDIS_PORT",
		"minio.endpoint":             "MINIO_ENDPOINT",
		"minio.public_endpoint":      "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":        "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":    "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":              "MINIO_USE_SSL",
		"minio.bucket":               "MINIO_BUCKET",
		"minio.region":               "MINIO_REGION",
		"minio.bucket_lookup":        "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":   "MINIO_AUTO_CREATE_BUCKET",
		"jwt.private_key_path":       "JWT_PRIVATE_KEY_PATH",
		"jwt.public_key_path":        "JWT_PUBLIC_KEY_PATH",
		"jwt.access_ttl":             "JWT_ACCESS_TTL",
		"worker.concurrency":         "WORKER_CONCURRENCY",
		"worker.generation_timeout":  "GENERATION_TIMEOUT",
		"worker.export_max_retry":    "EXPORT_MAX_RETRY",
		"worker.render_timeout":      "RENDER_TIMEOUT",
		"worker.metrics_port":        "WORKER_METRICS_PORT",
		"generator.api_key":          "ANTHROPIC_API_KEY",
		"generator.model":            "GENERATOR_MODEL",
		"generator.max_tokens":       "GENERATOR_MAX_TOKENS",
		"generator.base_url":         "GENERATOR_BASE_URL",
		"clamd.addr":                 "CLAMD_ADDR",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.ProfileBaseURL == "" {
		return errors.New("profile base url is required")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.JWT.PublicKeyPath == "" {
		return errors.New("jwt public key path is required")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	if cfg.Worker.GenerationTimeout <= 0 {
		return errors.New("generation timeout must be positive")
	}
	if cfg.Generator.MaxTokens <= 0 {
		return errors.New("generator max tokens must be positive")
	}
	return nil
}
