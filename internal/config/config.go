// Package config provides configuration management for the application.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Encryption  EncryptionConfig
	AI          AIConfig
	Providers   ProvidersConfig
	HealthCheck HealthCheckConfig
	JWT         JWTConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Admin       AdminConfig
	Metrics     MetricsConfig
	Tracing     TracingConfig
	Sentry      SentryConfig
	OSS         OSSConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port        string
	Mode        string
	CORSOrigins []string
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// EncryptionConfig holds encryption configuration for provider credentials.
type EncryptionConfig struct {
	Key string // 32-byte key for AES-256 encryption
}

// AIConfig holds settings shared by every outbound model call.
type AIConfig struct {
	RequestTimeout time.Duration
	// DefaultProvider names the seeded config that becomes the default on first boot.
	DefaultProvider string
}

// ProviderConfig holds the bootstrap settings of a single vendor.
// Used to seed provider_configs rows on an empty database.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	MaxTokens   int
	Temperature float64
}

// ProvidersConfig groups the supported vendors.
type ProvidersConfig struct {
	Tongyi   ProviderConfig
	DeepSeek ProviderConfig
}

// HealthCheckConfig holds the provider probe scheduler configuration.
type HealthCheckConfig struct {
	Enabled  bool
	Interval time.Duration
}

// JWTConfig holds JWT authentication configuration.
type JWTConfig struct {
	Secret    string
	ExpiresIn time.Duration
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// AdminConfig holds default admin user configuration.
type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// TracingConfig holds OpenTelemetry exporter configuration.
type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// SentryConfig holds error reporting configuration.
type SentryConfig struct {
	DSN         string
	Environment string
}

// OSSConfig holds object storage settings for archived homework photos.
type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string
}

// Enabled reports whether photo archiving is configured.
func (c *OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKeyID != ""
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Missing .env is fine, containers set the environment directly.
	_ = v.ReadInConfig()

	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("SERVER_PORT"),
			Mode:        v.GetString("GIN_MODE"),
			CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			Name:        v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSL_MODE"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		AI: AIConfig{
			RequestTimeout:  v.GetDuration("AI_REQUEST_TIMEOUT"),
			DefaultProvider: v.GetString("AI_DEFAULT_PROVIDER"),
		},
		Providers: ProvidersConfig{
			Tongyi: ProviderConfig{
				APIKey:      v.GetString("DASHSCOPE_API_KEY"),
				BaseURL:     v.GetString("DASHSCOPE_BASE_URL"),
				Model:       v.GetString("DASHSCOPE_MODEL"),
				VisionModel: v.GetString("DASHSCOPE_VISION_MODEL"),
				MaxTokens:   v.GetInt("DASHSCOPE_MAX_TOKENS"),
				Temperature: v.GetFloat64("DASHSCOPE_TEMPERATURE"),
			},
			DeepSeek: ProviderConfig{
				APIKey:      v.GetString("DEEPSEEK_API_KEY"),
				BaseURL:     v.GetString("DEEPSEEK_BASE_URL"),
				Model:       v.GetString("DEEPSEEK_MODEL"),
				MaxTokens:   v.GetInt("DEEPSEEK_MAX_TOKENS"),
				Temperature: v.GetFloat64("DEEPSEEK_TEMPERATURE"),
			},
		},
		HealthCheck: HealthCheckConfig{
			Enabled:  v.GetBool("HEALTH_CHECK_ENABLED"),
			Interval: time.Duration(v.GetInt("HEALTH_CHECK_INTERVAL")) * time.Second,
		},
		JWT: JWTConfig{
			Secret:    v.GetString("JWT_SECRET"),
			ExpiresIn: v.GetDuration("JWT_EXPIRES_IN"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           v.GetBool("RATE_LIMIT_ENABLED"),
			RequestsPerMinute: v.GetInt("RATE_LIMIT_REQUESTS_PER_MINUTE"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Admin: AdminConfig{
			Email:    v.GetString("ADMIN_EMAIL"),
			Password: v.GetString("ADMIN_PASSWORD"),
			Name:     v.GetString("ADMIN_NAME"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
			Path:    v.GetString("METRICS_PATH"),
		},
		Tracing: TracingConfig{
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			SampleRatio: v.GetFloat64("OTEL_SAMPLE_RATIO"),
		},
		Sentry: SentryConfig{
			DSN:         v.GetString("SENTRY_DSN"),
			Environment: v.GetString("SENTRY_ENVIRONMENT"),
		},
		OSS: OSSConfig{
			Endpoint:        v.GetString("OSS_ENDPOINT"),
			AccessKeyID:     v.GetString("OSS_ACCESS_KEY_ID"),
			AccessKeySecret: v.GetString("OSS_ACCESS_KEY_SECRET"),
			Bucket:          v.GetString("OSS_BUCKET"),
			Prefix:          v.GetString("OSS_PREFIX"),
		},
	}

	return cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AI_REQUEST_TIMEOUT", "60s")
	v.SetDefault("AI_DEFAULT_PROVIDER", "tongyi")
	v.SetDefault("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation")
	v.SetDefault("DASHSCOPE_MODEL", "qwen-plus")
	v.SetDefault("DASHSCOPE_VISION_MODEL", "qwen-vl-max")
	v.SetDefault("DASHSCOPE_MAX_TOKENS", 2000)
	v.SetDefault("DASHSCOPE_TEMPERATURE", 0.7)
	v.SetDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1/chat/completions")
	v.SetDefault("DEEPSEEK_MODEL", "deepseek-chat")
	v.SetDefault("DEEPSEEK_MAX_TOKENS", 2000)
	v.SetDefault("DEEPSEEK_TEMPERATURE", 0.7)
	v.SetDefault("HEALTH_CHECK_ENABLED", false)
	v.SetDefault("HEALTH_CHECK_INTERVAL", 600)
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_REQUESTS_PER_MINUTE", 30)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ADMIN_NAME", "Administrator")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PATH", "/metrics")
	v.SetDefault("OTEL_SERVICE_NAME", "edu-ai-gateway")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
	v.SetDefault("SENTRY_ENVIRONMENT", "production")
	v.SetDefault("OSS_PREFIX", "homework/")
}

// GetDSN returns the database connection string.
func (c *DatabaseConfig) GetDSN() string {
	return "host=" + c.Host +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" port=" + c.Port +
		" sslmode=" + c.SSLMode
}

// GetURL returns the database connection string in URL form, as golang-migrate expects it.
func (c *DatabaseConfig) GetURL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=" + c.SSLMode
}

// GetRedisAddr returns the Redis connection address.
func (c *RedisConfig) GetRedisAddr() string {
	return c.Host + ":" + c.Port
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
