// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session store drivers accepted by SESSION_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the auth HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// DatabaseURL is the Postgres DSN. Required when SessionStore is postgres; also backs principals and audit logs when set.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionStore selects the session store driver: memory, postgres, or redis.
	SessionStore  string `mapstructure:"SESSION_STORE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// VerifyTimeout bounds a single credential verification.
	VerifyTimeout time.Duration `mapstructure:"VERIFY_TIMEOUT"`
	// RotateTimeout bounds a single refresh-token rotation.
	RotateTimeout time.Duration `mapstructure:"ROTATE_TIMEOUT"`
	// ClockSkew is the leeway applied to access token expiry checks.
	ClockSkew time.Duration `mapstructure:"CLOCK_SKEW"`

	// LoginMaxFailures is the number of consecutive failed logins before an account is locked.
	LoginMaxFailures int `mapstructure:"LOGIN_MAX_FAILURES"`
	// LoginLockout is how long an account stays locked.
	LoginLockout time.Duration `mapstructure:"LOGIN_LOCKOUT"`
	// LoginRatePerMinute is the per-identifier verification rate.
	LoginRatePerMinute int `mapstructure:"LOGIN_RATE_PER_MINUTE"`

	// CORSOrigins is a comma-separated allow list for the browser client; empty allows any origin.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka brokers; empty disables the Kafka producer.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// Worker-only: consumer group and Loki push URL.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	LokiURL      string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC collector (e.g. http://localhost:4317); empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_STORE", StoreMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "meetmate-auth")
	v.SetDefault("JWT_AUDIENCE", "meetmate-web")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("VERIFY_TIMEOUT", "5s")
	v.SetDefault("ROTATE_TIMEOUT", "5s")
	v.SetDefault("CLOCK_SKEW", "30s")
	v.SetDefault("LOGIN_MAX_FAILURES", 5)
	v.SetDefault("LOGIN_LOCKOUT", "15m")
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 10)
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "meetmate-session-events")
	v.SetDefault("KAFKA_GROUP_ID", "meetmate-session-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	switch cfg.SessionStore {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: SESSION_STORE=postgres requires DATABASE_URL")
		}
	default:
		return nil, errors.New("config: SESSION_STORE must be memory, postgres, or redis")
	}
	if cfg.SessionStore == StoreRedis && cfg.RedisAddr == "" {
		return nil, errors.New("config: SESSION_STORE=redis requires REDIS_ADDR")
	}

	if cfg.IsProduction() {
		if cfg.SessionStore == StoreMemory {
			return nil, errors.New("config: SESSION_STORE=memory must not be used when APP_ENV=production")
		}
		if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
			return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when APP_ENV=production")
		}
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.VerifyTimeout <= 0 || cfg.RotateTimeout <= 0 {
		return nil, errors.New("config: VERIFY_TIMEOUT and ROTATE_TIMEOUT must be positive")
	}
	if cfg.ClockSkew < 0 {
		return nil, errors.New("config: CLOCK_SKEW must not be negative")
	}
	if cfg.LoginMaxFailures < 0 || cfg.LoginRatePerMinute < 0 {
		return nil, errors.New("config: LOGIN_MAX_FAILURES and LOGIN_RATE_PER_MINUTE must not be negative")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

// CORSOriginsList returns the CORS allow list; "*" when none is configured.
func (c *Config) CORSOriginsList() []string {
	out := splitList(c.CORSOrigins)
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
