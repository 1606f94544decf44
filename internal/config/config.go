package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/riteshshukladev/wrapper/internal/password"
	pkgconfig "github.com/riteshshukladev/wrapper/pkg/config"
)

const (
	EnvDevelopment = "development"

	defaultAccessSecret  = "dev-access-token-secret-change-me"
	defaultRefreshSecret = "dev-refresh-token-secret-change-me"
	minSecretLength      = 32
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	TokenStoreRedis = "redis"
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"5000"`

	// Tokens
	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET" envDefault:"dev-access-token-secret-change-me"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET" envDefault:"dev-refresh-token-secret-change-me"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	TokenIssuer        string        `env:"TOKEN_ISSUER" envDefault:"auth-service"`

	// Passwords
	PasswordHasher    string `env:"PASSWORD_HASHER" envDefault:"bcrypt"`
	BcryptCost        int    `env:"BCRYPT_COST" envDefault:"10"`
	Argon2MemoryKB    uint32 `env:"ARGON2_MEMORY_KB" envDefault:"65536"`
	Argon2Time        uint32 `env:"ARGON2_TIME" envDefault:"3"`
	Argon2Parallelism uint8  `env:"ARGON2_PARALLELISM" envDefault:"2"`
	PasswordMinLength int    `env:"PASSWORD_MIN_LENGTH" envDefault:"6"`

	// Storage
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"postgres"`
	TokenStore     string `env:"TOKEN_STORE"`

	// PostgreSQL
	PostgresHost         string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort         int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser         string `env:"POSTGRES_USER" envDefault:"auth"`
	PostgresPass         string `env:"POSTGRES_PASSWORD" envDefault:"auth_secret"`
	PostgresDB           string `env:"POSTGRES_DB" envDefault:"auth_db"`
	PostgresSSL          string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns           int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns           int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryThresholdMs int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Outside development the token
// secrets must be set explicitly and be long enough.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must not be empty")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("ACCESS_TOKEN_TTL (%s) must be shorter than REFRESH_TOKEN_TTL (%s)", c.AccessTokenTTL, c.RefreshTokenTTL)
	}

	if c.Environment != EnvDevelopment {
		if c.AccessTokenSecret == defaultAccessSecret || c.RefreshTokenSecret == defaultRefreshSecret {
			return fmt.Errorf("token secrets must be explicitly set via environment variables in %q mode", c.Environment)
		}
		if len(c.AccessTokenSecret) < minSecretLength || len(c.RefreshTokenSecret) < minSecretLength {
			return fmt.Errorf("token secrets must be at least %d characters long", minSecretLength)
		}
	}

	switch c.PasswordHasher {
	case password.KindBcrypt, password.KindArgon2id:
	default:
		return fmt.Errorf("unknown PASSWORD_HASHER %q", c.PasswordHasher)
	}
	if c.PasswordMinLength < 1 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be positive, got %d", c.PasswordMinLength)
	}

	switch c.StorageBackend {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.TokenStore {
	case "", c.StorageBackend, TokenStoreRedis:
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q", c.TokenStore)
	}
	if c.StorageBackend == StorageMemory && c.Environment != EnvDevelopment {
		return fmt.Errorf("STORAGE_BACKEND=memory is only allowed in development")
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.OTELSampleRate)
	}
	return nil
}

// PasswordConfig returns the hasher settings.
func (c *Config) PasswordConfig() password.Config {
	return password.Config{
		Kind:       c.PasswordHasher,
		BcryptCost: c.BcryptCost,
		Argon2: password.Argon2Config{
			MemoryKB:    c.Argon2MemoryKB,
			Time:        c.Argon2Time,
			Parallelism: c.Argon2Parallelism,
		},
	}
}

// TokenStoreBackend resolves an empty TOKEN_STORE to the storage backend.
func (c *Config) TokenStoreBackend() string {
	if c.TokenStore == "" {
		return c.StorageBackend
	}
	return c.TokenStore
}

// SlowQueryThreshold returns the slow query warning threshold.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
