package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	AuthModeLocal     = "local"
	AuthModeFederated = "federated"

	defaultJwtSecret = "change-me"
)

type Config struct {
	Port      string `env:"PORT,default=8080"`
	Env       string `env:"ENV"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	DBAdapter     string `env:"DB_ADAPTER,default=postgres"`
	SQLiteFile    string `env:"SQLITE_FILE,default=./data/foodtracker.db"`
	MigrationsDir string `env:"MIGRATIONS_DIR,default=./migrations"`
	// PostgreSQL connection settings
	PostgresDSN      string `env:"POSTGRES_DSN"`
	PostgresHost     string `env:"POSTGRES_HOST,default=localhost"`
	PostgresPort     string `env:"POSTGRES_PORT,default=5432"`
	PostgresUser     string `env:"POSTGRES_USER,default=foodtracker"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB,default=foodtracker"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE,default=disable"`

	AuthMode                 string `env:"AUTH_MODE,default=local"`
	JwtSecret                string `env:"JWT_SECRET,default=change-me"`
	JwtAlgorithm             string `env:"JWT_ALGORITHM,default=HS256"`
	AccessTokenExpireMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES,default=30"`
	RefreshTokenExpireHours  int    `env:"REFRESH_TOKEN_EXPIRE_HOURS,default=720"`

	// Federated (B2C) settings, used when AUTH_MODE=federated
	B2CTenant        string        `env:"B2C_TENANT_NAME"`
	B2CClientID      string        `env:"B2C_CLIENT_ID"`
	B2CPolicy        string        `env:"B2C_POLICY_NAME,default=B2C_1_signupsignin"`
	B2CKeysURL       string        `env:"B2C_KEYS_URL"`
	B2CIssuer        string        `env:"B2C_ISSUER"`
	JWKSFetchTimeout time.Duration `env:"JWKS_FETCH_TIMEOUT,default=10s"`

	AllowedOrigins     string `env:"ALLOWED_ORIGINS,default=*"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE,default=120"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisKeyPrefix string        `env:"REDIS_KEY_PREFIX,default=foodtracker:invites:"`
	InviteTTL      time.Duration `env:"INVITE_TTL,default=168h"`

	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION,default=us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)
	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}
	return dsn, nil
}

func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireHours) * time.Hour
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// New reads the configuration from the environment and validates it.
func New() (*Config, error) {
	c := &Config{}
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	switch c.AuthMode {
	case AuthModeLocal:
		if c.IsProduction() && (c.JwtSecret == "" || c.JwtSecret == defaultJwtSecret) {
			return errors.New("JWT_SECRET must be set in production")
		}
		if c.JwtSecret == "" {
			return errors.New("JWT_SECRET must not be empty")
		}
		if c.AccessTokenExpireMinutes <= 0 {
			return fmt.Errorf("invalid ACCESS_TOKEN_EXPIRE_MINUTES: %d", c.AccessTokenExpireMinutes)
		}
		if c.RefreshTokenExpireHours <= 0 {
			return fmt.Errorf("invalid REFRESH_TOKEN_EXPIRE_HOURS: %d", c.RefreshTokenExpireHours)
		}
	case AuthModeFederated:
		if c.B2CClientID == "" {
			return errors.New("B2C_CLIENT_ID must be set when AUTH_MODE=federated")
		}
		if c.B2CTenant == "" && (c.B2CIssuer == "" || c.B2CKeysURL == "") {
			return errors.New("B2C_TENANT_NAME must be set unless B2C_ISSUER and B2C_KEYS_URL are both set")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE: %s (supported: local, federated)", c.AuthMode)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %d", c.RateLimitPerMinute)
	}
	return nil
}
