package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("DB_ADAPTER", "memory")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, AuthModeLocal, c.AuthMode)
	assert.Equal(t, "HS256", c.JwtAlgorithm)
	assert.Equal(t, 30*time.Minute, c.AccessTokenTTL())
	assert.Equal(t, 720*time.Hour, c.RefreshTokenTTL())
	assert.Equal(t, 10*time.Second, c.JWKSFetchTimeout)
	assert.Equal(t, 7*24*time.Hour, c.InviteTTL)
	assert.Equal(t, []string{"*"}, c.Origins())
	assert.Equal(t, "B2C_1_signupsignin", c.B2CPolicy)
}

func TestNew_PostgresDSNFromComponents(t *testing.T) {
	t.Setenv("DB_ADAPTER", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_USER", "pantry")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "food")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "host=db.internal port=6543 user=pantry dbname=food sslmode=disable password=secret", c.PostgresDSN)
}

func TestBuildPostgresDSN(t *testing.T) {
	c := &Config{PostgresDSN: "postgres://x"}
	dsn, err := c.BuildPostgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", dsn)

	_, err = (&Config{}).BuildPostgresDSN()
	assert.ErrorContains(t, err, "POSTGRES_HOST")
	_, err = (&Config{PostgresHost: "h"}).BuildPostgresDSN()
	assert.ErrorContains(t, err, "POSTGRES_USER")
	_, err = (&Config{PostgresHost: "h", PostgresUser: "u"}).BuildPostgresDSN()
	assert.ErrorContains(t, err, "POSTGRES_DB")

	dsn, err = (&Config{PostgresHost: "h", PostgresUser: "u", PostgresDB: "d"}).BuildPostgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "host=h port=5432 user=u dbname=d sslmode=disable", dsn)
}

func TestNew_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("DB_ADAPTER", "memory")
	t.Setenv("ENV", "production")

	_, err := New()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a-real-secret")
	_, err = New()
	assert.NoError(t, err)
}

func TestNew_FederatedRequiresProvider(t *testing.T) {
	t.Setenv("DB_ADAPTER", "memory")
	t.Setenv("AUTH_MODE", "federated")

	_, err := New()
	assert.ErrorContains(t, err, "B2C_CLIENT_ID")

	t.Setenv("B2C_CLIENT_ID", "client")
	_, err = New()
	assert.ErrorContains(t, err, "B2C_TENANT_NAME")

	t.Setenv("B2C_TENANT_NAME", "contoso")
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, AuthModeFederated, c.AuthMode)
}

func TestValidate_Rejects(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:                     "8080",
			DBAdapter:                "memory",
			AuthMode:                 AuthModeLocal,
			JwtSecret:                "s",
			AccessTokenExpireMinutes: 30,
			RefreshTokenExpireHours:  24,
			RateLimitPerMinute:       60,
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Port = "http" }, "invalid PORT"},
		{"adapter", func(c *Config) { c.DBAdapter = "mongo" }, "DB_ADAPTER"},
		{"sqlite file", func(c *Config) { c.DBAdapter = "sqlite" }, "SQLITE_FILE"},
		{"auth mode", func(c *Config) { c.AuthMode = "ldap" }, "AUTH_MODE"},
		{"ttl", func(c *Config) { c.AccessTokenExpireMinutes = 0 }, "ACCESS_TOKEN_EXPIRE_MINUTES"},
		{"refresh ttl", func(c *Config) { c.RefreshTokenExpireHours = -1 }, "REFRESH_TOKEN_EXPIRE_HOURS"},
		{"rate", func(c *Config) { c.RateLimitPerMinute = 0 }, "RATE_LIMIT_PER_MINUTE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestOrigins(t *testing.T) {
	c := &Config{AllowedOrigins: " http://a.test, ,http://b.test "}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.Origins())
}
