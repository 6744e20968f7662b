package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("GW_TEST_STRING", "custom")
	t.Setenv("GW_TEST_BOOL", "1")
	t.Setenv("GW_TEST_INT", "42")
	t.Setenv("GW_TEST_BAD_INT", "forty")
	t.Setenv("GW_TEST_DURATION", "90s")

	assert.Equal(t, "custom", getEnv("GW_TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("GW_TEST_UNSET", "default"))
	assert.True(t, getEnvBool("GW_TEST_BOOL", false))
	assert.Equal(t, 42, getEnvInt("GW_TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("GW_TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), getEnvInt64("GW_TEST_INT", 0))
	assert.Equal(t, 90*time.Second, getEnvDuration("GW_TEST_DURATION", time.Second))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/groundwork")
	t.Setenv("APP_URL", "https://app.example.com/")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "https://app.example.com", cfg.Server.AppURL)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, logrus.InfoLevel, cfg.Observability.LogLevel)
	assert.Nil(t, cfg.Identity.ServiceAccount)
	assert.False(t, cfg.Storage.Enabled())
	assert.NoError(t, cfg.RequireDatabase())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:        loadServerConfig(),
			Observability: ObservabilityConfig{LogFormat: "json"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("issuer without client id", func(t *testing.T) {
		cfg := base()
		cfg.Identity.IssuerURL = "https://idp.example.com"
		assert.Error(t, cfg.Validate())
	})

	t.Run("half s3 credentials", func(t *testing.T) {
		cfg := base()
		cfg.Storage.AccessKey = "key"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log format", func(t *testing.T) {
		cfg := base()
		cfg.Observability.LogFormat = "xml"
		assert.Error(t, cfg.Validate())
	})

	t.Run("otel without endpoint", func(t *testing.T) {
		cfg := base()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelServiceName = "groundwork"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing database", func(t *testing.T) {
		assert.Error(t, base().RequireDatabase())
	})
}

func TestLoadServiceAccount(t *testing.T) {
	const blob = `{"client_id":"svc","client_secret":"s3cr3t","token_url":"https://idp/token","admin_url":"https://idp/admin"}`

	t.Run("raw json", func(t *testing.T) {
		sa, err := LoadServiceAccount(blob, "", "", "", "")
		require.NoError(t, err)
		assert.Equal(t, "svc", sa.ClientID)
		assert.Equal(t, "https://idp/admin", sa.AdminURL)
	})

	t.Run("base64 json", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte(blob))
		sa, err := LoadServiceAccount(encoded, "", "", "", "")
		require.NoError(t, err)
		assert.Equal(t, "s3cr3t", sa.ClientSecret)
	})

	t.Run("blob falls back to individual client id", func(t *testing.T) {
		sa, err := LoadServiceAccount(`{"client_secret":"x","token_url":"t","admin_url":"a"}`, "fallback", "", "", "")
		require.NoError(t, err)
		assert.Equal(t, "fallback", sa.ClientID)
	})

	t.Run("individual fields", func(t *testing.T) {
		sa, err := LoadServiceAccount("", "svc", "secret", "https://idp/token", "https://idp/admin")
		require.NoError(t, err)
		assert.Equal(t, "https://idp/token", sa.TokenURL)
	})

	t.Run("nothing configured", func(t *testing.T) {
		sa, err := LoadServiceAccount("", "svc", "", "", "")
		require.NoError(t, err)
		assert.Nil(t, sa)
	})

	t.Run("incomplete fields", func(t *testing.T) {
		_, err := LoadServiceAccount("", "svc", "secret", "", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token_url")
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := LoadServiceAccount("!!not-base64!!", "", "", "", "")
		assert.Error(t, err)
	})
}
