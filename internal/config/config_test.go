package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsAndCatalog(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: secret
catalog:
  - service: data
    name: Data
    providers:
      - name: MTN
        packages: ["5GB - ₦2,000"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, int64(25430), cfg.Business.StartingBalance)
	assert.Equal(t, 2000, cfg.Business.SettlementDelayMillis)
	require.Len(t, cfg.Catalog, 1)
	assert.Equal(t, "MTN", cfg.Catalog[0].Providers[0].Name)
	assert.Equal(t, []string{"5GB - ₦2,000"}, cfg.Catalog[0].Providers[0].Packages)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
redis:
  host: redis.internal
`)
	t.Setenv("BILLPAY_AUTH_JWT_SECRET", "from-env")
	t.Setenv("BILLPAY_REDIS_HOST", "redis.override")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "redis.override", cfg.Redis.Host)
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "s"
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Driver = "etcd"
	assert.Error(t, cfg.Validate())

	cfg.Storage.Driver = "mysql"
	cfg.Kafka.Enabled = true
	assert.Error(t, cfg.Validate())
}
