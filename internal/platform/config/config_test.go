package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooladmin/pkg/platform/audit/classifier"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCHOOLADMIN_AUTH__JWT_SIGNING_KEY", "secret")

	cfg, err := load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
	assert.Equal(t, 64<<10, cfg.Audit.MaxBodyCapture)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Audit.Rules)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCHOOLADMIN_AUTH__JWT_SIGNING_KEY", "secret")
	t.Setenv("SCHOOLADMIN_SERVER__ADDR", ":9090")
	t.Setenv("SCHOOLADMIN_SERVER__CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SCHOOLADMIN_DATABASE__URL", "postgres://localhost/schooladmin")
	t.Setenv("SCHOOLADMIN_DATABASE__MAX_OPEN_CONNS", "7")
	t.Setenv("SCHOOLADMIN_AUDIT__WRITE_TIMEOUT", "2s")
	t.Setenv("SCHOOLADMIN_AUDIT__RETENTION_SCHEDULE", "0 3 * * *")

	cfg, err := load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres://localhost/schooladmin", cfg.Database.URL)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
	assert.Equal(t, 2*time.Second, cfg.Audit.WriteTimeout)
	assert.Equal(t, "0 3 * * *", cfg.Audit.RetentionSchedule)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  jwt_signing_key: from-file
log:
  level: debug
audit:
  retention_days: 30
  rules:
    - method: POST
      path: /grades
      action: create_grade
      resource: Grade
`), 0o600))

	t.Run("file values applied", func(t *testing.T) {
		cfg, err := load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Auth.JWTSigningKey)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 30, cfg.Audit.RetentionDays)
		require.Len(t, cfg.Audit.Rules, 1)
		assert.Equal(t, "create_grade", cfg.Audit.Rules[0].Action)
	})

	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("SCHOOLADMIN_AUDIT__RETENTION_DAYS", "90")
		cfg, err := load(path)
		require.NoError(t, err)
		assert.Equal(t, 90, cfg.Audit.RetentionDays)
	})

	t.Run("CONFIG_PATH selects the file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, path)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Auth.JWTSigningKey)
	})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Auth.JWTSigningKey = "secret"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"missing signing key", func(c *Config) { c.Auth.JWTSigningKey = "" }, "auth.jwt_signing_key"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"unknown level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"negative retention", func(c *Config) { c.Audit.RetentionDays = -1 }, "audit.retention_days"},
		{"zero capture", func(c *Config) { c.Audit.MaxBodyCapture = 0 }, "audit.max_body_capture"},
		{"bad rule", func(c *Config) {
			c.Audit.Rules = []classifier.Rule{{Method: "POST", Path: "/x"}}
		}, "audit.rules"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
