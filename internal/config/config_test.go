package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ingest/pkg/ingest"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "127.0.0.1:8080", cfg.Client.Addr)
	assert.True(t, cfg.Client.ReconnectEnabled)
	assert.Equal(t, ingest.DefaultMaxReconnectAttempts, cfg.Client.MaxReconnectAttempts)
	assert.Equal(t, ingest.DefaultReconnectBaseDelay, cfg.Client.ReconnectBaseDelay)
	assert.Equal(t, ingest.DefaultGracefulTimeout, cfg.Server.GracefulTimeout)
	assert.Empty(t, cfg.Admin.Addr)
	assert.Equal(t, ingest.LogLevelInfo, cfg.LogLevel())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9100"
  max_connections: 64
  read_timeout: 2s
  graceful_timeout: 500ms
client:
  addr: "127.0.0.1:9100"
  reconnect_enabled: false
  max_reconnect_attempts: 5
  reconnect_base_delay: 250ms
admin:
  addr: "127.0.0.1:9101"
log:
  level: debug2
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.Server.Addr)
	assert.Equal(t, 64, cfg.Server.MaxConnections)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.GracefulTimeout)
	// Не указанные в файле поля сохраняют значения по умолчанию
	assert.Equal(t, ingest.DefaultWriteTimeout, cfg.Server.WriteTimeout)

	assert.False(t, cfg.Client.ReconnectEnabled)
	assert.Equal(t, 5, cfg.Client.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.ReconnectBaseDelay)
	assert.Equal(t, "127.0.0.1:9101", cfg.Admin.Addr)
	assert.Equal(t, ingest.LogLevelDebug2, cfg.LogLevel())
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":7000"
`)
	t.Setenv("INGEST_ADDR", ":7001")
	t.Setenv("INGEST_SERVER", "localhost:7001")
	t.Setenv("INGEST_ADMIN_ADDR", ":7002")
	t.Setenv("INGEST_LOG_LEVEL", "debug3")
	t.Setenv("INGEST_MAX_CONNECTIONS", "10")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Server.Addr)
	assert.Equal(t, "localhost:7001", cfg.Client.Addr)
	assert.Equal(t, ":7002", cfg.Admin.Addr)
	assert.Equal(t, ingest.LogLevelDebug3, cfg.LogLevel())
	assert.Equal(t, 10, cfg.Server.MaxConnections)
}

func TestLoadInvalidEnvNumberIgnored(t *testing.T) {
	t.Setenv("INGEST_MAX_CONNECTIONS", "many")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Server.MaxConnections)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "log:\n  level: verbose\n"))
	assert.ErrorContains(t, err, "log.level")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "server addr without port",
			mutate:  func(c *Config) { c.Server.Addr = "localhost" },
			wantErr: "server.addr",
		},
		{
			name:    "client addr without port",
			mutate:  func(c *Config) { c.Client.Addr = "" },
			wantErr: "client.addr",
		},
		{
			name:    "bad admin addr",
			mutate:  func(c *Config) { c.Admin.Addr = "nope" },
			wantErr: "admin.addr",
		},
		{
			name:    "negative max connections",
			mutate:  func(c *Config) { c.Server.MaxConnections = -1 },
			wantErr: "server.max_connections",
		},
		{
			name:    "negative graceful timeout",
			mutate:  func(c *Config) { c.Server.GracefulTimeout = -time.Second },
			wantErr: "server.graceful_timeout",
		},
		{
			name:    "negative reconnect attempts",
			mutate:  func(c *Config) { c.Client.MaxReconnectAttempts = -3 },
			wantErr: "client.max_reconnect_attempts",
		},
		{
			name:    "negative reconnect delay",
			mutate:  func(c *Config) { c.Client.ReconnectBaseDelay = -time.Millisecond },
			wantErr: "client.reconnect_base_delay",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = "bad"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "server.addr")
	assert.ErrorContains(t, err, "log.level")
}
