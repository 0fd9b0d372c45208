package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("EXPO_PUBLIC_SUPABASE_URL", "")
	t.Setenv("EXPO_PUBLIC_SUPABASE_ANON_KEY", "")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, DriverREST, cfg.Backend.Driver)
	assert.Equal(t, 20*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Worker.RefreshInterval)
	assert.False(t, cfg.Backend.Configured(cfg.DB))
}

func TestLoadConfigFileAndAliases(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
environment: production
server:
  address: ":9090"
worker:
  agent_ids: ["d1", "d2"]
  lookback_days: 2
`), 0o600))

	t.Setenv("EXPO_PUBLIC_SUPABASE_URL", "https://demo.supabase.co/")
	t.Setenv("EXPO_PUBLIC_SUPABASE_ANON_KEY", "anon")

	SetConfigFile(file)
	defer SetConfigFile("")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, []string{"d1", "d2"}, cfg.Worker.AgentIDs)
	assert.Equal(t, 2, cfg.Worker.LookbackDays)
	assert.True(t, cfg.Backend.Configured(cfg.DB))
	assert.Equal(t, "https://demo.supabase.co/functions/v1", cfg.Backend.FunctionsEndpoint())
}

func TestBackendConfigured(t *testing.T) {
	pg := BackendConfig{Driver: DriverPostgres}
	assert.False(t, pg.Configured(DatabaseConfig{}))
	assert.True(t, pg.Configured(DatabaseConfig{DSN: "postgres://localhost/dairy"}))

	rest := BackendConfig{URL: "https://x", FunctionsURL: "https://fn.example.com/"}
	assert.False(t, rest.Configured(DatabaseConfig{}))
	assert.Equal(t, "https://fn.example.com", rest.FunctionsEndpoint())
}
