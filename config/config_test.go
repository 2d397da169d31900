package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charkitch/general-apportionment/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", true)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "./data/lifecycle.db", cfg.DB.Path)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.False(t, cfg.Sources.HasSources())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9090"
db:
  path: /tmp/runs.db
scheduler:
  enabled: true
  spec: "@every 6h"
sources:
  apportionment: [data/apportionment.xlsx]
  execution: [data/FY2024P12.csv, data/FY2025P06.csv]
engine:
  agency: "070"
  cumulative_periods: true
`)

	cfg, err := config.Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/runs.db", cfg.DB.Path)
	assert.Equal(t, "@every 6h", cfg.Scheduler.Spec)
	assert.Equal(t, []string{"data/FY2024P12.csv", "data/FY2025P06.csv"}, cfg.Sources.Execution)
	assert.Equal(t, "070", cfg.Engine.Agency)
	assert.True(t, cfg.Engine.CumulativePeriods)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("LIFECYCLE_LOG_LEVEL", "debug")
	t.Setenv("LIFECYCLE_DB_PATH", ":memory:")

	cfg, err := config.Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":memory:", cfg.DB.Path)
}

func TestLoad_SchedulerWithoutSources(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  enabled: true\n")

	_, err := config.Load(path, false)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	assert.Error(t, err)
}
