package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCRIPT_URL", "https://script.example.com/exec")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, BackendScript, cfg.Backend)
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 21, cfg.ChartDays)
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Timezone)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BACKEND=sqlite\nCHART_DAYS=14\n"), 0o644))
	t.Cleanup(func() {
		_ = os.Unsetenv("BACKEND")
		_ = os.Unsetenv("CHART_DAYS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, 14, cfg.ChartDays)
}

func TestLoadBadDuration(t *testing.T) {
	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		Port:      "3000",
		Backend:   BackendScript,
		ScriptURL: "https://script.example.com/exec",
		DBPath:    "x.db",
		Timezone:  "UTC",
		ChartDays: 21,
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"script without url", func(c *Config) { c.ScriptURL = "" }},
		{"unknown backend", func(c *Config) { c.Backend = "postgres" }},
		{"sqlite without path", func(c *Config) {
			c.Backend = BackendSQLite
			c.DBPath = ""
		}},
		{"bad url", func(c *Config) { c.ScriptURL = "ftp://x" }},
		{"zero days", func(c *Config) { c.ChartDays = 0 }},
		{"too many days", func(c *Config) { c.ChartDays = 400 }},
		{"bad zone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.edit(&c)
			assert.Error(t, c.Validate())
		})
	}

	sqliteOnly := base
	sqliteOnly.Backend = BackendSQLite
	sqliteOnly.ScriptURL = ""
	assert.NoError(t, sqliteOnly.Validate())
}
