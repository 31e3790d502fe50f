package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	// File was created with restrictive permissions.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Listen = "0.0.0.0:9090"
	cfg.Timezone = "America/Chicago"
	cfg.BackupEnabled = true
	cfg.BasicAuth = &BasicAuthConfig{Username: "kiosk", Password: "s3cret"}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestNormalize_FillsDefaults(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/touchcal-test"}
	cfg.Normalize()

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, "/tmp/touchcal-test/classes.txt", cfg.ClassesPath)
	assert.Equal(t, "/tmp/touchcal-test/classes_from_ics.txt", cfg.ICSClassesPath)
	assert.Equal(t, "5 0 * * *", cfg.RefreshCron)
	assert.Equal(t, 60, cfg.DefaultEventDuration)
	assert.Equal(t, "light", cfg.Theme)
}

func TestNormalize_UnknownWeekStartFallsBack(t *testing.T) {
	cfg := &Config{WeekStart: "wednesday"}
	cfg.Normalize()
	assert.Equal(t, "monday", cfg.WeekStart)

	cfg = &Config{WeekStart: "sunday"}
	cfg.Normalize()
	assert.Equal(t, "sunday", cfg.WeekStart)
}

func TestLoad_PartialConfigNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 0.0.0.0:9999\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Listen)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t-bad"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
