package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "mqtt:\n  broker: tcp://localhost:1883\nvehicle:\n  topic_prefix: ovms/u/v\nlogging:\n  level: info\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := serviceConfig(path, "", "")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "smartcharge-state.yaml", cfg.Store.Path)

	cfg, err = serviceConfig(path, "DEBUG", "/var/lib/smartcharge/state.yaml")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/smartcharge/state.yaml", cfg.Store.Path)

	_, err = serviceConfig(path, "verbose", "")
	assert.ErrorContains(t, err, "unknown level verbose")

	_, err = serviceConfig(filepath.Join(t.TempDir(), "missing.yaml"), "", "")
	assert.ErrorContains(t, err, "load config")
}
