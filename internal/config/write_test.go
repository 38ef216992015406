package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	require.NoError(t, WriteDefault(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(configFilePermissions), info.Mode().Perm())

	// The template is all comments, so it loads as the defaults.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	path := writeTestConfig(t, "# mine\n")

	err := WriteDefault(path)
	require.ErrorIs(t, err, ErrConfigExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# mine\n", string(data))
}
