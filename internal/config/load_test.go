package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func strPtr(s string) *string {
	return &s
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[store]
backend = "redis"
path = "/var/lib/shiftplan/plan.db"
poll_interval = "2s"
redis_addr = "redis.internal:6379"
redis_password = "hunter2"
redis_db = 3

[sync]
doc_path = "appState/night"
staleness_threshold = "10s"
resubscribe_backoff = "1s"

[session]
role = "admin"

[server]
listen = "0.0.0.0:9000"
writes_per_second = 2.5
write_burst = 4

[logging]
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 3, cfg.Store.RedisDB)
	assert.Equal(t, "appState/night", cfg.Sync.DocPath)
	assert.Equal(t, 10*time.Second, cfg.Sync.Staleness())
	assert.Equal(t, time.Second, cfg.Sync.Backoff())
	assert.Equal(t, 2*time.Second, cfg.Store.PollEvery())
	assert.Equal(t, "admin", cfg.Session.Role)
	assert.InDelta(t, 2.5, cfg.Server.WritesPerSecond, 0.001)
	assert.Equal(t, 4, cfg.Server.WriteBurst)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, "/var/lib/shiftplan/plan.db", cfg.Store.ResolvedPath())
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[session]
role = "admin"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Session.Role = "admin"
	assert.Equal(t, want, cfg)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeTestConfig(t, `
[store]
bakend = "sqlite"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "bakend" in [store]`)
	assert.Contains(t, err.Error(), `did you mean "backend"`)
}

func TestLoad_UnknownSection(t *testing.T) {
	path := writeTestConfig(t, `
[loging]
log_level = "debug"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean [logging]")
}

func TestLoad_TopLevelKey(t *testing.T) {
	path := writeTestConfig(t, `role = "admin"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "role"`)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `[store`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeTestConfig(t, `
[session]
role = "root"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.role")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
[store]
backend = "file"
path = "/from/file"

[session]
role = "observer"
`)

	env := EnvOverrides{ConfigPath: path, Role: "admin", StorePath: "/from/env"}
	cli := CLIOverrides{StorePath: strPtr("/from/cli")}

	h, err := Resolve(env, cli, testLogger(t))
	require.NoError(t, err)

	cfg := h.Config()
	assert.Equal(t, path, h.Path())
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "admin", cfg.Session.Role)
	assert.Equal(t, "/from/cli", cfg.Store.Path)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, `[session]
role = "observer"`)
	cliPath := writeTestConfig(t, `[session]
role = "admin"`)

	h, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath}, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, cliPath, h.Path())
	assert.Equal(t, "admin", h.Config().Session.Role)
}

func TestResolve_ValidatesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{Backend: strPtr("websocket")}, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.url")
}

func TestResolvedPath_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	cfg := DefaultConfig()

	if runtime.GOOS == platformLinux {
		assert.Equal(t, "/xdg/data/shiftplan/shiftplan.db", cfg.Store.ResolvedPath())

		cfg.Store.Backend = backendFile
		assert.Equal(t, "/xdg/data/shiftplan/docs", cfg.Store.ResolvedPath())
	}

	cfg.Store.Backend = backendRedis
	assert.Empty(t, cfg.Store.ResolvedPath())
}
