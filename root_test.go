package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/shiftplan/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests either
// call helpers directly with explicit values or go through cmd.SetArgs() and
// cmd.Execute().

func TestLogLevel(t *testing.T) {
	withLevel := func(level string) *config.Config {
		cfg := config.DefaultConfig()
		cfg.Logging.LogLevel = level

		return cfg
	}

	tests := []struct {
		name  string
		cfg   *config.Config
		flags CLIFlags
		want  slog.Level
	}{
		{"no config", nil, CLIFlags{}, slog.LevelWarn},
		{"config info", withLevel("info"), CLIFlags{}, slog.LevelInfo},
		{"config debug", withLevel("debug"), CLIFlags{}, slog.LevelDebug},
		{"config error", withLevel("error"), CLIFlags{}, slog.LevelError},
		{"verbose wins", withLevel("error"), CLIFlags{Verbose: true}, slog.LevelDebug},
		{"quiet wins", withLevel("debug"), CLIFlags{Quiet: true}, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.cfg, tt.flags))
		})
	}
}

func TestBuildLogger_FormatAndLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.LogFormat = "json"

	var buf bytes.Buffer

	level := new(slog.LevelVar)
	logger := buildLogger(cfg, CLIFlags{}, level, &buf)
	logger.Info("hello", slog.String("k", "v"))

	assert.JSONEq(t, `{"level":"INFO","msg":"hello","k":"v"}`, without(t, buf.Bytes(), "time"))

	// The level can be lowered on the live logger.
	level.Set(slog.LevelError)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestUseJSON(t *testing.T) {
	var buf bytes.Buffer

	assert.True(t, useJSON("json", &buf))
	assert.False(t, useJSON("text", &buf))
	// Writers that are not files are never terminals, but auto keeps them
	// readable.
	assert.False(t, useJSON("auto", &buf))
}

func TestCLIContext_Missing(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestCLIContext_ReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}

	write("[logging]\nlog_level = \"error\"\n")

	cli := config.CLIOverrides{ConfigPath: path}
	logger := discardLogger()

	holder, err := config.Resolve(config.EnvOverrides{}, cli, logger)
	require.NoError(t, err)

	level := new(slog.LevelVar)
	level.Set(logLevel(holder.Config(), CLIFlags{}))

	cc := &CLIContext{Holder: holder, Logger: logger, Level: level, cli: cli}

	write("[logging]\nlog_level = \"debug\"\n\n[server]\nlisten = \"127.0.0.1:9999\"\nwrite_burst = 3\n")

	r, err := cc.ReloadConfig()
	require.NoError(t, err)
	assert.True(t, r.LogLevel)
	assert.True(t, r.WriteLimit)
	assert.Equal(t, []string{"server.listen"}, r.Restart)
	assert.Equal(t, slog.LevelDebug, level.Level())
	assert.Equal(t, 3, cc.Cfg().Server.WriteBurst)

	// An invalid file keeps the running config.
	write("[logging]\nlog_level = \"loud\"\n")

	_, err = cc.ReloadConfig()
	require.Error(t, err)
	assert.Equal(t, "debug", cc.Cfg().Logging.LogLevel)
	assert.Equal(t, 1, cc.Holder.Reloads())
}
