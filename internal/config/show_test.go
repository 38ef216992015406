package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = backendWebsocket
	cfg.Store.URL = "ws://hub:8765/ws"
	cfg.Store.Token = "s3cret"
	cfg.Session.Role = "admin"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/etc/shiftplan/config.toml", &buf))

	out := buf.String()
	assert.Contains(t, out, "# Effective configuration (file: /etc/shiftplan/config.toml)")
	assert.Contains(t, out, `backend        = "websocket"`)
	assert.Contains(t, out, `url            = "ws://hub:8765/ws"`)
	assert.Contains(t, out, `role = "admin"`)
	assert.Contains(t, out, `token          = "(set)"`)
	assert.NotContains(t, out, "s3cret")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(DefaultConfig(), "x", failWriter{})
	assert.EqualError(t, err, "disk full")
}
