package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, "store.backend"},
		{"short poll interval", func(c *Config) { c.Store.PollInterval = "1ms" }, "store.poll_interval"},
		{"bad poll interval", func(c *Config) { c.Store.PollInterval = "soon" }, "invalid duration"},
		{"websocket without url", func(c *Config) { c.Store.Backend = backendWebsocket }, "store.url: must not be empty"},
		{"websocket with http url", func(c *Config) {
			c.Store.Backend = backendWebsocket
			c.Store.URL = "http://hub/ws"
		}, "scheme must be ws or wss"},
		{"redis without addr", func(c *Config) {
			c.Store.Backend = backendRedis
			c.Store.RedisAddr = ""
		}, "store.redis_addr"},
		{"negative redis db", func(c *Config) { c.Store.RedisDB = -1 }, "store.redis_db"},
		{"absolute doc path", func(c *Config) { c.Sync.DocPath = "/appState/main" }, "sync.doc_path"},
		{"zero staleness", func(c *Config) { c.Sync.StalenessThreshold = "0s" }, "sync.staleness_threshold"},
		{"short backoff", func(c *Config) { c.Sync.ResubscribeBackoff = "1ms" }, "sync.resubscribe_backoff"},
		{"unknown role", func(c *Config) { c.Session.Role = "root" }, "session.role"},
		{"listen without port", func(c *Config) { c.Server.Listen = "localhost" }, "server.listen"},
		{"zero write rate", func(c *Config) { c.Server.WritesPerSecond = 0 }, "server.writes_per_second"},
		{"zero burst", func(c *Config) { c.Server.WriteBurst = 0 }, "server.write_burst"},
		{"log level", func(c *Config) { c.Logging.LogLevel = "trace" }, "logging.log_level"},
		{"log format", func(c *Config) { c.Logging.LogFormat = "xml" }, "logging.log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Role = "root"
	cfg.Logging.LogLevel = "trace"
	cfg.Server.WriteBurst = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.role")
	assert.Contains(t, err.Error(), "logging.log_level")
	assert.Contains(t, err.Error(), "server.write_burst")
}
