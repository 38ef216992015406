package config

// Backend names, mirrored from the docstore package so that loading a
// config does not pull in every store driver.
const (
	backendMemory    = "memory"
	backendSQLite    = "sqlite"
	backendFile      = "file"
	backendRedis     = "redis"
	backendWebsocket = "websocket"
)

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultBackend            = backendSQLite
	defaultPollInterval       = "1s"
	defaultRedisAddr          = "localhost:6379"
	defaultDocPath            = "appState/main"
	defaultStalenessThreshold = "5s"
	defaultResubscribeBackoff = "5s"
	defaultRole               = "observer"
	defaultListen             = "127.0.0.1:8765"
	defaultWritesPerSecond    = 5
	defaultWriteBurst         = 10
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultDBFileName         = "shiftplan.db"
	defaultDocsDirName        = "docs"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:      defaultBackend,
			PollInterval: defaultPollInterval,
			RedisAddr:    defaultRedisAddr,
		},
		Sync: SyncConfig{
			DocPath:            defaultDocPath,
			StalenessThreshold: defaultStalenessThreshold,
			ResubscribeBackoff: defaultResubscribeBackoff,
		},
		Session: SessionConfig{Role: defaultRole},
		Server: ServerConfig{
			Listen:          defaultListen,
			WritesPerSecond: defaultWritesPerSecond,
			WriteBurst:      defaultWriteBurst,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
