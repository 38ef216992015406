package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backend names accepted by Open.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFile      = "file"
	BackendRedis     = "redis"
	BackendWebsocket = "websocket"
)

// Backends lists every backend name, in documentation order.
var Backends = []string{BackendSQLite, BackendFile, BackendRedis, BackendWebsocket, BackendMemory}

// Options selects and configures a backend.
type Options struct {
	Backend string

	// Path is the database file (sqlite) or the root directory (file).
	Path string

	// URL and Token address the hub (websocket).
	URL   string
	Token string

	PollInterval time.Duration

	Redis RedisOptions
}

// Open returns the configured store.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("backend", opts.Backend))

	var (
		store Store
		err   error
	)

	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		store, err = NewSQLiteStore(ctx, opts.Path, opts.PollInterval, logger)
	case BackendFile:
		store, err = NewFileStore(opts.Path, logger)
	case BackendRedis:
		store, err = NewRedisStore(ctx, opts.Redis, logger)
	case BackendWebsocket:
		store, err = DialWebsocket(ctx, opts.URL, StaticToken(opts.Token), logger)
	default:
		return nil, fmt.Errorf("docstore: unknown backend %q", opts.Backend)
	}

	// Keep a typed nil out of the interface.
	if err != nil {
		return nil, err
	}

	return store, nil
}

