package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is owner read/write only: the file may hold the hub
// token and the redis password.
const configFilePermissions = 0o600

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteDefault when the file is already there.
var ErrConfigExists = errors.New("config file already exists")

// configTemplate is the config file written by "config init". Every option
// is present as a commented-out default.
const configTemplate = `# shiftplan configuration

[store]
# Backend: sqlite, file, redis, websocket, memory
# backend = "sqlite"
# Database file (sqlite) or document directory (file); default under the
# platform data directory.
# path = ""
# Hub address and bearer token for the websocket backend
# url = "ws://127.0.0.1:8765/ws"
# token = ""
# How often the sqlite backend checks for changes
# poll_interval = "1s"
# redis_addr = "localhost:6379"
# redis_password = ""
# redis_db = 0

[sync]
# doc_path = "appState/main"
# A write is refused when the shared plan is newer than the local copy by
# more than this
# staleness_threshold = "5s"
# resubscribe_backoff = "5s"

[session]
# admin or observer
# role = "observer"

[server]
# listen = "127.0.0.1:8765"
# writes_per_second = 5
# write_burst = 10

[logging]
# log_level = "info"
# log_format = "auto"
`

// WriteDefault writes the commented default config file to path. It
// refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	slog.Info("creating config file", slog.String("path", path))

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place, creating parent directories as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
