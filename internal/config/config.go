// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for shiftplan. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import (
	"path/filepath"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Store   StoreConfig   `toml:"store"`
	Sync    SyncConfig    `toml:"sync"`
	Session SessionConfig `toml:"session"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
}

// StoreConfig selects the document store backend and how to reach it.
// Path is the database file for sqlite and the root directory for file;
// URL and Token address a hub for websocket.
type StoreConfig struct {
	Backend       string `toml:"backend"`
	Path          string `toml:"path"`
	URL           string `toml:"url"`
	Token         string `toml:"token"`
	PollInterval  string `toml:"poll_interval"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// SyncConfig controls the synchronization controller.
type SyncConfig struct {
	DocPath            string `toml:"doc_path"`
	StalenessThreshold string `toml:"staleness_threshold"`
	ResubscribeBackoff string `toml:"resubscribe_backoff"`
}

// SessionConfig holds the local session's settings. None of it is shared.
type SessionConfig struct {
	Role string `toml:"role"`
}

// ServerConfig controls the hub started by "serve".
type ServerConfig struct {
	Listen          string  `toml:"listen"`
	WritesPerSecond float64 `toml:"writes_per_second"`
	WriteBurst      int     `toml:"write_burst"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from an explicit empty value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Role       *string // --role flag
	Backend    *string // --store flag
	StorePath  *string // --store-path flag
	StoreURL   *string // --store-url flag
}

// ResolvedPath returns the store path, falling back to the platform data
// directory for the file-based backends.
func (s *StoreConfig) ResolvedPath() string {
	if s.Path != "" {
		return expandHome(s.Path)
	}

	switch s.Backend {
	case backendSQLite:
		return filepath.Join(DefaultDataDir(), defaultDBFileName)
	case backendFile:
		return filepath.Join(DefaultDataDir(), defaultDocsDirName)
	default:
		return ""
	}
}

// PollEvery returns the parsed poll interval. Values are validated on load.
func (s *StoreConfig) PollEvery() time.Duration {
	return mustDuration(s.PollInterval)
}

// Staleness returns the parsed staleness threshold.
func (s *SyncConfig) Staleness() time.Duration {
	return mustDuration(s.StalenessThreshold)
}

// Backoff returns the parsed resubscribe backoff.
func (s *SyncConfig) Backoff() time.Duration {
	return mustDuration(s.ResubscribeBackoff)
}

// mustDuration parses a validated duration; invalid input yields zero so
// callers fall back to their own defaults.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
