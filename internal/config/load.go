package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ConfigPath picks the config file: CLI > env > platform default.
func ConfigPath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags. The result
// is validated again after the overrides.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Holder, error) {
	path := ConfigPath(env, cli)

	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	logger.Debug("config resolved",
		slog.String("path", path),
		slog.String("backend", cfg.Store.Backend),
		slog.String("role", cfg.Session.Role),
	)

	return NewHolder(cfg, path), nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	setIf(&cfg.Session.Role, env.Role)
	setIf(&cfg.Store.Backend, env.Backend)
	setIf(&cfg.Store.Path, env.StorePath)
	setIf(&cfg.Store.URL, env.StoreURL)
	setIf(&cfg.Store.Token, env.Token)
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.Role != nil {
		cfg.Session.Role = *cli.Role
	}

	if cli.Backend != nil {
		cfg.Store.Backend = *cli.Backend
	}

	if cli.StorePath != nil {
		cfg.Store.Path = *cli.StorePath
	}

	if cli.StoreURL != nil {
		cfg.Store.URL = *cli.StoreURL
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
