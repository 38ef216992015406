package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig    = "SHIFTPLAN_CONFIG"
	EnvRole      = "SHIFTPLAN_ROLE"
	EnvStore     = "SHIFTPLAN_STORE"
	EnvStorePath = "SHIFTPLAN_STORE_PATH"
	EnvStoreURL  = "SHIFTPLAN_STORE_URL"
	EnvToken     = "SHIFTPLAN_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // SHIFTPLAN_CONFIG: override config file path
	Role       string // SHIFTPLAN_ROLE: session role
	Backend    string // SHIFTPLAN_STORE: store backend
	StorePath  string // SHIFTPLAN_STORE_PATH: sqlite file or document directory
	StoreURL   string // SHIFTPLAN_STORE_URL: hub URL
	Token      string // SHIFTPLAN_TOKEN: hub bearer token
}

// ReadEnvOverrides reads the override variables. Values missing from the
// process environment are taken from dotenvPath when that file exists; the
// process environment always wins. An empty dotenvPath skips the file.
func ReadEnvOverrides(dotenvPath string, logger *slog.Logger) (EnvOverrides, error) {
	file, err := readDotEnv(dotenvPath)
	if err != nil {
		return EnvOverrides{}, err
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}

		if v, ok := file[key]; ok {
			logger.Debug("env override from dotenv file", slog.String("key", key), slog.String("file", dotenvPath))
			return v
		}

		return ""
	}

	return EnvOverrides{
		ConfigPath: lookup(EnvConfig),
		Role:       lookup(EnvRole),
		Backend:    lookup(EnvStore),
		StorePath:  lookup(EnvStorePath),
		StoreURL:   lookup(EnvStoreURL),
		Token:      lookup(EnvToken),
	}, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}

	return vars, nil
}
