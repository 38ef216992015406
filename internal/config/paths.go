package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "shiftplan"

// Config file name.
const configFileName = "config.toml"

// DotEnvFile is the optional environment file read from the working
// directory.
const DotEnvFile = ".env"

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/shiftplan).
// On macOS, uses ~/Library/Application Support/shiftplan.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for the local
// store's database and documents.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/shiftplan).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", home, filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(env, home, fallback string) string {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
// This is used as the fallback when neither SHIFTPLAN_CONFIG nor --config
// is specified.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, rest)
}
