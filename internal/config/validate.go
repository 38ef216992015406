package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minPollInterval       = 100 * time.Millisecond
	minStaleness          = time.Millisecond
	minResubscribeBackoff = 100 * time.Millisecond
	minWriteBurst         = 1
)

var validBackends = map[string]bool{
	backendMemory:    true,
	backendSQLite:    true,
	backendFile:      true,
	backendRedis:     true,
	backendWebsocket: true,
}

var validRoles = map[string]bool{
	"admin":    true,
	"observer": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateStore(s *StoreConfig) []error {
	var errs []error

	if !validBackends[s.Backend] {
		errs = append(errs, fmt.Errorf(
			"store.backend: must be one of sqlite, file, redis, websocket, memory; got %q", s.Backend))
	}

	errs = append(errs, validateDurationMin("store.poll_interval", s.PollInterval, minPollInterval)...)

	switch s.Backend {
	case backendWebsocket:
		errs = append(errs, validateHubURL(s.URL)...)
	case backendRedis:
		if s.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr: must not be empty for the redis backend"))
		}
	}

	if s.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("store.redis_db: must be >= 0, got %d", s.RedisDB))
	}

	return errs
}

func validateHubURL(raw string) []error {
	if raw == "" {
		return []error{errors.New("store.url: must not be empty for the websocket backend")}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("store.url: %w", err)}
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return []error{fmt.Errorf("store.url: scheme must be ws or wss, got %q", u.Scheme)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("store.url: missing host in %q", raw)}
	}

	return nil
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if s.DocPath == "" || strings.HasPrefix(s.DocPath, "/") || strings.HasSuffix(s.DocPath, "/") {
		errs = append(errs, fmt.Errorf("sync.doc_path: must be a relative slash-separated path, got %q", s.DocPath))
	}

	errs = append(errs, validateDurationMin("sync.staleness_threshold", s.StalenessThreshold, minStaleness)...)
	errs = append(errs, validateDurationMin("sync.resubscribe_backoff", s.ResubscribeBackoff, minResubscribeBackoff)...)

	return errs
}

func validateSession(s *SessionConfig) []error {
	if !validRoles[s.Role] {
		return []error{fmt.Errorf("session.role: must be admin or observer, got %q", s.Role)}
	}

	return nil
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen: %w", err))
	}

	if s.WritesPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("server.writes_per_second: must be > 0, got %g", s.WritesPerSecond))
	}

	if s.WriteBurst < minWriteBurst {
		errs = append(errs, fmt.Errorf("server.write_burst: must be >= %d, got %d", minWriteBurst, s.WriteBurst))
	}

	return errs
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
