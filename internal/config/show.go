package config

import (
	"fmt"
	"io"
)

// redacted replaces secrets in rendered output.
const redacted = "(set)"

// RenderEffective writes the resolved configuration as a TOML-like summary
// to w. This powers the "config show" command, giving users visibility into
// the effective values after all four override layers have been applied.
// Secrets are not printed.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	s := &cfg.Store
	ew.printf("[store]\n")
	ew.printf("  backend        = %q\n", s.Backend)
	ew.printf("  path           = %q\n", s.ResolvedPath())

	if s.URL != "" {
		ew.printf("  url            = %q\n", s.URL)
	}

	if s.Token != "" {
		ew.printf("  token          = %q\n", redacted)
	}

	ew.printf("  poll_interval  = %q\n", s.PollInterval)

	if s.Backend == backendRedis {
		ew.printf("  redis_addr     = %q\n", s.RedisAddr)
		ew.printf("  redis_db       = %d\n", s.RedisDB)

		if s.RedisPassword != "" {
			ew.printf("  redis_password = %q\n", redacted)
		}
	}

	ew.printf("\n[sync]\n")
	ew.printf("  doc_path            = %q\n", cfg.Sync.DocPath)
	ew.printf("  staleness_threshold = %q\n", cfg.Sync.StalenessThreshold)
	ew.printf("  resubscribe_backoff = %q\n", cfg.Sync.ResubscribeBackoff)

	ew.printf("\n[session]\n")
	ew.printf("  role = %q\n", cfg.Session.Role)

	ew.printf("\n[server]\n")
	ew.printf("  listen            = %q\n", cfg.Server.Listen)
	ew.printf("  writes_per_second = %g\n", cfg.Server.WritesPerSecond)
	ew.printf("  write_burst       = %d\n", cfg.Server.WriteBurst)

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format = %q\n", cfg.Logging.LogFormat)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
