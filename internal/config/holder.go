package config

import "sync"

// Holder is the process's current configuration. One-shot commands read it
// once; serve swaps in a re-resolved config on every SIGHUP and applies
// what the swap reports as changed.
type Holder struct {
	mu      sync.RWMutex
	cfg     *Config
	path    string
	reloads int
}

// NewHolder returns a Holder for cfg, loaded from path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current config. Callers must not modify it.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path. It never changes on reload.
func (h *Holder) Path() string {
	return h.path
}

// Reloads returns how many times Update swapped the config.
func (h *Holder) Reloads() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.reloads
}

// Reload is what one config swap changed. LogLevel and WriteLimit are
// applied by a running hub; Restart lists the keys, in file order, that
// only take effect when the process starts again.
type Reload struct {
	LogLevel   bool
	WriteLimit bool
	Restart    []string
}

// Changed reports whether the swap changed anything.
func (r Reload) Changed() bool {
	return r.LogLevel || r.WriteLimit || len(r.Restart) > 0
}

// Update swaps in cfg and reports how it differs from the previous one.
func (h *Holder) Update(cfg *Config) Reload {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := diffConfig(h.cfg, cfg)
	h.cfg = cfg
	h.reloads++

	return r
}

func diffConfig(old, next *Config) Reload {
	if old == nil {
		return Reload{LogLevel: true, WriteLimit: true}
	}

	r := Reload{
		LogLevel: old.Logging.LogLevel != next.Logging.LogLevel,
		WriteLimit: old.Server.WritesPerSecond != next.Server.WritesPerSecond ||
			old.Server.WriteBurst != next.Server.WriteBurst,
	}

	restart := []struct {
		key     string
		changed bool
	}{
		{"store.backend", old.Store.Backend != next.Store.Backend},
		{"store.path", old.Store.ResolvedPath() != next.Store.ResolvedPath()},
		{"store.url", old.Store.URL != next.Store.URL},
		{"store.token", old.Store.Token != next.Store.Token},
		{"store.poll_interval", old.Store.PollEvery() != next.Store.PollEvery()},
		{"store.redis_addr", old.Store.RedisAddr != next.Store.RedisAddr},
		{"store.redis_password", old.Store.RedisPassword != next.Store.RedisPassword},
		{"store.redis_db", old.Store.RedisDB != next.Store.RedisDB},
		{"server.listen", old.Server.Listen != next.Server.Listen},
		{"logging.log_format", old.Logging.LogFormat != next.Logging.LogFormat},
	}

	for _, k := range restart {
		if k.changed {
			r.Restart = append(r.Restart, k.key)
		}
	}

	return r
}
