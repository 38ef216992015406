// Package hub serves a docstore.Store to remote clients over a websocket
// JSON protocol. It is the server side of docstore.WebsocketStore: clients
// send get, set, delete, list and subscribe requests and receive the
// documents' snapshots as the backend delivers them.
package hub

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tonimelisma/shiftplan/internal/docstore"
)

const (
	writeTimeout      = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second

	// DefaultWritesPerSecond and DefaultWriteBurst bound each connection's
	// set and delete requests.
	DefaultWritesPerSecond = 5
	DefaultWriteBurst      = 10
)

// Config configures a Server.
type Config struct {
	// Token, when set, must be presented as "Authorization: Bearer <token>".
	Token string

	WritesPerSecond float64
	WriteBurst      int

	Logger *slog.Logger
}

// Server exposes a store over websockets.
type Server struct {
	store   docstore.Store
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger

	limitMu sync.Mutex // guards cfg.WritesPerSecond and cfg.WriteBurst
}

// New returns a server for store.
func New(store docstore.Store, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.WritesPerSecond <= 0 {
		cfg.WritesPerSecond = DefaultWritesPerSecond
	}

	if cfg.WriteBurst <= 0 {
		cfg.WriteBurst = DefaultWriteBurst
	}

	return &Server{store: store, cfg: cfg, metrics: NewMetrics(), logger: cfg.Logger}
}

// SetWriteLimit changes the per-connection write limit. Connections opened
// before the call keep the limit they started with.
func (s *Server) SetWriteLimit(perSecond float64, burst int) {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	if perSecond > 0 {
		s.cfg.WritesPerSecond = perSecond
	}

	if burst > 0 {
		s.cfg.WriteBurst = burst
	}

	s.logger.Info("write limit changed",
		slog.Float64("writes_per_second", s.cfg.WritesPerSecond),
		slog.Int("write_burst", s.cfg.WriteBurst),
	)
}

func (s *Server) newLimiter() *rate.Limiter {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	return rate.NewLimiter(rate.Limit(s.cfg.WritesPerSecond), s.cfg.WriteBurst)
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler routes /ws to the protocol endpoint, /metrics to Prometheus and
// /healthz to a liveness check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("hub listening", slog.String("addr", addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("hub: serving %s: %w", addr, err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("hub: shutting down: %w", err)
		}

		s.logger.Info("hub stopped")

		return nil
	})

	return g.Wait()
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}

	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) == 1
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.metrics.RequestsTotal.WithLabelValues("connect", "unauthorized").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)

		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	conn.SetReadLimit(docstore.MaxMessageBytes)

	s.metrics.ConnectionsActive.Inc()
	defer s.metrics.ConnectionsActive.Dec()

	c := &connection{
		srv:     s,
		conn:    conn,
		limiter: s.newLimiter(),
		subs:    make(map[uint64]context.CancelFunc),
		logger:  s.logger.With(slog.String("remote", r.RemoteAddr)),
	}

	c.logger.Debug("client connected")

	err = c.serve(r.Context())

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		c.logger.Debug("client disconnected")
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("client connection failed", slog.String("error", err.Error()))
		}

		conn.CloseNow()
	}
}

// connection is one client. Requests are read sequentially; each
// subscription forwards snapshots on its own goroutine.
type connection struct {
	srv     *Server
	conn    *websocket.Conn
	limiter *rate.Limiter
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[uint64]context.CancelFunc
}

func (c *connection) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			var m docstore.Message
			if err := wsjson.Read(gctx, c.conn, &m); err != nil {
				return err
			}

			if err := c.handle(gctx, g, m); err != nil {
				return err
			}
		}
	})

	return g.Wait()
}

func (c *connection) send(ctx context.Context, m docstore.Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, c.conn, m)
}

func (c *connection) reply(ctx context.Context, op string, m docstore.Message, err error, started time.Time) error {
	c.srv.metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())

	if err != nil {
		c.srv.metrics.RequestsTotal.WithLabelValues(op, "error").Inc()
		return c.send(ctx, docstore.ErrorMessage(m.ID, err))
	}

	c.srv.metrics.RequestsTotal.WithLabelValues(op, "ok").Inc()
	m.Op = docstore.OpResult

	return c.send(ctx, m)
}

func (c *connection) allowWrite() error {
	if c.limiter.Allow() {
		return nil
	}

	c.srv.metrics.RateLimitedTotal.Inc()

	return docstore.ErrRateLimited
}

// handle answers one request. A returned error ends the connection; request
// failures are reported to the client instead.
func (c *connection) handle(ctx context.Context, g *errgroup.Group, m docstore.Message) error {
	started := time.Now()
	store := c.srv.store

	switch m.Op {
	case docstore.OpGet:
		doc, err := store.Get(ctx, m.Path)
		return c.reply(ctx, m.Op, docstore.Message{ID: m.ID, Path: m.Path, Doc: doc, Exists: err == nil}, err, started)

	case docstore.OpSet:
		err := c.allowWrite()
		if err == nil {
			err = store.Set(ctx, m.Path, m.Doc)
		}

		if err == nil {
			c.logger.Debug("document set", slog.String("path", m.Path), slog.Int("bytes", len(m.Doc)))
		}

		return c.reply(ctx, m.Op, docstore.Message{ID: m.ID, Path: m.Path}, err, started)

	case docstore.OpDelete:
		err := c.allowWrite()
		if err == nil {
			err = store.Delete(ctx, m.Path)
		}

		return c.reply(ctx, m.Op, docstore.Message{ID: m.ID, Path: m.Path}, err, started)

	case docstore.OpList:
		paths, err := store.List(ctx, m.Path)
		return c.reply(ctx, m.Op, docstore.Message{ID: m.ID, Path: m.Path, Paths: paths}, err, started)

	case docstore.OpSubscribe:
		return c.subscribe(ctx, g, m, started)

	case docstore.OpUnsubscribe:
		c.mu.Lock()
		cancel, ok := c.subs[m.ID]
		delete(c.subs, m.ID)
		c.mu.Unlock()

		if ok {
			cancel()
		}

		return nil

	default:
		return c.reply(ctx, "unknown", docstore.Message{ID: m.ID},
			fmt.Errorf("%w: unknown operation %q", docstore.ErrBadRequest, m.Op), started)
	}
}

func (c *connection) subscribe(ctx context.Context, g *errgroup.Group, m docstore.Message, started time.Time) error {
	subCtx, cancel := context.WithCancel(ctx)

	ch, err := c.srv.store.Subscribe(subCtx, m.Path, docstore.SubscribeOptions{})
	if err != nil {
		cancel()
		return c.reply(ctx, m.Op, docstore.Message{ID: m.ID, Path: m.Path}, err, started)
	}

	c.mu.Lock()
	c.subs[m.ID] = cancel
	c.mu.Unlock()

	g.Go(func() error {
		defer func() {
			c.mu.Lock()
			delete(c.subs, m.ID)
			c.mu.Unlock()
			cancel()
		}()

		return c.forward(ctx, m.ID, m.Path, ch)
	})

	return c.reply(ctx, m.Op, docstore.Message{ID: m.ID, Path: m.Path}, nil, started)
}

// forward pushes one subscription's snapshots. A backend failure ends the
// subscription, not the connection.
func (c *connection) forward(ctx context.Context, id uint64, path string, ch <-chan docstore.Snapshot) error {
	for snap := range ch {
		out := docstore.Message{ID: id, Op: docstore.OpSnapshot, Path: path, Exists: snap.Exists}

		if snap.Err != nil {
			failed := docstore.ErrorMessage(id, snap.Err)
			out.Code, out.Error = failed.Code, failed.Error
		} else if snap.Exists {
			out.Doc = snap.Doc
		}

		if err := c.send(ctx, out); err != nil {
			return err
		}

		c.srv.metrics.SnapshotsPushed.Inc()
	}

	return nil
}
