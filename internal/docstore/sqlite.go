package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// DefaultPollInterval is how often SQLite subscriptions check for writes
// made by other processes.
const DefaultPollInterval = time.Second

const (
	sqlGetDocument = `SELECT doc, deleted, version FROM documents WHERE path = ?`

	sqlUpsertDocument = `INSERT INTO documents (path, doc, deleted, version, updated_at)
		VALUES (?, ?, 0, 1, ?)
		ON CONFLICT(path) DO UPDATE SET
		 doc = excluded.doc,
		 deleted = 0,
		 version = documents.version + 1,
		 updated_at = excluded.updated_at`

	// '0' sorts right after '/', so the range covers every path under
	// the prefix.
	sqlListDocuments = `SELECT path FROM documents
		WHERE deleted = 0 AND path >= ? AND path < ?
		ORDER BY path`

	sqlDeleteDocument = `UPDATE documents
		SET doc = NULL, deleted = 1, version = version + 1, updated_at = ?
		WHERE path = ? AND deleted = 0`
)

// SQLiteStore keeps documents in a SQLite database. Several processes may
// share one database file; each subscription polls the document's version
// and is woken early by writes made through the same store.
type SQLiteStore struct {
	db           *sql.DB
	logger       *slog.Logger
	pollInterval time.Duration
	nowFunc      func() time.Time

	mu     sync.Mutex
	wakers map[string]map[chan struct{}]struct{}

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSQLiteStore opens the database at dbPath (":memory:" for a private
// in-memory database) and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string, pollInterval time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	dsn := ":memory:"
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
			dbPath,
		)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern; also keeps a :memory: database on one connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store opened", slog.String("db_path", dbPath))

	return &SQLiteStore{
		db:           db,
		logger:       logger,
		pollInterval: pollInterval,
		nowFunc:      time.Now,
		wakers:       make(map[string]map[chan struct{}]struct{}),
		closed:       make(chan struct{}),
	}, nil
}

func (s *SQLiteStore) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type sqliteRow struct {
	doc     []byte
	exists  bool
	version int64
}

func (s *SQLiteStore) read(ctx context.Context, path string) (sqliteRow, error) {
	var (
		doc     []byte
		deleted bool
		version int64
	)

	err := s.db.QueryRowContext(ctx, sqlGetDocument, path).Scan(&doc, &deleted, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return sqliteRow{}, nil
	}

	if err != nil {
		return sqliteRow{}, fmt.Errorf("%w: sqlite reading %s: %w", ErrUnavailable, path, err)
	}

	return sqliteRow{doc: doc, exists: !deleted, version: version}, nil
}

// Get returns the document at path.
func (s *SQLiteStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := s.check(path); err != nil {
		return nil, err
	}

	row, err := s.read(ctx, path)
	if err != nil {
		return nil, err
	}

	if !row.exists {
		return nil, ErrNotFound
	}

	return row.doc, nil
}

// Set replaces the document at path.
func (s *SQLiteStore) Set(ctx context.Context, path string, doc []byte) error {
	if err := s.check(path); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, sqlUpsertDocument, path, bytes.Clone(doc), s.nowFunc().UnixMilli()); err != nil {
		return fmt.Errorf("%w: sqlite writing %s: %w", ErrUnavailable, path, err)
	}

	s.logger.Debug("document written", slog.String("path", path), slog.Int("bytes", len(doc)))
	s.wake(path)

	return nil
}

// Delete tombstones the document at path.
func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	if err := s.check(path); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, sqlDeleteDocument, s.nowFunc().UnixMilli(), path)
	if err != nil {
		return fmt.Errorf("%w: sqlite deleting %s: %w", ErrUnavailable, path, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("document deleted", slog.String("path", path))
		s.wake(path)
	}

	return nil
}

// List returns the live documents directly below prefix.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(prefix); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlListDocuments, prefix+"/", prefix+"0")
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite listing %s: %w", ErrUnavailable, prefix, err)
	}
	defer rows.Close()

	paths := []string{}

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("%w: sqlite listing %s: %w", ErrUnavailable, prefix, err)
		}

		if isChild(prefix, p) {
			paths = append(paths, p)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite listing %s: %w", ErrUnavailable, prefix, err)
	}

	return paths, nil
}

// Subscribe polls path for new versions. Versions written between two polls
// are delivered as one snapshot of the latest.
func (s *SQLiteStore) Subscribe(ctx context.Context, path string, _ SubscribeOptions) (<-chan Snapshot, error) {
	if err := s.check(path); err != nil {
		return nil, err
	}

	initial, err := s.read(ctx, path)
	if err != nil {
		return nil, err
	}

	ch := make(chan Snapshot, subscriberBuffer)
	ch <- Snapshot{Doc: initial.doc, Exists: initial.exists}

	wake := make(chan struct{}, 1)
	s.addWaker(path, wake)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(ch)
		defer s.removeWaker(path, wake)

		s.poll(ctx, path, initial.version, wake, ch)
	}()

	return ch, nil
}

func (s *SQLiteStore) poll(ctx context.Context, path string, last int64, wake <-chan struct{}, ch chan<- Snapshot) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			trySend(ch, Snapshot{Err: ErrClosed})
			return
		case <-ticker.C:
		case <-wake:
		}

		row, err := s.read(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			s.logger.Warn("sqlite subscription failed", slog.String("path", path), slog.String("error", err.Error()))
			trySend(ch, Snapshot{Err: err})

			return
		}

		if row.version == last {
			continue
		}

		last = row.version

		select {
		case ch <- Snapshot{Doc: row.doc, Exists: row.exists}:
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		}
	}
}

// trySend queues a terminal snapshot unless the consumer is too far behind
// to take it.
func trySend(ch chan<- Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
	default:
	}
}

func (s *SQLiteStore) check(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}

	if s.isClosed() {
		return ErrClosed
	}

	return nil
}

func (s *SQLiteStore) addWaker(path string, w chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wakers[path] == nil {
		s.wakers[path] = make(map[chan struct{}]struct{})
	}

	s.wakers[path][w] = struct{}{}
}

func (s *SQLiteStore) removeWaker(path string, w chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.wakers[path], w)
	if len(s.wakers[path]) == 0 {
		delete(s.wakers, path)
	}
}

func (s *SQLiteStore) wake(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for w := range s.wakers[path] {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// Close stops all subscriptions and closes the database.
func (s *SQLiteStore) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.closed)
		s.wg.Wait()

		if cerr := s.db.Close(); cerr != nil {
			err = fmt.Errorf("docstore: closing database: %w", cerr)
		}
	})

	return err
}
