package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	fileExt     = ".json"
	dirPerms    = 0o700
	filePerms   = 0o600
	tempPattern = ".shiftplan-*.tmp"
)

// FileStore keeps one JSON file per document under a root directory, so a
// document path "appState/main" lives at <root>/appState/main.json. Writes
// are atomic renames; subscriptions watch the document's directory.
type FileStore struct {
	root   string
	logger *slog.Logger

	// mu serializes writes from this process. Other processes may write the
	// same files; the rename keeps every read whole.
	mu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("docstore: creating store directory %s: %w", dir, err)
	}

	return &FileStore{root: dir, logger: logger, closed: make(chan struct{})}, nil
}

func (s *FileStore) file(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path)) + fileExt
}

func (s *FileStore) check(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}

	select {
	case <-s.closed:
		return ErrClosed
	default:
		return nil
	}
}

// read returns the file contents, or nil and false when it does not exist.
func (s *FileStore) read(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.file(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: reading %s: %w", ErrUnavailable, path, err)
	}

	return data, true, nil
}

// Get returns the document at path.
func (s *FileStore) Get(_ context.Context, path string) ([]byte, error) {
	if err := s.check(path); err != nil {
		return nil, err
	}

	data, ok, err := s.read(path)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrNotFound
	}

	return data, nil
}

// Set writes doc to a temp file next to the target and renames it in place.
func (s *FileStore) Set(_ context.Context, path string, doc []byte) error {
	if err := s.check(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.file(path)
	dir := filepath.Dir(target)

	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrUnavailable, dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrUnavailable, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("%w: writing %s: %w", ErrUnavailable, path, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("%w: syncing %s: %w", ErrUnavailable, path, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %w", ErrUnavailable, path, err)
	}

	if err := os.Chmod(tmpName, filePerms); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %w", ErrUnavailable, path, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming %s: %w", ErrUnavailable, path, err)
	}

	s.logger.Debug("document written", slog.String("path", path), slog.Int("bytes", len(doc)))

	return nil
}

// Delete removes the document file.
func (s *FileStore) Delete(_ context.Context, path string) error {
	if err := s.check(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.file(path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: deleting %s: %w", ErrUnavailable, path, err)
	}

	return nil
}

// List returns the document files directly inside prefix's directory.
// Temp files of in-flight writes are skipped.
func (s *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	if err := s.check(prefix); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(prefix)))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", ErrUnavailable, prefix, err)
	}

	paths := []string{}

	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), fileExt)
		if !ok || e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		paths = append(paths, prefix+"/"+name)
	}

	slices.Sort(paths)

	return paths, nil
}

// Subscribe watches the document's directory. Each filesystem event on the
// document file triggers a re-read; unchanged contents are not delivered
// again.
func (s *FileStore) Subscribe(ctx context.Context, path string, _ SubscribeOptions) (<-chan Snapshot, error) {
	if err := s.check(path); err != nil {
		return nil, err
	}

	target := s.file(path)
	dir := filepath.Dir(target)

	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", ErrUnavailable, dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: creating watcher: %w", ErrUnavailable, err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%w: watching %s: %w", ErrUnavailable, dir, err)
	}

	// Read after the watch is registered so no write can slip between.
	doc, exists, err := s.read(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	ch := make(chan Snapshot, subscriberBuffer)
	ch <- Snapshot{Doc: doc, Exists: exists}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(ch)
		defer watcher.Close()

		s.watchLoop(ctx, watcher, path, target, doc, exists, ch)
	}()

	return ch, nil
}

func (s *FileStore) watchLoop(
	ctx context.Context, watcher *fsnotify.Watcher, path, target string,
	last []byte, lastExists bool, ch chan<- Snapshot,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-s.closed:
			trySend(ch, Snapshot{Err: ErrClosed})
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			doc, exists, err := s.read(path)
			if err != nil {
				s.logger.Warn("file subscription failed", slog.String("path", path), slog.String("error", err.Error()))
				trySend(ch, Snapshot{Err: err})

				return
			}

			if exists == lastExists && bytes.Equal(doc, last) {
				continue
			}

			last, lastExists = doc, exists

			select {
			case ch <- Snapshot{Doc: doc, Exists: exists}:
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}

			s.logger.Warn("file watcher error", slog.String("path", path), slog.String("error", werr.Error()))
			trySend(ch, Snapshot{Err: fmt.Errorf("%w: watcher: %w", ErrUnavailable, werr)})

			return
		}
	}
}

// Close ends all subscriptions.
func (s *FileStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.wg.Wait()
	})

	return nil
}
