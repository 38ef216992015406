package docstore

import (
	"bytes"
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps documents in process memory. Every client sharing a
// MemoryStore sees the others' writes immediately.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string][]byte
	fanout *fanout
	closed bool

	// failNext, when set, makes the next operation fail with ErrUnavailable.
	failNext bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string][]byte),
		fanout: newFanout(),
	}
}

// FailNext makes the next store operation fail as if the backend were
// unreachable.
func (m *MemoryStore) FailNext() {
	m.mu.Lock()
	m.failNext = true
	m.mu.Unlock()
}

// FailSubscriptions ends every open subscription on path with
// ErrUnavailable, as a dropped connection would.
func (m *MemoryStore) FailSubscriptions(path string) {
	m.fanout.failPath(path, ErrUnavailable)
}

func (m *MemoryStore) check(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}

	if m.closed {
		return ErrClosed
	}

	if m.failNext {
		m.failNext = false
		return ErrUnavailable
	}

	return nil
}

// Get returns a copy of the document at path.
func (m *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(path); err != nil {
		return nil, err
	}

	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}

	return bytes.Clone(doc), nil
}

// Set stores a copy of doc and notifies subscribers.
func (m *MemoryStore) Set(_ context.Context, path string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(path); err != nil {
		return err
	}

	m.docs[path] = bytes.Clone(doc)
	m.fanout.publish(path, Snapshot{Doc: bytes.Clone(doc), Exists: true}, false)

	return nil
}

// Delete removes the document at path and notifies subscribers.
func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(path); err != nil {
		return err
	}

	if _, ok := m.docs[path]; !ok {
		return nil
	}

	delete(m.docs, path)
	m.fanout.publish(path, Snapshot{}, false)

	return nil
}

// List returns the documents directly below prefix.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(prefix); err != nil {
		return nil, err
	}

	paths := []string{}

	for p := range m.docs {
		if isChild(prefix, p) {
			paths = append(paths, p)
		}
	}

	slices.Sort(paths)

	return paths, nil
}

// Subscribe delivers the current document followed by every change.
func (m *MemoryStore) Subscribe(ctx context.Context, path string, opts SubscribeOptions) (<-chan Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(path); err != nil {
		return nil, err
	}

	initial := Snapshot{}
	if doc, ok := m.docs[path]; ok {
		initial = Snapshot{Doc: bytes.Clone(doc), Exists: true}
	}

	return m.fanout.add(ctx, path, opts, initial)
}

// Close ends all subscriptions.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.fanout.close()

	return nil
}
