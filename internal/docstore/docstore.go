// Package docstore is the remote document store the plan is synchronized
// through. A store holds opaque JSON documents addressed by slash-separated
// paths and pushes every change of a document to its subscribers.
//
// Backends:
//   - memory: in-process, for tests and single-process use
//   - sqlite: a local database file, subscriptions by polling
//   - file: one JSON file per document, subscriptions via fsnotify
//   - redis: GET/SET with pub/sub change notifications
//   - websocket: a client for the shiftplan hub server
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrUnavailable wraps every transport or backend failure.
	ErrUnavailable = errors.New("docstore: store unavailable")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("docstore: store closed")

	// ErrSlowSubscriber ends a subscription whose consumer fell behind.
	ErrSlowSubscriber = errors.New("docstore: subscriber fell behind")

	// ErrInvalidPath is returned for empty or malformed document paths.
	ErrInvalidPath = errors.New("docstore: invalid document path")
)

// subscriberBuffer is how many undelivered snapshots a subscriber may hold
// before it is dropped with ErrSlowSubscriber.
const subscriberBuffer = 64

// Metadata describes where a snapshot came from.
type Metadata struct {
	// FromCache is set for snapshots served from a local cache rather than
	// confirmed by the backend.
	FromCache bool `json:"fromCache"`

	// HasPendingWrites is set for local echoes of writes the backend has not
	// acknowledged yet.
	HasPendingWrites bool `json:"hasPendingWrites"`
}

// Snapshot is one observed version of a document. A snapshot with Err set
// is the last one on its channel.
type Snapshot struct {
	Doc      []byte
	Exists   bool
	Metadata Metadata
	Err      error
}

// SubscribeOptions tunes a subscription.
type SubscribeOptions struct {
	// IncludeLocalEchoes delivers a snapshot for this client's own writes
	// before the backend confirms them. Backends without a client-side cache
	// confirm writes synchronously and ignore it.
	IncludeLocalEchoes bool
}

// Store is a document store. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the document at path, or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)

	// Set replaces the document at path.
	Set(ctx context.Context, path string, doc []byte) error

	// Delete removes the document at path. Deleting a missing document is
	// not an error.
	Delete(ctx context.Context, path string) error

	// List returns the paths of the documents directly below prefix, in
	// lexical order. A prefix without documents yields an empty list.
	List(ctx context.Context, prefix string) ([]string, error)

	// Subscribe delivers the current state of path followed by every change
	// in the order the backend observed them. The channel closes when ctx
	// ends or after a snapshot carrying Err.
	Subscribe(ctx context.Context, path string, opts SubscribeOptions) (<-chan Snapshot, error)

	// Close releases the store. Open subscriptions end.
	Close() error
}

// isChild reports whether path is exactly one segment below prefix.
func isChild(prefix, path string) bool {
	rest, ok := strings.CutPrefix(path, prefix+"/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}

// ValidatePath checks a document path: non-empty slash-separated segments
// without "." or ".." elements.
func ValidatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return ErrInvalidPath
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `\`+"\x00") {
			return ErrInvalidPath
		}
	}

	return nil
}
