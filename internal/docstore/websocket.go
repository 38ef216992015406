package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/oauth2"
)

// WebsocketStore is a client for the hub server. All operations share one
// connection; replies are matched to requests by ID. A dropped connection
// fails every pending call and subscription with ErrUnavailable, and the
// store must be dialed again.
type WebsocketStore struct {
	conn   *websocket.Conn
	logger *slog.Logger
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Message
	subs    map[uint64]*wsSubscription
	err     error

	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

type wsSubscription struct {
	path   string
	echoes bool
	ch     chan Snapshot
}

// DialWebsocket connects to the hub at url. When ts is non-nil its token is
// sent as the Authorization header of the handshake.
func DialWebsocket(ctx context.Context, url string, ts oauth2.TokenSource, logger *slog.Logger) (*WebsocketStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}

	if ts != nil {
		tok, err := ts.Token()
		if err != nil {
			return nil, fmt.Errorf("docstore: obtaining hub token: %w", err)
		}

		header.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	}

	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("docstore: hub rejected token: %w", err)
		}

		return nil, fmt.Errorf("%w: dialing hub %s: %w", ErrUnavailable, url, err)
	}

	conn.SetReadLimit(MaxMessageBytes)

	readCtx, cancel := context.WithCancel(context.Background())

	s := &WebsocketStore{
		conn:    conn,
		logger:  logger,
		pending: make(map[uint64]chan Message),
		subs:    make(map[uint64]*wsSubscription),
		cancel:  cancel,
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	go s.readLoop(readCtx)

	logger.Info("connected to hub", slog.String("url", url))

	return s, nil
}

// StaticToken returns a token source for a fixed bearer token, or nil when
// token is empty.
func StaticToken(token string) oauth2.TokenSource {
	if token == "" {
		return nil
	}

	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

func (s *WebsocketStore) readLoop(ctx context.Context) {
	defer close(s.done)

	for {
		var m Message
		if err := wsjson.Read(ctx, s.conn, &m); err != nil {
			s.fail(err)
			return
		}

		switch m.Op {
		case OpResult, OpError:
			s.mu.Lock()
			reply, ok := s.pending[m.ID]
			delete(s.pending, m.ID)
			s.mu.Unlock()

			if ok {
				reply <- m
			}

		case OpSnapshot:
			s.deliver(m)

		default:
			s.logger.Warn("unexpected hub message", slog.String("op", m.Op))
		}
	}
}

func (s *WebsocketStore) deliver(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[m.ID]
	if !ok {
		return
	}

	if m.Error != "" {
		s.endLocked(m.ID, wireError(m))
		return
	}

	snap := Snapshot{Exists: m.Exists}
	if m.Exists {
		snap.Doc = bytes.Clone(m.Doc)
	}

	if len(sub.ch) >= subscriberBuffer {
		s.endLocked(m.ID, ErrSlowSubscriber)
		go s.unsubscribe(m.ID)

		return
	}

	sub.ch <- snap
}

// endLocked closes one subscription. s.mu must be held.
func (s *WebsocketStore) endLocked(id uint64, err error) {
	sub, ok := s.subs[id]
	if !ok {
		return
	}

	delete(s.subs, id)

	if err != nil {
		sub.ch <- Snapshot{Err: err}
	}

	close(sub.ch)
}

// fail tears the client down after a read error.
func (s *WebsocketStore) fail(readErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := ErrClosed

	select {
	case <-s.closed:
	default:
		err = fmt.Errorf("%w: hub connection lost: %w", ErrUnavailable, readErr)
		s.logger.Warn("hub connection lost", slog.String("error", readErr.Error()))
	}

	s.err = err

	for id, reply := range s.pending {
		reply <- ErrorMessage(id, err)
		delete(s.pending, id)
	}

	for id := range s.subs {
		s.endLocked(id, err)
	}
}

func (s *WebsocketStore) call(ctx context.Context, m Message) (Message, error) {
	if err := ValidatePath(m.Path); err != nil {
		return Message{}, err
	}

	m.ID = s.nextID.Add(1)
	reply := make(chan Message, 1)

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return Message{}, s.err
	}

	s.pending[m.ID] = reply
	s.mu.Unlock()

	if err := wsjson.Write(ctx, s.conn, m); err != nil {
		s.mu.Lock()
		delete(s.pending, m.ID)
		s.mu.Unlock()

		return Message{}, fmt.Errorf("%w: sending %s: %w", ErrUnavailable, m.Op, err)
	}

	select {
	case r := <-reply:
		if r.Op == OpError {
			return r, wireError(r)
		}

		return r, nil

	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, m.ID)
		s.mu.Unlock()

		return Message{}, ctx.Err()
	}
}

// Get returns the document at path.
func (s *WebsocketStore) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := s.call(ctx, Message{Op: OpGet, Path: path})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return bytes.Clone(r.Doc), nil
}

// Set sends doc to the hub. Subscribers of path that asked for local
// echoes see the new document before the hub confirms it.
func (s *WebsocketStore) Set(ctx context.Context, path string, doc []byte) error {
	if !json.Valid(doc) {
		return fmt.Errorf("docstore: document for %s is not valid JSON", path)
	}

	s.echo(path, doc)

	_, err := s.call(ctx, Message{Op: OpSet, Path: path, Doc: bytes.Clone(doc)})

	return err
}

func (s *WebsocketStore) echo(path string, doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sub := range s.subs {
		if sub.path != path || !sub.echoes {
			continue
		}

		if len(sub.ch) >= subscriberBuffer {
			s.endLocked(id, ErrSlowSubscriber)
			continue
		}

		sub.ch <- Snapshot{
			Doc:      bytes.Clone(doc),
			Exists:   true,
			Metadata: Metadata{FromCache: true, HasPendingWrites: true},
		}
	}
}

// Delete removes the document at path.
func (s *WebsocketStore) Delete(ctx context.Context, path string) error {
	_, err := s.call(ctx, Message{Op: OpDelete, Path: path})

	return err
}

// List asks the hub for the documents directly below prefix.
func (s *WebsocketStore) List(ctx context.Context, prefix string) ([]string, error) {
	r, err := s.call(ctx, Message{Op: OpList, Path: prefix})
	if err != nil {
		return nil, err
	}

	if r.Paths == nil {
		return []string{}, nil
	}

	return r.Paths, nil
}

// Subscribe registers a hub subscription. Snapshots for it are accepted as
// soon as the request is sent, so the hub's initial snapshot may arrive
// before its acknowledgement.
func (s *WebsocketStore) Subscribe(ctx context.Context, path string, opts SubscribeOptions) (<-chan Snapshot, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	id := s.nextID.Add(1)
	sub := &wsSubscription{path: path, echoes: opts.IncludeLocalEchoes, ch: make(chan Snapshot, subscriberBuffer+1)}
	reply := make(chan Message, 1)

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}

	s.subs[id] = sub
	s.pending[id] = reply
	s.mu.Unlock()

	abort := func(err error) (<-chan Snapshot, error) {
		s.mu.Lock()
		delete(s.pending, id)
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
		s.mu.Unlock()

		return nil, err
	}

	if err := wsjson.Write(ctx, s.conn, Message{ID: id, Op: OpSubscribe, Path: path}); err != nil {
		return abort(fmt.Errorf("%w: sending subscribe: %w", ErrUnavailable, err))
	}

	select {
	case r := <-reply:
		if r.Op == OpError {
			return abort(wireError(r))
		}
	case <-ctx.Done():
		return abort(ctx.Err())
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
			return
		}

		s.mu.Lock()
		_, live := s.subs[id]
		s.endLocked(id, nil)
		s.mu.Unlock()

		if live {
			s.unsubscribe(id)
		}
	}()

	return sub.ch, nil
}

func (s *WebsocketStore) unsubscribe(id uint64) {
	select {
	case <-s.closed:
		return
	default:
	}

	if err := wsjson.Write(context.Background(), s.conn, Message{ID: id, Op: OpUnsubscribe}); err != nil {
		s.logger.Debug("unsubscribe failed", slog.Uint64("id", id), slog.String("error", err.Error()))
	}
}

// Close closes the connection. Open subscriptions end with ErrClosed.
func (s *WebsocketStore) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.closed)

		cerr := s.conn.Close(websocket.StatusNormalClosure, "")
		s.cancel()
		<-s.done

		if cerr != nil && websocket.CloseStatus(cerr) != websocket.StatusNormalClosure {
			err = fmt.Errorf("docstore: closing hub connection: %w", cerr)
		}
	})

	return err
}
