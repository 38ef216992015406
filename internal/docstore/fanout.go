package docstore

import (
	"context"
	"sync"
)

// subscriber is one open subscription. Its channel has one slot more than
// subscriberBuffer so a terminal error snapshot always fits.
type subscriber struct {
	ch     chan Snapshot
	echoes bool
	stop   chan struct{}
	done   bool
}

// fanout delivers snapshots to in-process subscribers. Every send happens
// under mu, so subscribers see snapshots in publish order.
type fanout struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

func newFanout() *fanout {
	return &fanout{subs: make(map[string]map[*subscriber]struct{})}
}

// add registers a subscriber for path and queues initial as its first
// snapshot. The subscription is removed when ctx ends.
func (f *fanout) add(ctx context.Context, path string, opts SubscribeOptions, initial Snapshot) (<-chan Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}

	s := &subscriber{
		ch:     make(chan Snapshot, subscriberBuffer+1),
		echoes: opts.IncludeLocalEchoes,
		stop:   make(chan struct{}),
	}

	if f.subs[path] == nil {
		f.subs[path] = make(map[*subscriber]struct{})
	}

	f.subs[path][s] = struct{}{}
	s.ch <- initial

	go func() {
		select {
		case <-ctx.Done():
			f.remove(path, s, nil)
		case <-s.stop:
		}
	}()

	return s.ch, nil
}

// publish sends snap to every subscriber of path. Echo snapshots only go to
// subscribers that asked for local echoes.
func (f *fanout) publish(path string, snap Snapshot, echo bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for s := range f.subs[path] {
		if echo && !s.echoes {
			continue
		}

		if len(s.ch) >= subscriberBuffer {
			f.endLocked(path, s, ErrSlowSubscriber)
			continue
		}

		s.ch <- snap
	}
}

// remove ends one subscription. A non-nil err is delivered as the final
// snapshot.
func (f *fanout) remove(path string, s *subscriber, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.endLocked(path, s, err)
}

func (f *fanout) endLocked(path string, s *subscriber, err error) {
	if s.done {
		return
	}

	s.done = true

	if err != nil {
		s.ch <- Snapshot{Err: err}
	}

	close(s.ch)
	close(s.stop)

	delete(f.subs[path], s)
	if len(f.subs[path]) == 0 {
		delete(f.subs, path)
	}
}

// failPath ends every subscription of path with err.
func (f *fanout) failPath(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for s := range f.subs[path] {
		f.endLocked(path, s, err)
	}
}

// close ends every subscription with ErrClosed and rejects new ones.
func (f *fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	for path, subs := range f.subs {
		for s := range subs {
			f.endLocked(path, s, ErrClosed)
		}
	}
}
