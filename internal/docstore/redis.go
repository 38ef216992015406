package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "shiftplan:doc:"
	redisScanCount = 100

	redisNotifySet    = "set"
	redisNotifyDelete = "delete"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps each document under the key "shiftplan:doc:<path>" and
// publishes a notification on the channel of the same name after every
// write. Subscribers re-read the key on each notification.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", ErrUnavailable, opts.Addr, err)
	}

	logger.Info("redis store connected", slog.String("addr", opts.Addr), slog.Int("db", opts.DB))

	return &RedisStore{client: client, logger: logger, closed: make(chan struct{})}, nil
}

func redisKey(path string) string {
	return redisKeyPrefix + path
}

func (s *RedisStore) check(path string) error {
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

func (s *RedisStore) read(ctx context.Context, path string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, redisKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: redis GET %s: %w", ErrUnavailable, path, err)
	}

	return data, true, nil
}

// Get returns the document at path.
func (s *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := s.check(path); err != nil {
		return nil, err
	}

	data, ok, err := s.read(ctx, path)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrNotFound
	}

	return data, nil
}

// Set stores doc and publishes a change notification in one transaction.
func (s *RedisStore) Set(ctx context.Context, path string, doc []byte) error {
	if err := s.check(path); err != nil {
		return err
	}

	key := redisKey(path)

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, doc, 0)
		p.Publish(ctx, key, redisNotifySet)

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis SET %s: %w", ErrUnavailable, path, err)
	}

	return nil
}

// Delete removes the document and publishes a change notification.
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	if err := s.check(path); err != nil {
		return err
	}

	key := redisKey(path)

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.Publish(ctx, key, redisNotifyDelete)

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis DEL %s: %w", ErrUnavailable, path, err)
	}

	return nil
}

// redisGlobEscaper quotes the characters SCAN MATCH treats as patterns.
var redisGlobEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// List scans the keys below prefix.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(prefix); err != nil {
		return nil, err
	}

	match := redisGlobEscaper.Replace(redisKey(prefix)) + "/*"
	paths := []string{}

	iter := s.client.Scan(ctx, 0, match, redisScanCount).Iterator()
	for iter.Next(ctx) {
		p := strings.TrimPrefix(iter.Val(), redisKeyPrefix)
		if isChild(prefix, p) && !slices.Contains(paths, p) {
			paths = append(paths, p)
		}
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: redis SCAN %s: %w", ErrUnavailable, prefix, err)
	}

	slices.Sort(paths)

	return paths, nil
}

// Subscribe listens on the document's channel. The subscription is
// confirmed before the initial read, so no write is missed.
func (s *RedisStore) Subscribe(ctx context.Context, path string, _ SubscribeOptions) (<-chan Snapshot, error) {
	if err := s.check(path); err != nil {
		return nil, err
	}

	pubsub := s.client.Subscribe(ctx, redisKey(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: redis SUBSCRIBE %s: %w", ErrUnavailable, path, err)
	}

	doc, exists, err := s.read(ctx, path)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	ch := make(chan Snapshot, subscriberBuffer)
	ch <- Snapshot{Doc: doc, Exists: exists}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(ch)
		defer pubsub.Close()

		s.listen(ctx, pubsub, path, ch)
	}()

	return ch, nil
}

func (s *RedisStore) listen(ctx context.Context, pubsub *redis.PubSub, path string, ch chan<- Snapshot) {
	msgs := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.closed:
			trySend(ch, Snapshot{Err: ErrClosed})
			return

		case msg, ok := <-msgs:
			if !ok {
				trySend(ch, Snapshot{Err: fmt.Errorf("%w: redis subscription closed", ErrUnavailable)})
				return
			}

			snap := Snapshot{}

			if msg.Payload != redisNotifyDelete {
				doc, exists, err := s.read(ctx, path)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Warn("redis subscription failed", slog.String("path", path), slog.String("error", err.Error()))
						trySend(ch, Snapshot{Err: err})
					}

					return
				}

				snap = Snapshot{Doc: doc, Exists: exists}
			}

			select {
			case ch <- snap:
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			}
		}
	}
}

// Close ends all subscriptions and closes the client.
func (s *RedisStore) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.closed)
		s.wg.Wait()

		if cerr := s.client.Close(); cerr != nil {
			err = fmt.Errorf("docstore: closing redis client: %w", cerr)
		}
	})

	return err
}
