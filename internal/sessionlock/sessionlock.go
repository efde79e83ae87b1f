// Package sessionlock serializes gameplay turns per game state.
//
// A turn reads the game state, waits for the model and writes the state back. Two turns on the same game
// running concurrently would lose one of the updates, so handlers hold a lock keyed by the game-state id
// for the whole read-modify-write.
package sessionlock

import (
	"context"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/random"
	"github.com/redis/go-redis/v9"
	"log/slog"
	"sync"
	"time"
)

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

type Locker interface {
	// Lock blocks until key is held or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
}

var ErrNotHeld = errors.NewSentinel("lock not held")

const (
	DefaultTTL          = 2 * time.Minute
	DefaultPollInterval = 50 * time.Millisecond
	keyPrefix           = "casefile:lock:"
)

// releaseScript deletes the key only if it still holds our token so an expired lock taken over by
// another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker shares locks between server instances through redis.
type RedisLocker struct {
	client       redis.UniversalClient
	ttl          time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRedisLocker connects to the redis server at url, e.g. redis://localhost:6379/0.
func NewRedisLocker(ctx context.Context, url string, logger *slog.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(errors.Wrap(err, "ping redis"), client.Close())
	}
	return NewRedisLockerWithClient(client, DefaultTTL, DefaultPollInterval, logger), nil
}

// NewRedisLockerWithClient uses an existing client. Locks expire after ttl in case the holder dies.
func NewRedisLockerWithClient(
	client redis.UniversalClient,
	ttl time.Duration,
	pollInterval time.Duration,
	logger *slog.Logger,
) *RedisLocker {
	return &RedisLocker{
		client:       client,
		ttl:          ttl,
		pollInterval: pollInterval,
		logger:       logger.With(slog.String("source", "RedisLocker")),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	var (
		redisKey = keyPrefix + key
		token    string
		ticker   *time.Ticker
		err      error
	)
	if token, err = random.Letters(32); err != nil {
		return nil, errors.Wrap(err, "generate lock token")
	}
	for {
		var acquired bool
		if acquired, err = l.client.SetNX(ctx, redisKey, token, l.ttl).Result(); err != nil {
			return nil, errors.Wrap(err, "set lock", slog.String("key", key))
		}
		if acquired {
			break
		}
		if ticker == nil {
			ticker = time.NewTicker(l.pollInterval)
			defer ticker.Stop()
			l.logger.LogAttrs(ctx, slog.LevelDebug, "waiting for lock", slog.String("key", key))
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "wait for lock", slog.String("key", key))
		case <-ticker.C:
		}
	}

	return func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			return errors.Wrap(err, "release lock", slog.String("key", key))
		}
		if deleted == 0 {
			return errors.Wrap(ErrNotHeld, "release lock", slog.String("key", key))
		}
		return nil
	}, nil
}

func (l *RedisLocker) Close() error {
	if err := l.client.Close(); err != nil {
		return errors.Wrap(err, "close redis client")
	}
	return nil
}

// LocalLocker holds locks in process memory. It is enough for a single server instance.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	// held has capacity one. Sending acquires the lock and receiving releases it.
	held    chan struct{}
	waiters int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		mu:    sync.Mutex{},
		locks: map[string]*localLock{},
	}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &localLock{held: make(chan struct{}, 1), waiters: 0}
		l.locks[key] = lock
	}
	lock.waiters++
	l.mu.Unlock()

	select {
	case lock.held <- struct{}{}:
	case <-ctx.Done():
		l.forget(key, lock)
		return nil, errors.Wrap(ctx.Err(), "wait for lock", slog.String("key", key))
	}

	var once sync.Once
	return func(context.Context) error {
		err := errors.Wrap(ErrNotHeld, "release lock", slog.String("key", key))
		once.Do(func() {
			<-lock.held
			l.forget(key, lock)
			err = nil
		})
		return err
	}, nil
}

// forget drops the entry once nobody holds or waits for it.
func (l *LocalLocker) forget(key string, lock *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.waiters--
	if lock.waiters == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of keys currently held or waited for.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
