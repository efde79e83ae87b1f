package sessionlock_test

import (
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/myrjola/casefile/internal/sessionlock"
	"github.com/myrjola/casefile/internal/testhelpers"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newRedisLocker(t *testing.T) (*sessionlock.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	locker, err := sessionlock.NewRedisLocker(context.Background(), "redis://"+mr.Addr(),
		testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, locker.Close())
	})
	return locker, mr
}

func TestLocker(t *testing.T) {
	lockers := map[string]func(t *testing.T) sessionlock.Locker{
		"local": func(*testing.T) sessionlock.Locker {
			return sessionlock.NewLocalLocker()
		},
		"redis": func(t *testing.T) sessionlock.Locker {
			locker, _ := newRedisLocker(t)
			return locker
		},
	}
	for name, newLocker := range lockers {
		t.Run(name, func(t *testing.T) {
			t.Run("excludes holders of the same key", func(t *testing.T) {
				var (
					ctx    = context.Background()
					locker = newLocker(t)
				)
				unlock, err := locker.Lock(ctx, "game")
				require.NoError(t, err)

				waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
				defer cancel()
				_, err = locker.Lock(waitCtx, "game")
				require.ErrorIs(t, err, context.DeadlineExceeded)

				other, err := locker.Lock(ctx, "other game")
				require.NoError(t, err)
				require.NoError(t, other(ctx))

				require.NoError(t, unlock(ctx))
				require.ErrorIs(t, unlock(ctx), sessionlock.ErrNotHeld)

				again, err := locker.Lock(ctx, "game")
				require.NoError(t, err)
				require.NoError(t, again(ctx))
			})

			t.Run("serializes concurrent turns", func(t *testing.T) {
				var (
					ctx       = context.Background()
					locker    = newLocker(t)
					wg        sync.WaitGroup
					inside    atomic.Int32
					maxInside atomic.Int32
					turns     atomic.Int32
				)
				for range 8 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						unlock, err := locker.Lock(ctx, "game")
						if err != nil {
							t.Error(err)
							return
						}
						if n := inside.Add(1); n > maxInside.Load() {
							maxInside.Store(n)
						}
						time.Sleep(5 * time.Millisecond)
						turns.Add(1)
						inside.Add(-1)
						if err = unlock(ctx); err != nil {
							t.Error(err)
						}
					}()
				}
				wg.Wait()
				require.Equal(t, int32(8), turns.Load())
				require.Equal(t, int32(1), maxInside.Load())
			})
		})
	}
}

func TestRedisLocker_expiredLock(t *testing.T) {
	var (
		ctx    = context.Background()
		mr     = miniredis.RunT(t)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()}) //nolint:exhaustruct // defaults are fine
		locker = sessionlock.NewRedisLockerWithClient(client, time.Second, 10*time.Millisecond,
			testhelpers.NewLogger(io.Discard))
	)
	t.Cleanup(func() {
		require.NoError(t, locker.Close())
	})

	stale, err := locker.Lock(ctx, "game")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	current, err := locker.Lock(ctx, "game")
	require.NoError(t, err)

	// The stale holder must not release the lock it lost.
	require.ErrorIs(t, stale(ctx), sessionlock.ErrNotHeld)
	require.True(t, mr.Exists("casefile:lock:game"))
	require.NoError(t, current(ctx))
	require.False(t, mr.Exists("casefile:lock:game"))
}

func TestLocalLocker_forgetsReleasedKeys(t *testing.T) {
	var (
		ctx    = context.Background()
		locker = sessionlock.NewLocalLocker()
	)
	unlock, err := locker.Lock(ctx, "game")
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = locker.Lock(cancelled, "game")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, locker.Len())

	require.NoError(t, unlock(ctx))
	require.Equal(t, 0, locker.Len())
}
