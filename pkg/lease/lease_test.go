package lease

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"foundryhost/pkg/log"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLocker(client, 5*time.Millisecond)
}

func TestRedisLocker_ExclusiveUntilRelease(t *testing.T) {
	mr, locker := setupMiniRedis(t)
	ctx := context.Background()

	l, err := locker.Acquire(ctx, "license:byol-u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"license:byol-u1"))

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(short, "license:byol-u1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, l.Release(ctx))
	assert.False(t, mr.Exists(keyPrefix+"license:byol-u1"))

	l2, err := locker.Acquire(ctx, "license:byol-u1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l2.Release(ctx))
}

func TestRedisLocker_ExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	mr, locker := setupMiniRedis(t)
	ctx := context.Background()

	old, err := locker.Acquire(ctx, "instance:u1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "instance:u1", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, old.Release(ctx), ErrNotAcquired)
	assert.True(t, mr.Exists(keyPrefix+"instance:u1"))
	require.NoError(t, fresh.Release(ctx))
}

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	locker := NewLocalLocker()
	logger := log.NewNop()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLease(ctx, locker, logger, "session:s1", time.Minute, func(ctx context.Context) error {
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	a, err := locker.Acquire(ctx, "instance:a", time.Minute)
	require.NoError(t, err)
	defer a.Release(ctx)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	b, err := locker.Acquire(short, "instance:b", time.Minute)
	require.NoError(t, err)
	require.NoError(t, b.Release(ctx))

	_, err = locker.Acquire(short, "instance:a", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestLocalLocker_ReleasedKeysAreForgotten(t *testing.T) {
	locker := NewLocalLocker().(*localLocker)
	logger := log.NewNop()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// 一半 key 有竞争，一半各不相同
			key := "instance:shared"
			if i%2 == 0 {
				key = "session:s" + strconv.Itoa(i)
			}
			assert.NoError(t, WithLease(ctx, locker, logger, key, time.Minute, func(context.Context) error {
				time.Sleep(time.Millisecond)
				return nil
			}))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, locker.size())

	held, err := locker.Acquire(ctx, "license:pool", time.Minute)
	require.NoError(t, err)
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(short, "license:pool", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)
	// 超时的等待者不能留下引用
	assert.Equal(t, 1, locker.size())
	require.NoError(t, held.Release(ctx))
	require.NoError(t, held.Release(ctx))
	assert.Equal(t, 0, locker.size())
}

func TestWithLease_NestedSameKeyRunsInline(t *testing.T) {
	locker := NewLocalLocker()
	logger := log.NewNop()
	ctx := context.Background()

	var order []string
	err := WithLease(ctx, locker, logger, "license:pool-u1", time.Minute, func(ctx context.Context) error {
		assert.True(t, Held(ctx, "license:pool-u1"))
		order = append(order, "outer")
		return WithLease(ctx, locker, logger, "license:pool-u1", time.Minute, func(ctx context.Context) error {
			order = append(order, "inner")
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.False(t, Held(ctx, "license:pool-u1"))

	// 不同调用链仍然互斥
	held, err := locker.Acquire(ctx, "license:pool-u1", time.Minute)
	require.NoError(t, err)
	defer held.Release(ctx)
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err = WithLease(short, locker, logger, "license:pool-u1", time.Minute, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrNotAcquired)
}
