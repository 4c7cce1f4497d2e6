// Package lease 提供按实体 key 串行化的租约锁。
// 配置了 Redis 时使用 SET NX PX 的分布式租约，否则退化为进程内的 keyed mutex。
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"foundryhost/pkg/log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ErrNotAcquired = errors.New("lease: resource is locked by another holder")

const keyPrefix = "foundryhost:lease:"

type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire 阻塞直到拿到租约或 ctx 结束
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// NewLocker 根据 data.redis 配置选择实现
func NewLocker(conf *viper.Viper, rdb *redis.Client, logger *log.Logger) Locker {
	retry := conf.GetDuration("lease.retry_interval")
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	if rdb == nil {
		logger.Info("redis not configured, using in-process lease locker")
		return NewLocalLocker()
	}
	return NewRedisLocker(rdb, retry)
}

type heldKey struct{ key string }

// Held 报告 ctx 所在的调用链是否已经通过 WithLease 持有 key
func Held(ctx context.Context, key string) bool {
	return ctx.Value(heldKey{key}) != nil
}

// WithLease 在持有 key 对应租约期间执行 fn。
// 同一调用链内对同一 key 的嵌套调用直接执行 fn，不会重复加锁。
func WithLease(ctx context.Context, locker Locker, logger *log.Logger, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if Held(ctx, key) {
		return fn(ctx)
	}
	l, err := locker.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			logger.WithContext(ctx).Warn("release lease failed", zap.String("key", key), zap.Error(err))
		}
	}()
	return fn(context.WithValue(ctx, heldKey{key}, struct{}{}))
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	rdb   *redis.Client
	retry time.Duration
}

func NewRedisLocker(rdb *redis.Client, retry time.Duration) Locker {
	return &redisLocker{rdb: rdb, retry: retry}
}

type redisLease struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, keyPrefix+key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &redisLease{rdb: l.rdb, key: key, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{keyPrefix + l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		// 租约已过期并可能被他人持有
		return ErrNotAcquired
	}
	return nil
}

type localLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

// localSlot refs 统计持有者和等待者，归零时从 map 中移除
type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() Locker {
	return &localLocker{slots: make(map[string]*localSlot)}
}

type localLease struct {
	locker *localLocker
	key    string
	slot   *localSlot
	once   sync.Once
}

func (l *localLocker) ref(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *localLocker) unref(key string, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *localLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// ttl 对进程内实现无意义，持有者必须显式 Release
func (l *localLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Lease, error) {
	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
		return &localLease{locker: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
}

func (l *localLease) Key() string { return l.key }

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		<-l.slot.ch
		l.locker.unref(l.key, l.slot)
	})
	return nil
}
