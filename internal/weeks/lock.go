package weeks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/orderplanner/internal/planning"
	pkgerrors "github.com/angelmondragon/orderplanner/pkg/errors"
	"github.com/angelmondragon/orderplanner/pkg/logger"
	"github.com/angelmondragon/orderplanner/pkg/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL  = 30 * time.Second
	defaultLockWait = 10 * time.Second
	defaultLockPoll = 50 * time.Millisecond
	releaseTimeout  = 2 * time.Second
)

// WeekLocker serializes mutations of one week. The returned func releases
// the lock and is safe to call once.
type WeekLocker interface {
	Lock(ctx context.Context, key planning.WeekKey) (func(), error)
}

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	WeekLockKey(year, week int) string
}

// RedisLockerParams configure a RedisLocker. Instance prefixes lock values
// so a held lock names its replica.
type RedisLockerParams struct {
	Client   redisStore
	Instance string
	TTL      time.Duration
	Wait     time.Duration
	Poll     time.Duration
	Metrics  *metrics.PlanningMetrics
	Logger   *logger.Logger
}

// RedisLocker implements WeekLocker with Redis SETNX + TTL, so several API
// replicas share one writer per week.
type RedisLocker struct {
	client   redisStore
	instance string
	ttl      time.Duration
	wait     time.Duration
	poll     time.Duration
	metrics  *metrics.PlanningMetrics
	logg     *logger.Logger
}

// NewRedisLocker constructs a Redis-backed week locker.
func NewRedisLocker(params RedisLockerParams) (*RedisLocker, error) {
	if params.Client == nil {
		return nil, errors.New("redis client required for week lock")
	}
	l := &RedisLocker{
		client:   params.Client,
		instance: params.Instance,
		ttl:      params.TTL,
		wait:     params.Wait,
		poll:     params.Poll,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}
	if l.logg == nil {
		l.logg = logger.Nop()
	}
	if l.ttl <= 0 {
		l.ttl = defaultLockTTL
	}
	if l.wait <= 0 {
		l.wait = defaultLockWait
	}
	if l.poll <= 0 {
		l.poll = defaultLockPoll
	}
	return l, nil
}

// Lock polls SETNX until the week is free, the wait budget is spent or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key planning.WeekKey) (func(), error) {
	lockKey := l.client.WeekLockKey(key.Year, key.Week)
	owner := uuid.NewString()
	if l.instance != "" {
		owner = l.instance + ":" + owner
	}
	start := time.Now()
	deadline := start.Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, lockKey, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("setnx: %w", err), "acquire week lock")
		}
		if ok {
			l.metrics.ObserveLockWait(time.Since(start))
			var once sync.Once
			return func() {
				once.Do(func() { l.release(ctx, lockKey, owner) })
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "week %s is locked by another writer", key)
		}

		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// release frees the lock only if the owner value still matches.
func (l *RedisLocker) release(ctx context.Context, lockKey, owner string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	value, err := l.client.Get(ctx, lockKey)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logg.Error(ctx, "read week lock owner", err)
		}
		return
	}
	if value != owner {
		return
	}
	if err := l.client.Del(ctx, lockKey); err != nil {
		l.logg.Error(ctx, "delete week lock", err)
	}
}

// LocalLocker is the in-process WeekLocker used when Redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[planning.WeekKey]chan struct{}
}

// NewLocalLocker builds an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[planning.WeekKey]chan struct{}{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key planning.WeekKey) (func(), error) {
	slot := l.slot(key)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}

func (l *LocalLocker) slot(key planning.WeekKey) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	return slot
}
