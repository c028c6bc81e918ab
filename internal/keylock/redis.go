package keylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/redis"
)

const (
	defaultTTL          = 30 * time.Second
	defaultWait         = 5 * time.Second
	defaultPollInterval = 25 * time.Millisecond
	releaseTimeout      = 2 * time.Second
)

// ErrLockTimeout is returned when the key stays held for longer than the
// configured wait.
var ErrLockTimeout = errors.New("timed out waiting for key lock")

// RedisLocker implements Locker with SET NX PX and an owner token, so only
// the holder can release and a crashed holder expires after the TTL.
type RedisLocker struct {
	store redis.LockStore
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

func NewRedisLocker(store redis.LockStore, ttl, wait time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis lock store required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if wait <= 0 {
		wait = defaultWait
	}
	return &RedisLocker{store: store, ttl: ttl, wait: wait, poll: defaultPollInterval}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.store.LockKey(key)
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.store.SetNX(ctx, redisKey, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire key lock")
		}
		if ok {
			return l.unlockFunc(redisKey, owner), nil
		}
		if time.Now().After(deadline) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ErrLockTimeout, "key is busy, retry later").
				WithDetails(map[string]any{"key": key})
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

func (l *RedisLocker) unlockFunc(redisKey, owner string) Unlock {
	return func() error {
		// the request context may already be cancelled; release regardless
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if _, err := l.store.ReleaseLock(ctx, redisKey, owner); err != nil {
			return fmt.Errorf("release key lock %s: %w", redisKey, err)
		}
		return nil
	}
}
