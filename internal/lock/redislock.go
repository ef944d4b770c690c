package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stays held past MaxWait.
var ErrNotAcquired = errors.New("lock: not acquired")

// compareAndDelete removes the key only while it still holds our token, so a
// holder whose TTL lapsed cannot free somebody else's lock.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker is a single-instance Redis mutex. Webhook settlement holds one per
// payment intent so duplicate deliveries are applied one at a time.
type Locker struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock polls a held lock. Zero waits until ctx ends.
	MaxWait time.Duration
}

// WithLock runs fn while holding key. The lock is released when fn returns.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	switch {
	case l.R == nil:
		return errors.New("lock: redis client not configured")
	case fn == nil:
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	name, token := l.Prefix+key, uuid.NewString()
	if err := l.acquire(ctx, name, token, ttl); err != nil {
		if errors.Is(err, ErrNotAcquired) {
			return fmt.Errorf("%w: %s", err, key)
		}
		return err
	}
	defer func() {
		_ = compareAndDelete.Run(context.WithoutCancel(ctx), l.R, []string{name}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, name, token string, ttl time.Duration) error {
	poll := l.RetryBackoff
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	waitCtx := ctx
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, name, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrNotAcquired
		case <-ticker.C:
		}
	}
}
