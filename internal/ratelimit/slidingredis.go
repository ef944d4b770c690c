package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter keeps one Redis sorted set per key, scored by event time in
// nanoseconds. It throttles intent creation and also counts strikes for the
// admin PIN guard and checkout abuse detection.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

func nanos(t time.Time) string { return strconv.FormatInt(t.UnixNano(), 10) }

// Allow records one event under key and reports whether at most limit events
// fall inside the trailing window. reset is when the oldest counted event
// leaves the window. Rejected events are still recorded.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now()
	if l.Client == nil || limit <= 0 || window <= 0 {
		return true, limit, now.Add(window), nil
	}
	set := l.Prefix + key

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err = l.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, set, "-inf", nanos(now.Add(-window)))
		p.ZAdd(ctx, set, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
		card = p.ZCard(ctx, set)
		oldest = p.ZRangeWithScores(ctx, set, 0, 0)
		p.PExpire(ctx, set, window)
		return nil
	})
	if err != nil {
		return false, 0, now.Add(window), err
	}

	reset = now.Add(window)
	if first := oldest.Val(); len(first) == 1 {
		reset = time.Unix(0, int64(first[0].Score)).Add(window)
	}
	n := int(card.Val())
	return n <= limit, max(limit-n, 0), reset, nil
}

// Count returns the events under key inside the trailing window without
// recording a new one.
func (l Limiter) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	if l.Client == nil || window <= 0 {
		return 0, nil
	}
	since := "(" + nanos(time.Now().Add(-window))
	n, err := l.Client.ZCount(ctx, l.Prefix+key, since, "+inf").Result()
	return int(n), err
}

// Reset forgets every event under key.
func (l Limiter) Reset(ctx context.Context, key string) error {
	if l.Client == nil {
		return nil
	}
	return l.Client.Del(ctx, l.Prefix+key).Err()
}
