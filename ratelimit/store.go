package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/go-redis/redis/v8"

	"github.com/neatchat/neatchat/common/random"
)

// Store is the shared sliding-window log the gateway counts against. The
// serving processes are stateless, so every mutation must go through the
// store; no process-local caching of counts is permitted.
type Store interface {
	// Record atomically prunes entries older than the window, inserts a new
	// attempt, and returns the resulting entry count together with the oldest
	// surviving entry's timestamp and the member just inserted.
	Record(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, oldest time.Time, member string, err error)

	// Forget removes a previously recorded attempt. Used only when the gateway
	// is configured to not charge denied requests.
	Forget(ctx context.Context, key string, member string) error
}

// RedisStore keeps one sorted set per (identity, endpoint class) key, scored
// by attempt time in nanoseconds. Prune, insert, count, and TTL refresh run in
// a single MULTI/EXEC so concurrent requests for the same identity cannot
// race each other.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Record(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, string, error) {
	if s.rdb == nil {
		return 0, time.Time{}, "", errors.New("redis not initialized")
	}
	k := s.prefix + key
	// nanosecond score plus a random nonce keeps members unique even when two
	// attempts land on the same clock tick
	member := fmt.Sprintf("%d-%s", now.UnixNano(), random.GetRandomString(8))
	windowStart := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	var countCmd *redis.IntCmd
	var oldestCmd *redis.ZSliceCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "0", windowStart)
		pipe.ZAdd(ctx, k, &redis.Z{Score: float64(now.UnixNano()), Member: member})
		countCmd = pipe.ZCard(ctx, k)
		oldestCmd = pipe.ZRangeWithScores(ctx, k, 0, 0)
		pipe.Expire(ctx, k, window)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, "", errors.Wrapf(err, "record attempt for key %s", key)
	}

	oldest := now
	if zs := oldestCmd.Val(); len(zs) > 0 {
		oldest = time.Unix(0, int64(zs[0].Score))
	}
	return countCmd.Val(), oldest, member, nil
}

func (s *RedisStore) Forget(ctx context.Context, key string, member string) error {
	if s.rdb == nil {
		return errors.New("redis not initialized")
	}
	if err := s.rdb.ZRem(ctx, s.prefix+key, member).Err(); err != nil {
		return errors.Wrapf(err, "forget attempt %s for key %s", member, key)
	}
	return nil
}
