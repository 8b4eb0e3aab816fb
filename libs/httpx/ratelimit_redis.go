package httpx

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts requests per key in fixed windows shared by every
// service instance. Each window gets its own key that expires with it.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *RedisLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window < time.Second {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "timetable:rl"
	}
	return &RedisLimiter{rdb: rdb, limit: int64(limit), window: window, prefix: prefix, now: time.Now}
}

func (rl *RedisLimiter) bucketKey(key string) string {
	bucket := rl.now().UnixNano() / int64(rl.window)
	return rl.prefix + ":" + key + ":" + strconv.FormatInt(bucket, 10)
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := rl.bucketKey(key)
	var incr *redis.IntCmd
	_, err := rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, rl.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= rl.limit, nil
}
