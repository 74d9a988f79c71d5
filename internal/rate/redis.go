package rate

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares counters across processes. INCR is atomic per key, so
// concurrent requests from the same client never lose updates. On backend
// errors it fails open rather than taking the site down with it.
type RedisLimiter struct {
	rdb *redis.Client
}

func NewRedisLimiter(addr string) (*RedisLimiter, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisLimiter{rdb: rdb}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration) {
	k := "rate:" + key
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		log.Printf("rate limiter redis incr failed key=%s err=%v", key, err)
		return true, 0
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, window).Err(); err != nil {
			log.Printf("rate limiter redis expire failed key=%s err=%v", key, err)
		}
	}
	if int(count) > limit {
		// The over-limit request is not kept in the counter.
		_ = l.rdb.Decr(ctx, k).Err()
		ttl, err := l.rdb.TTL(ctx, k).Result()
		if err != nil || ttl < 0 {
			ttl = window
		}
		return false, ttl
	}
	return true, 0
}

func (l *RedisLimiter) Forgive(ctx context.Context, key string) {
	if err := l.rdb.Decr(ctx, "rate:"+key).Err(); err != nil {
		log.Printf("rate limiter redis decr failed key=%s err=%v", key, err)
	}
}
