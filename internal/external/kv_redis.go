package external

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisKV adapts go-redis to the KVStore contract. Grounded on the
// original source's redis_client.py wrapper (get/set/setex/delete/keys/
// scan/zadd/zrange/zremrangebyrank/expire), reimplemented as a thin client
// wrapper rather than a bespoke connection manager.
type RedisKV struct {
	Client  *redis.Client
	Timeout time.Duration
}

// NewRedisKV builds a RedisKV bounding every call to timeout (defaulting
// to 2s, matching the "short timeout" requirement of spec §6).
func NewRedisKV(addr string, timeout time.Duration) *RedisKV {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisKV{
		Client:  redis.NewClient(&redis.Options{Addr: addr}),
		Timeout: timeout,
	}
}

func (r *RedisKV) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.Timeout)
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.Client.Set(ctx, key, value, 0).Err()
}

func (r *RedisKV) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.Client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.Client.Del(ctx, key).Err()
}

func (r *RedisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.Client.Keys(ctx, pattern).Result()
}

// Scan performs one non-blocking SCAN iteration, matching spec §4.8's
// "invalidation clears all keys matching the prefix via non-blocking
// scan" requirement rather than the blocking KEYS command in a loop.
func (r *RedisKV) Scan(ctx context.Context, pattern string, cursor uint64) ([]string, uint64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	keys, next, err := r.Client.Scan(ctx, cursor, pattern, 100).Result()
	if err != nil {
		return nil, 0, err
	}
	return keys, next, nil
}

func (r *RedisKV) ZAdd(ctx context.Context, key string, score float64, member string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.Client.ZAdd(ctx, key, &redis.Z{Score: score, Member: member}).Err()
}

func (r *RedisKV) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.Client.ZRange(ctx, key, start, stop).Result()
}

func (r *RedisKV) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.Client.ZRemRangeByRank(ctx, key, start, stop).Err()
}

func (r *RedisKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.Client.Expire(ctx, key, ttl).Err()
}

// InvalidatePrefix clears every key matching prefix+"*" via repeated
// non-blocking Scan calls, never a blocking KEYS (spec §4.8).
func (r *RedisKV) InvalidatePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := r.Scan(ctx, prefix+"*", cursor)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := r.Delete(ctx, k); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
