package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned by operations that cannot degrade gracefully
// when Redis is not connected. Most callers treat a nil client as "allow".
var ErrUnavailable = errors.New("cache: redis unavailable")

// IncrWindow increments a fixed-window counter. The expiry is set only when
// the increment creates the key, so the window measures from the first hit.
// Returns the post-increment count and the remaining window.
func IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	rdb := GetClient()
	if rdb == nil {
		return 0, 0, ErrUnavailable
	}

	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}

// AddIfAbsent sets key=value with a TTL only if the key does not exist.
// Returns true when this call created the key.
func AddIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	rdb := GetClient()
	if rdb == nil {
		return false, ErrUnavailable
	}
	return rdb.SetNX(ctx, key, value, ttl).Result()
}

// SetWithTTL unconditionally writes key=value with the given TTL.
func SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	rdb := GetClient()
	if rdb == nil {
		return ErrUnavailable
	}
	return rdb.Set(ctx, key, value, ttl).Err()
}

// GetString fetches a key; a missing key returns ("", false, nil).
func GetString(ctx context.Context, key string) (string, bool, error) {
	rdb := GetClient()
	if rdb == nil {
		return "", false, ErrUnavailable
	}
	val, err := rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// GetInt fetches an integer counter; a missing key reads as zero.
func GetInt(ctx context.Context, key string) (int64, error) {
	rdb := GetClient()
	if rdb == nil {
		return 0, ErrUnavailable
	}
	val, err := rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// Exists reports whether the key is present.
func Exists(ctx context.Context, key string) (bool, error) {
	rdb := GetClient()
	if rdb == nil {
		return false, ErrUnavailable
	}
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// RemainingTTL returns the key's TTL, or zero when the key is absent.
func RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	rdb := GetClient()
	if rdb == nil {
		return 0, ErrUnavailable
	}
	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Delete removes keys, ignoring ones that do not exist.
func Delete(ctx context.Context, keys ...string) error {
	rdb := GetClient()
	if rdb == nil {
		return ErrUnavailable
	}
	return rdb.Del(ctx, keys...).Err()
}
