package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Get loads and decodes the JSON value at key. A missing key yields
// redis.Nil.
func Get[T any](rdb *redis.Client, ctx context.Context, key string) (*T, error) {
	data, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func SetJSON(rdb *redis.Client, ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, data, ttl).Err()
}

func Del(rdb *redis.Client, ctx context.Context, keys ...string) error {
	return rdb.Del(ctx, keys...).Err()
}
