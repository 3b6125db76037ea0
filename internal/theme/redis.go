package theme

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const redisThemePrefix = "cinefinder:theme:"

// RedisStore keeps theme flags in Redis without expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Theme, bool, error) {
	value, err := r.client.Get(ctx, redisThemePrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	theme, ok := Parse(value)
	if !ok {
		return "", false, nil
	}
	return theme, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, theme Theme) error {
	if _, ok := Parse(string(theme)); !ok {
		return ErrInvalidTheme
	}
	return r.client.Set(ctx, redisThemePrefix+key, string(theme), 0).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
