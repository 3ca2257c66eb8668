package flagstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/posoffline/internal/errors"
)

const redisKeyPrefix = "posoffline:flag:"

// RedisStore keeps flags in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStoreFromURL connects using a redis:// or rediss:// URL.
func NewRedisStoreFromURL(rawURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid redis url: %v", err)
	}
	return NewRedisStore(redis.NewClient(opt)), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Set stores value under key without expiry.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err()
}

// Get returns the value of key or ErrFlagNotFound.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrFlagNotFound
	}
	return value, err
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisKeyPrefix+key).Err()
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
