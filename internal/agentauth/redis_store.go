package agentauth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetNXer is the subset of redis.Cmdable the replay store needs.
type SetNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisStore records keys with SET NX and lets redis expire them, so it
// needs no reaper.
type RedisStore struct {
	client SetNXer
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a redis-backed replay store. ttl should cover at
// least twice the timestamp window.
func NewRedisStore(client SetNXer, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "agentos:nonce:", ttl: ttl}
}

var _ ReplayStore = (*RedisStore)(nil)

// Insert records key unless it already exists.
func (r *RedisStore) Insert(ctx context.Context, key string, at time.Time) error {
	ok, err := r.client.SetNX(ctx, r.prefix+key, at.UnixMilli(), r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateKey
	}
	return nil
}
