package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ensure Redis implements the interface.
var _ KV = (*Redis)(nil)

// Redis is a KV backed by a Redis instance, for deployments where several
// clients share one health history.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis connects to the Redis at url (redis://...) and verifies it with a
// short ping. prefix namespaces all keys; empty means "vodsearch:".
func NewRedis(url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if prefix == "" {
		prefix = "vodsearch:"
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

// Load returns the stored value for key, if any.
func (r *Redis) Load(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load %q: %w", key, err)
	}
	return v, true, nil
}

// Save stores or replaces the value for key. Values do not expire; health
// history is meant to survive restarts.
func (r *Redis) Save(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	return nil
}

// Close closes the client connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
