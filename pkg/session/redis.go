package session

import (
	"context"
	"maps"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisOption configures the Redis session store.
type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix string
	ttl    time.Duration
}

func defaultRedisOptions() *redisOptions {
	return &redisOptions{
		prefix: "volt:session",
		ttl:    time.Hour,
	}
}

// WithPrefix sets the key prefix. Keys are stored as "{prefix}:{id}".
// Default: "volt:session".
func WithPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		o.prefix = prefix
	}
}

// WithTTL sets how long persisted values outlive their last save.
// Zero or negative disables expiration.
// Default: 1 hour.
func WithTTL(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.ttl = d
	}
}

// RedisStore keeps each session in a Redis hash.
// Concurrent loads of the same ID share a single round trip.
type RedisStore struct {
	client redis.UniversalClient
	opts   *redisOptions
	group  singleflight.Group
}

// NewRedisStore creates a Redis-backed Store.
// The client should be obtained from pkg/redis.Open.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	o := defaultRedisOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &RedisStore{client: client, opts: o}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, id string) (map[string]string, error) {
	v, err, _ := r.group.Do(id, func() (any, error) {
		return r.client.HGetAll(ctx, r.key(id)).Result()
	})
	if err != nil {
		return nil, err
	}

	values := v.(map[string]string)
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	// Callers sharing a flight must not share the map.
	return maps.Clone(values), nil
}

// Save implements Store. The hash is replaced atomically.
func (r *RedisStore) Save(ctx context.Context, id string, values map[string]string) error {
	key := r.key(id)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) == 0 {
			return nil
		}
		fields := make(map[string]any, len(values))
		for k, v := range values {
			fields[k] = v
		}
		pipe.HSet(ctx, key, fields)
		if r.opts.ttl > 0 {
			pipe.Expire(ctx, key, r.opts.ttl)
		}
		return nil
	})
	return err
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func (r *RedisStore) key(id string) string {
	if r.opts.prefix == "" {
		return id
	}
	return r.opts.prefix + ":" + id
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
