package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisBackend stores entries in Redis and hands out redsync mutexes.
type RedisBackend struct {
	client *redis.Client
	rs     *redsync.Redsync
}

// NewRedisBackend builds a client from a redis:// URL. password and db
// override what the URL carries when set.
func NewRedisBackend(redisURL, password, db string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q: %w", db, err)
		}
		opts.DB = n
	}
	return NewRedisBackendFromClient(redis.NewClient(opts)), nil
}

func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
	}
}

// Client exposes the underlying client for pub/sub consumers.
func (r *RedisBackend) Client() *redis.Client {
	return r.client
}

func (r *RedisBackend) Name() string {
	return CacheTypeRedis
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}
	return val, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Unlink(ctx, key).Err()
}

func (r *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	return n > 0, nil
}

func (r *RedisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (r *RedisBackend) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			pipe := r.client.Pipeline()
			cmds := make([]*redis.IntCmd, 0, len(keys))
			for _, k := range keys {
				cmds = append(cmds, pipe.Unlink(ctx, k))
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, fmt.Errorf("failed to unlink keys: %w", err)
			}
			for _, cmd := range cmds {
				removed += int(cmd.Val())
			}
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) NewMutex(name string, options ...redsync.Option) *redsync.Mutex {
	return r.rs.NewMutex(name, options...)
}
