package cache

import (
	"context"
	"time"
)

// NoOpBackend stands in when the distributed tier is disabled. It never
// answers a ping, so the tiered service runs on the local store alone.
type NoOpBackend struct{}

func (NoOpBackend) Name() string {
	return CacheTypeNone
}

func (NoOpBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrBackendUnavailable
}

func (NoOpBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return ErrBackendUnavailable
}

func (NoOpBackend) Delete(ctx context.Context, key string) error {
	return ErrBackendUnavailable
}

func (NoOpBackend) Exists(ctx context.Context, key string) (bool, error) {
	return false, ErrBackendUnavailable
}

func (NoOpBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	return nil, ErrBackendUnavailable
}

func (NoOpBackend) DeletePattern(ctx context.Context, pattern string) (int, error) {
	return 0, ErrBackendUnavailable
}

func (NoOpBackend) Ping(ctx context.Context) error {
	return ErrBackendUnavailable
}

func (NoOpBackend) Close() error {
	return nil
}
