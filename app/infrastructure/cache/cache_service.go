package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
)

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrBackendUnavailable = errors.New("cache: backend unavailable")
)

// Backend is the distributed tier. Implementations return ErrCacheMiss from
// Get when the key does not exist and plain errors for transport failures.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	DeletePattern(ctx context.Context, pattern string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Locker is implemented by backends that can hand out distributed mutexes.
type Locker interface {
	NewMutex(name string, options ...redsync.Option) *redsync.Mutex
}

// ComputeFunc produces the value for a cache miss.
type ComputeFunc func(ctx context.Context) (any, error)

// CacheService is the handle shared by every feed component. All operations
// are best-effort: cache failures resolve to a miss or a no-op and are never
// returned to the caller.
type CacheService interface {
	// Set serializes value to JSON and stores it with the given ttl
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool

	// Get decodes the cached value into dest and reports whether it was found
	Get(ctx context.Context, key string, dest any) bool

	Delete(ctx context.Context, key string) bool

	// DeletePattern removes all keys matching a glob pattern on both tiers
	DeletePattern(ctx context.Context, pattern string) int

	Exists(ctx context.Context, key string) bool

	// GetOrSet is the cache-aside primitive. Only errors from compute are returned.
	GetOrSet(ctx context.Context, key string, dest any, compute ComputeFunc, ttl time.Duration) error

	// Sweep evicts expired entries from the local tier
	Sweep(now time.Time) int

	Connect(ctx context.Context) error
	Close() error
	HealthCheck(ctx context.Context) error
	Available() bool

	// NewMutex returns nil when no distributed tier can provide a lock
	NewMutex(name string, options ...redsync.Option) *redsync.Mutex

	Metrics() *CacheMetrics
}
