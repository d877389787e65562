package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
)

type Options struct {
	// RetryInterval bounds how often an unavailable distributed tier is re-probed
	RetryInterval   time.Duration
	LocalMaxEntries int
	Clock           func() time.Time
}

// TieredCacheService reads and writes the distributed backend while it
// answers, and the local store otherwise. Availability is decided by a ping
// probe at Connect and re-checked after failures.
type TieredCacheService struct {
	backend       Backend
	local         *LocalStore
	retryInterval time.Duration
	now           func() time.Time

	available atomic.Bool
	lastCheck atomic.Int64

	group   singleflight.Group
	metrics *CacheMetrics
}

var _ CacheService = (*TieredCacheService)(nil)

func NewTieredCacheService(backend Backend, opts Options) (*TieredCacheService, error) {
	if backend == nil {
		backend = NoOpBackend{}
	}
	local, err := NewLocalStore(opts.LocalMaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}
	retry := opts.RetryInterval
	if retry <= 0 {
		retry = defaultRetryInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TieredCacheService{
		backend:       backend,
		local:         local,
		retryInterval: retry,
		now:           clock,
		metrics:       newCacheMetrics(),
	}, nil
}

// Connect probes the distributed tier. A failed probe is returned for the
// caller to log; the service keeps working on the local tier.
func (s *TieredCacheService) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	s.lastCheck.Store(s.now().UnixNano())
	if err := s.backend.Ping(ctx); err != nil {
		s.available.Store(false)
		return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, s.backend.Name(), err)
	}
	s.available.Store(true)
	s.log().Info("connected to distributed cache")
	return nil
}

func (s *TieredCacheService) Close() error {
	s.available.Store(false)
	s.local.Purge()
	return s.backend.Close()
}

func (s *TieredCacheService) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		s.markUnavailable(ctx, err)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	s.available.Store(true)
	return nil
}

func (s *TieredCacheService) Available() bool {
	return s.available.Load()
}

func (s *TieredCacheService) Metrics() *CacheMetrics {
	return s.metrics
}

func (s *TieredCacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log().WithField("key", key).Warnf("failed to marshal cache value: %v", err)
		return false
	}
	s.setRaw(ctx, key, raw, ttl)
	return true
}

func (s *TieredCacheService) setRaw(ctx context.Context, key string, raw []byte, ttl time.Duration) {
	if s.distributed() {
		bctx, cancel := context.WithTimeout(ctx, backendTimeout)
		err := s.backend.Set(bctx, key, raw, ttl)
		cancel()
		if err == nil {
			// a fallback copy written during an outage must not outlive this write
			s.local.Delete(key)
			return
		}
		s.markUnavailable(ctx, err)
	}
	s.local.Set(key, raw, ttl, s.now())
}

func (s *TieredCacheService) Get(ctx context.Context, key string, dest any) bool {
	raw, fallback, ok := s.getRaw(ctx, key)
	if !ok {
		s.metrics.recordMiss(ctx)
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.log().WithField("key", key).Warnf("dropping undecodable cache entry: %v", err)
		s.Delete(ctx, key)
		s.metrics.recordMiss(ctx)
		return false
	}
	s.metrics.recordHit(ctx, fallback)
	return true
}

func (s *TieredCacheService) getRaw(ctx context.Context, key string) (raw []byte, fallback bool, found bool) {
	if s.distributed() {
		bctx, cancel := context.WithTimeout(ctx, backendTimeout)
		raw, err := s.backend.Get(bctx, key)
		cancel()
		switch {
		case err == nil:
			return raw, false, true
		case errors.Is(err, ErrCacheMiss):
		default:
			s.markUnavailable(ctx, err)
		}
	}
	raw, found = s.local.Get(key, s.now())
	return raw, true, found
}

// Delete reports false when the distributed tier failed to delete the key.
func (s *TieredCacheService) Delete(ctx context.Context, key string) bool {
	ok := true
	if s.distributed() {
		bctx, cancel := context.WithTimeout(ctx, backendTimeout)
		err := s.backend.Delete(bctx, key)
		cancel()
		if err != nil {
			s.markUnavailable(ctx, err)
			ok = false
		}
	}
	s.local.Delete(key)
	return ok
}

func (s *TieredCacheService) DeletePattern(ctx context.Context, pattern string) int {
	removed := 0
	if s.distributed() {
		bctx, cancel := context.WithTimeout(ctx, backendTimeout*4)
		n, err := s.backend.DeletePattern(bctx, pattern)
		cancel()
		removed += n
		if err != nil {
			s.markUnavailable(ctx, err)
		}
	}
	removed += s.local.DeletePattern(pattern)
	s.metrics.recordInvalidations(ctx, removed)
	return removed
}

func (s *TieredCacheService) Exists(ctx context.Context, key string) bool {
	if s.distributed() {
		bctx, cancel := context.WithTimeout(ctx, backendTimeout)
		found, err := s.backend.Exists(bctx, key)
		cancel()
		if err != nil {
			s.markUnavailable(ctx, err)
		} else if found {
			return true
		}
	}
	return s.local.Exists(key, s.now())
}

// Keys lists keys matching pattern on whichever tier is serving.
func (s *TieredCacheService) Keys(ctx context.Context, pattern string) []string {
	if s.distributed() {
		bctx, cancel := context.WithTimeout(ctx, backendTimeout*4)
		keys, err := s.backend.Keys(bctx, pattern)
		cancel()
		if err == nil {
			return keys
		}
		s.markUnavailable(ctx, err)
	}
	return s.local.Keys(pattern, s.now())
}

func (s *TieredCacheService) GetOrSet(ctx context.Context, key string, dest any, compute ComputeFunc, ttl time.Duration) error {
	if s.Get(ctx, key, dest) {
		return nil
	}
	ran := false
	load := func() (any, error) {
		ran = true
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal computed value: %w", err)
		}
		s.setRaw(ctx, key, raw, ttl)
		return raw, nil
	}

	v, err, shared := s.group.Do(key, load)
	if err != nil && shared && !ran && ctx.Err() == nil && isContextError(err) {
		// joined a caller that gave up; our own context is still live
		v, err = load()
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(v.([]byte), dest)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *TieredCacheService) Sweep(now time.Time) int {
	n := s.local.Sweep(now)
	s.metrics.recordEvictions(context.Background(), n)
	return n
}

func (s *TieredCacheService) NewMutex(name string, options ...redsync.Option) *redsync.Mutex {
	locker, ok := s.backend.(Locker)
	if !ok || !s.distributed() {
		return nil
	}
	return locker.NewMutex(name, options...)
}

// distributed reports whether the distributed tier should be used, probing
// it again once the retry interval has passed since the last failure.
func (s *TieredCacheService) distributed() bool {
	if s.available.Load() {
		return true
	}
	last := s.lastCheck.Load()
	now := s.now().UnixNano()
	if now-last < int64(s.retryInterval) {
		return false
	}
	if !s.lastCheck.CompareAndSwap(last, now) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		return false
	}
	s.available.Store(true)
	s.log().Info("distributed cache reachable again")
	return true
}

func (s *TieredCacheService) markUnavailable(ctx context.Context, err error) {
	if ctx.Err() != nil {
		// the caller gave up; that says nothing about the backend
		return
	}
	s.metrics.recordError(ctx)
	s.lastCheck.Store(s.now().UnixNano())
	if s.available.CompareAndSwap(true, false) {
		s.log().Warnf("distributed cache unavailable, serving from local store: %v", err)
	}
}

func (s *TieredCacheService) log() *logrus.Entry {
	return logger.GetLogger().WithField("cache_backend", s.backend.Name())
}
