package cache

import (
	"context"
	"strings"

	"menlo.ai/jan-feed-gateway/app/utils/logger"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

// NewBackend selects the distributed tier from CACHE_TYPE. Construction
// failures degrade to NoOpBackend so the gateway can still serve from the
// local tier.
func NewBackend() Backend {
	env := environment_variables.EnvironmentVariables
	cacheType := strings.ToLower(env.CACHE_TYPE)

	switch cacheType {
	case CacheTypeNone, "local", "memory":
		return NoOpBackend{}
	case CacheTypeValkey:
		backend, err := NewValkeyBackend(env.CACHE_URL, env.CACHE_PASSWORD, env.CACHE_DB)
		if err != nil {
			logger.GetLogger().Warnf("valkey cache disabled: %v", err)
			return NoOpBackend{}
		}
		return backend
	default:
		backend, err := NewRedisBackend(env.CACHE_URL, env.CACHE_PASSWORD, env.CACHE_DB)
		if err != nil {
			logger.GetLogger().Warnf("redis cache disabled: %v", err)
			return NoOpBackend{}
		}
		return backend
	}
}

// NewCacheService builds the tiered cache and runs the initial probe.
func NewCacheService(backend Backend) (*TieredCacheService, error) {
	env := environment_variables.EnvironmentVariables
	svc, err := NewTieredCacheService(backend, Options{
		RetryInterval:   env.CACHE_RETRY_INTERVAL,
		LocalMaxEntries: env.LOCAL_CACHE_MAX_ENTRIES,
	})
	if err != nil {
		return nil, err
	}
	if err := svc.Connect(context.Background()); err != nil {
		logger.GetLogger().Warnf("starting with local cache only: %v", err)
	}
	return svc, nil
}
