package domain

import (
	"github.com/google/wire"
	"menlo.ai/jan-feed-gateway/app/domain/cron"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedcache"
	"menlo.ai/jan-feed-gateway/app/domain/feedsession"
	"menlo.ai/jan-feed-gateway/app/domain/trending"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
)

var ServiceProvider = wire.NewSet(
	feed.ConfigFromEnv,
	feedcache.TTLConfigFromEnv,
	feedcache.NewPolicy,
	trending.ConfigFromEnv,
	ProvideRegistry,
	ProvideTrendingService,
	ProvideCronService,
)

func ProvideRegistry(store feed.Store, policy *feedcache.Policy, cfg feed.Config) *feedsession.Registry {
	return feedsession.NewRegistry(store, store, policy, cfg)
}

func ProvideTrendingService(store feed.Store, policy *feedcache.Policy, cacheService cache.CacheService, cfg trending.Config) *trending.Service {
	return trending.NewService(store, policy, cacheService, cfg)
}

func ProvideCronService(cacheService cache.CacheService, registry *feedsession.Registry, trendingService *trending.Service) *cron.CronService {
	return cron.NewService(cacheService, registry, trendingService)
}
