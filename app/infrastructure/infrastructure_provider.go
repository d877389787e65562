package infrastructure

import (
	"strings"

	"github.com/google/wire"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedsession"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
	"menlo.ai/jan-feed-gateway/app/infrastructure/database"
	"menlo.ai/jan-feed-gateway/app/infrastructure/database/repository/postrepo"
	"menlo.ai/jan-feed-gateway/app/infrastructure/feedsource"
	"menlo.ai/jan-feed-gateway/app/infrastructure/realtime"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

const (
	FeedSourcePostgres = "postgres"
	FeedSourceHTTP     = "http"
)

var InfrastructureProvider = wire.NewSet(
	cache.NewBackend,
	cache.NewCacheService,
	wire.Bind(new(cache.CacheService), new(*cache.TieredCacheService)),
	ProvideFeedStore,
	ProvideBus,
)

// ProvideFeedStore picks the feed backend from FEED_SOURCE.
func ProvideFeedStore() (feed.Store, func(), error) {
	env := environment_variables.EnvironmentVariables
	switch strings.ToLower(env.FEED_SOURCE) {
	case FeedSourceHTTP:
		source := feedsource.NewHTTPSource(env.FEED_UPSTREAM_URL)
		return source, func() {
			if err := source.Close(); err != nil {
				logger.GetLogger().Warnf("failed to close feed upstream client: %v", err)
			}
		}, nil
	default:
		db, err := database.NewDB()
		if err != nil {
			return nil, nil, err
		}
		return postrepo.NewPostGormRepository(db), func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	}
}

func ProvideBus(backend cache.Backend, registry *feedsession.Registry) realtime.Bus {
	return realtime.NewBus(backend, registry)
}
