package trending

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/sirupsen/logrus"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedcache"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

const (
	lockName      = "lock:" + feedcache.TrendingKey
	lockExpiry    = 30 * time.Second
	maxCandidates = 1000

	defaultWindow = 48 * time.Hour
	defaultSize   = 50
)

type Config struct {
	Window  time.Duration
	Size    int
	Weights feed.ScoreWeights
}

func ConfigFromEnv() Config {
	env := environment_variables.EnvironmentVariables
	return Config{
		Window:  env.TRENDING_WINDOW,
		Size:    env.TRENDING_SIZE,
		Weights: feed.ConfigFromEnv().Weights,
	}
}

// Service keeps the viewer-independent trending list: the best scored posts
// of the recent window, shared by every viewer through the cache.
type Service struct {
	source feed.RecentSource
	policy *feedcache.Policy
	cache  cache.CacheService
	cfg    Config
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(source feed.RecentSource, policy *feedcache.Policy, cacheService cache.CacheService, cfg Config, opts ...Option) *Service {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Size <= 0 {
		cfg.Size = defaultSize
	}
	s := &Service{
		source: source,
		policy: policy,
		cache:  cacheService,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns up to limit trending posts, computing the list on a miss.
func (s *Service) Get(ctx context.Context, limit int) ([]feed.FeedPost, error) {
	posts, err := s.policy.GetOrLoadTrending(ctx, s.compute)
	if err != nil {
		return nil, common.ErrFetchFailed.Wrap(err)
	}
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// Recompute rebuilds the list and overwrites the cached copy. With a
// distributed cache only one instance recomputes at a time; the others
// return false and leave the cache alone.
func (s *Service) Recompute(ctx context.Context) (bool, error) {
	if mutex := s.cache.NewMutex(lockName, redsync.WithExpiry(lockExpiry), redsync.WithTries(1)); mutex != nil {
		if err := mutex.LockContext(ctx); err != nil {
			s.log().WithError(err).Debug("trending recompute already running elsewhere")
			return false, nil
		}
		defer func() {
			if _, err := mutex.UnlockContext(context.Background()); err != nil {
				s.log().WithError(err).Warn("failed to release trending lock")
			}
		}()
	}

	posts, err := s.compute(ctx)
	if err != nil {
		return false, common.ErrFetchFailed.Wrap(err)
	}
	s.policy.StoreTrending(ctx, posts)
	return true, nil
}

// Warmup is run by the scheduler so viewers rarely pay for the recompute.
func (s *Service) Warmup(ctx context.Context) {
	start := s.now()
	ok, err := s.Recompute(ctx)
	if err != nil {
		s.log().WithError(err).Warn("trending warmup failed")
		return
	}
	if ok {
		s.log().WithField("duration", s.now().Sub(start)).Debug("trending warmed")
	}
}

func (s *Service) compute(ctx context.Context) ([]feed.FeedPost, error) {
	now := s.now()
	rows, err := s.source.FetchSince(ctx, now.Add(-s.cfg.Window), maxCandidates)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].IsLiked = false
		rows[i].IsShared = false
	}
	ranked := feed.RankPage(rows, func(p feed.FeedPost) float64 {
		return s.cfg.Weights.Score(p, now)
	})
	if len(ranked) > s.cfg.Size {
		ranked = ranked[:s.cfg.Size]
	}
	return ranked, nil
}

func (s *Service) log() *logrus.Entry {
	return logger.GetLogger().WithField("component", "trending")
}
