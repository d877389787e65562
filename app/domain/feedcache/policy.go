package feedcache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

const (
	MinFeedTTL           = 5 * time.Minute
	MaxFeedTTL           = 10 * time.Minute
	DefaultTrendingTTL   = 15 * time.Minute
	DefaultScoreTTL      = 5 * time.Minute
	purgeAllFeedPattern  = feedScope + ":*"
	purgeAllScorePattern = scoreScope + ":*"
)

type TTLConfig struct {
	Feed     time.Duration
	Trending time.Duration
	Score    time.Duration
}

func TTLConfigFromEnv() TTLConfig {
	env := environment_variables.EnvironmentVariables
	return TTLConfig{
		Feed:     env.FEED_TTL,
		Trending: env.TRENDING_TTL,
		Score:    env.SCORE_TTL,
	}
}

// normalized clamps the personalized feed TTL into [5m, 10m] and fills the
// other classes with their defaults.
func (c TTLConfig) normalized() TTLConfig {
	c.Feed = min(max(c.Feed, MinFeedTTL), MaxFeedTTL)
	if c.Trending <= 0 {
		c.Trending = DefaultTrendingTTL
	}
	if c.Score <= 0 {
		c.Score = DefaultScoreTTL
	}
	return c
}

// FeedPage is the cached form of a viewer's first page.
type FeedPage struct {
	Posts    []feed.FeedPost `json:"posts"`
	Cursor   *time.Time      `json:"cursor,omitempty"`
	HasMore  bool            `json:"has_more"`
	CachedAt time.Time       `json:"cached_at"`
}

// Policy maps feed reads and mutations onto cache keys. Cache failures stop
// here: every method degrades to a miss or a no-op.
type Policy struct {
	cache cache.CacheService
	ttl   TTLConfig
}

func NewPolicy(c cache.CacheService, ttl TTLConfig) *Policy {
	return &Policy{
		cache: c,
		ttl:   ttl.normalized(),
	}
}

func (p *Policy) TTL() TTLConfig {
	return p.ttl
}

func (p *Policy) GetFeedPage(ctx context.Context, viewerID string, f feed.Filters) (*FeedPage, bool) {
	var page FeedPage
	if !p.cache.Get(ctx, FeedKey(viewerID, f), &page) {
		return nil, false
	}
	return &page, true
}

func (p *Policy) StoreFeedPage(ctx context.Context, viewerID string, f feed.Filters, page FeedPage) bool {
	return p.cache.Set(ctx, FeedKey(viewerID, f), page, p.ttl.Feed)
}

// GetOrLoadFeedPage returns the cached first page or stores what load
// produces. Only load errors are returned.
func (p *Policy) GetOrLoadFeedPage(ctx context.Context, viewerID string, f feed.Filters, load func(ctx context.Context) (*FeedPage, error)) (*FeedPage, error) {
	var page FeedPage
	err := p.cache.GetOrSet(ctx, FeedKey(viewerID, f), &page, func(ctx context.Context) (any, error) {
		return load(ctx)
	}, p.ttl.Feed)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// CachedScore returns the viewer's cached score for a post, computing and
// storing it on a miss.
func (p *Policy) CachedScore(ctx context.Context, postID, viewerID string, compute func() float64) float64 {
	var score float64
	err := p.cache.GetOrSet(ctx, ScoreKey(postID, viewerID), &score, func(context.Context) (any, error) {
		return compute(), nil
	}, p.ttl.Score)
	if err != nil {
		return compute()
	}
	return score
}

func (p *Policy) GetTrending(ctx context.Context) ([]feed.FeedPost, bool) {
	var posts []feed.FeedPost
	if !p.cache.Get(ctx, TrendingKey, &posts) {
		return nil, false
	}
	return posts, true
}

func (p *Policy) StoreTrending(ctx context.Context, posts []feed.FeedPost) bool {
	return p.cache.Set(ctx, TrendingKey, posts, p.ttl.Trending)
}

func (p *Policy) GetOrLoadTrending(ctx context.Context, load func(ctx context.Context) ([]feed.FeedPost, error)) ([]feed.FeedPost, error) {
	var posts []feed.FeedPost
	err := p.cache.GetOrSet(ctx, TrendingKey, &posts, func(ctx context.Context) (any, error) {
		return load(ctx)
	}, p.ttl.Trending)
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// InvalidatePost drops everything derived from a post after a mutation: the
// trending set, every viewer's cached score for it and the acting viewer's
// own feeds. Other viewers' feeds expire on their TTL.
func (p *Policy) InvalidatePost(ctx context.Context, postID, actingViewerID string) int {
	removed := 0
	if p.cache.Delete(ctx, TrendingKey) {
		removed++
	}
	removed += p.cache.DeletePattern(ctx, PostScorePattern(postID))
	if actingViewerID != "" {
		removed += p.cache.DeletePattern(ctx, ViewerFeedPattern(actingViewerID))
	}
	p.log().WithFields(logrus.Fields{
		"post_id": postID,
		"viewer":  actingViewerID,
		"removed": removed,
	}).Debug("invalidated post")
	return removed
}

func (p *Policy) InvalidateViewerFeed(ctx context.Context, viewerID string) int {
	return p.cache.DeletePattern(ctx, ViewerFeedPattern(viewerID))
}

// InvalidateTags deletes every key with one of tags as a whole segment.
func (p *Policy) InvalidateTags(ctx context.Context, tags []string) int {
	removed := 0
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		removed += p.cache.DeletePattern(ctx, TagPattern(tag))
	}
	p.log().WithFields(logrus.Fields{
		"tags":    tags,
		"removed": removed,
	}).Info("invalidated tags")
	return removed
}

// PurgeAll drops every feed and score key.
func (p *Policy) PurgeAll(ctx context.Context) int {
	return p.cache.DeletePattern(ctx, purgeAllFeedPattern) + p.cache.DeletePattern(ctx, purgeAllScorePattern)
}

func (p *Policy) log() *logrus.Entry {
	return logger.GetLogger().WithField("component", "feedcache")
}
