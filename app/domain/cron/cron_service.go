package cron

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
)

type LocalSweeper interface {
	Sweep(now time.Time) int
}

type SessionSweeper interface {
	SweepIdle(now time.Time) int
}

type TrendingWarmer interface {
	Warmup(ctx context.Context)
}

type CronService struct {
	Cache    LocalSweeper
	Sessions SessionSweeper
	Trending TrendingWarmer
	now      func() time.Time
}

func NewService(cacheSweeper LocalSweeper, sessions SessionSweeper, trending TrendingWarmer) *CronService {
	return &CronService{
		Cache:    cacheSweeper,
		Sessions: sessions,
		Trending: trending,
		now:      time.Now,
	}
}

func (cs *CronService) Start(ctx context.Context, ctab *crontab.Crontab) {
	cs.warmTrending(ctx)

	// environment variables are loaded once at startup and only read afterwards
	err := ctab.AddJob("* * * * *", func() {
		cs.RunOnce(ctx)
	})
	if err != nil {
		logger.GetLogger().Errorf("cron service: failed to schedule housekeeping: %v", err)
	}
}

// RunOnce performs one round of housekeeping.
func (cs *CronService) RunOnce(ctx context.Context) {
	if cs == nil {
		return
	}
	now := cs.now()
	if cs.Cache != nil {
		if n := cs.Cache.Sweep(now); n > 0 {
			logger.GetLogger().Debugf("cron service: evicted %d expired local cache entries", n)
		}
	}
	if cs.Sessions != nil {
		cs.Sessions.SweepIdle(now)
	}
	cs.warmTrending(ctx)
}

func (cs *CronService) warmTrending(ctx context.Context) {
	if cs == nil || cs.Trending == nil {
		return
	}
	cs.Trending.Warmup(ctx)
}
