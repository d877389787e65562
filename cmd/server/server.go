package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mileusna/crontab"
	"menlo.ai/jan-feed-gateway/app/domain/cron"
	"menlo.ai/jan-feed-gateway/app/domain/feedsession"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
	"menlo.ai/jan-feed-gateway/app/infrastructure/realtime"
	"menlo.ai/jan-feed-gateway/app/interfaces/http"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

type Application struct {
	HttpServer   *http.HttpServer
	CronService  *cron.CronService
	Bus          realtime.Bus
	Registry     *feedsession.Registry
	CacheService cache.CacheService
}

func (application *Application) Start(ctx context.Context) {
	log := logger.GetLogger()

	ctab := crontab.New()
	application.CronService.Start(ctx, ctab)

	go func() {
		if err := application.Bus.Run(ctx); err != nil {
			log.WithError(err).WithField("bus", application.Bus.Name()).Error("realtime bus stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		ctab.Shutdown()
		if err := application.HttpServer.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("http server shutdown")
		}
	}()

	if err := application.HttpServer.Run(); err != nil {
		panic(err)
	}
	application.Registry.CloseAll()
	if err := application.CacheService.Close(); err != nil {
		log.WithError(err).Warn("cache close")
	}
}

func init() {
	environment_variables.EnvironmentVariables.LoadFromEnv()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, cleanup, err := CreateApplication()
	if err != nil {
		panic(err)
	}
	defer cleanup()
	application.Start(ctx)
}
