package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/middleware"
	v1 "menlo.ai/jan-feed-gateway/app/interfaces/http/routes/v1"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

const shutdownTimeout = 10 * time.Second

type HttpServer struct {
	engine       *gin.Engine
	v1Route      *v1.V1Route
	cacheService cache.CacheService
	server       *http.Server
}

func NewHttpServer(v1Route *v1.V1Route, cacheService cache.CacheService) *HttpServer {
	gin.SetMode(gin.ReleaseMode)
	server := HttpServer{
		engine:       gin.New(),
		v1Route:      v1Route,
		cacheService: cacheService,
	}
	server.engine.Use(middleware.LoggerMiddleware(logger.GetLogger()))
	server.engine.Use(middleware.CORS())
	server.engine.Use(gin.Recovery())
	server.engine.GET("/health-check", server.healthCheck)
	server.v1Route.RegisterRouter(server.engine.Group("/"))
	return &server
}

// healthCheck stays 200 while the cache is down: the local tier keeps
// serving, so the instance is degraded rather than unhealthy.
func (httpServer *HttpServer) healthCheck(c *gin.Context) {
	status := "ok"
	if !httpServer.cacheService.Available() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"cache":  httpServer.cacheService.Available(),
	})
}

func (httpServer *HttpServer) Handler() http.Handler {
	return httpServer.engine
}

func (httpServer *HttpServer) Run() error {
	port := environment_variables.EnvironmentVariables.HTTP_PORT
	if port == 0 {
		port = 8080
	}
	httpServer.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           httpServer.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.GetLogger().Infof("listening on :%d", port)
	if err := httpServer.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (httpServer *HttpServer) Shutdown(ctx context.Context) error {
	if httpServer.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return httpServer.server.Shutdown(ctx)
}
