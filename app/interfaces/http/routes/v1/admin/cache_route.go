package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feedcache"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/middleware"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/responses"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
)

type InvalidateRequest struct {
	Tags []string `json:"tags"`
}

type InvalidateResponse struct {
	Removed int `json:"removed"`
}

type MetricsResponse struct {
	Backend   string           `json:"backend"`
	Available bool             `json:"available"`
	HitRate   float64          `json:"hit_rate"`
	Counters  map[string]int64 `json:"counters"`
}

type CacheRoute struct {
	policy       *feedcache.Policy
	cacheService cache.CacheService
	backend      cache.Backend
}

func NewCacheRoute(policy *feedcache.Policy, cacheService cache.CacheService, backend cache.Backend) *CacheRoute {
	return &CacheRoute{
		policy:       policy,
		cacheService: cacheService,
		backend:      backend,
	}
}

func (cacheRoute *CacheRoute) RegisterRouter(router gin.IRouter) {
	adminRouter := router.Group("/admin/cache", middleware.AuthMiddleware(), middleware.AdminMiddleware())
	adminRouter.POST("/invalidate", cacheRoute.Invalidate)
	adminRouter.GET("/metrics", cacheRoute.GetMetrics)
}

// Invalidate godoc
// @Summary     Invalidate cached feeds
// @Description Drops feed pages carrying any of the given tags. Without tags every feed entry is purged.
// @Tags        admin
// @Accept      json
// @Produce     json
// @Param       request body InvalidateRequest false "tags to invalidate"
// @Success     200 {object} responses.GeneralResponse[InvalidateResponse]
// @Failure     403 {object} responses.ErrorResponse
// @Router      /v1/admin/cache/invalidate [post]
func (cacheRoute *CacheRoute) Invalidate(reqCtx *gin.Context) {
	var req InvalidateRequest
	if reqCtx.Request.ContentLength != 0 {
		if err := reqCtx.ShouldBindJSON(&req); err != nil {
			responses.AbortWithError(reqCtx, common.ErrValidationFailed.WithMessage("invalid request body"))
			return
		}
	}

	ctx := reqCtx.Request.Context()
	var removed int
	if len(req.Tags) == 0 {
		removed = cacheRoute.policy.PurgeAll(ctx)
	} else {
		removed = cacheRoute.policy.InvalidateTags(ctx, req.Tags)
	}
	logger.GetLogger().WithFields(map[string]any{
		"tags":    req.Tags,
		"removed": removed,
	}).Info("feed cache invalidated by admin")

	reqCtx.JSON(http.StatusOK, responses.GeneralResponse[InvalidateResponse]{
		Status: responses.ResponseCodeOk,
		Result: InvalidateResponse{Removed: removed},
	})
}

// GetMetrics godoc
// @Summary     Cache counters
// @Tags        admin
// @Produce     json
// @Success     200 {object} responses.GeneralResponse[MetricsResponse]
// @Failure     403 {object} responses.ErrorResponse
// @Router      /v1/admin/cache/metrics [get]
func (cacheRoute *CacheRoute) GetMetrics(reqCtx *gin.Context) {
	metrics := cacheRoute.cacheService.Metrics()
	reqCtx.JSON(http.StatusOK, responses.GeneralResponse[MetricsResponse]{
		Status: responses.ResponseCodeOk,
		Result: MetricsResponse{
			Backend:   cacheRoute.backend.Name(),
			Available: cacheRoute.cacheService.Available(),
			HitRate:   metrics.HitRate(),
			Counters:  metrics.Snapshot(),
		},
	})
}
