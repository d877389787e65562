package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/routes/v1/admin"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/routes/v1/feed"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/routes/v1/posts"
	"menlo.ai/jan-feed-gateway/config"
)

type V1Route struct {
	feedRoute  *feed.FeedRoute
	postsRoute *posts.PostsRoute
	cacheRoute *admin.CacheRoute
}

func NewV1Route(
	feedRoute *feed.FeedRoute,
	postsRoute *posts.PostsRoute,
	cacheRoute *admin.CacheRoute,
) *V1Route {
	return &V1Route{
		feedRoute,
		postsRoute,
		cacheRoute,
	}
}

func (v1Route *V1Route) RegisterRouter(router gin.IRouter) {
	v1Router := router.Group("/v1")
	v1Router.GET("/version", GetVersion)
	v1Route.feedRoute.RegisterRouter(v1Router)
	v1Route.postsRoute.RegisterRouter(v1Router)
	v1Route.cacheRoute.RegisterRouter(v1Router)
}

// GetVersion godoc
// @Summary     Get API build version
// @Description Returns the current build version of the API server.
// @Tags        system
// @Produce     json
// @Success     200 {object} map[string]string "version info"
// @Router      /v1/version [get]
func GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": config.Version,
	})
}
