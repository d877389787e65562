package feed

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	domainfeed "menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedsession"
	"menlo.ai/jan-feed-gateway/app/domain/pagination"
	"menlo.ai/jan-feed-gateway/app/domain/trending"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/middleware"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/responses"
)

const SessionQuery = "session_id"

type FeedRoute struct {
	registry *feedsession.Registry
	trending *trending.Service
}

func NewFeedRoute(registry *feedsession.Registry, trendingService *trending.Service) *FeedRoute {
	return &FeedRoute{
		registry: registry,
		trending: trendingService,
	}
}

func (feedRoute *FeedRoute) RegisterRouter(router gin.IRouter) {
	feedRouter := router.Group("/feed", middleware.AuthMiddleware())
	feedRouter.GET("", feedRoute.GetFeed)
	feedRouter.DELETE("", feedRoute.CloseFeed)
	feedRouter.POST("/more", feedRoute.LoadMore)
	feedRouter.POST("/refresh", feedRoute.Refresh)
	feedRouter.POST("/new-posts/show", feedRoute.ShowNewPosts)
	feedRouter.GET("/trending", feedRoute.GetTrending)
}

// GetFeed godoc
// @Summary     Load the first page of a feed
// @Description Opens a feed session (or reuses session_id) and loads its first ranked page.
// @Tags        feed
// @Produce     json
// @Param       session_id query string false "feed session"
// @Param       tags       query string false "comma separated tags, any match"
// @Param       author     query string false "author id"
// @Param       from       query string false "RFC3339 lower bound, inclusive"
// @Param       to         query string false "RFC3339 upper bound, exclusive"
// @Param       page_size  query int    false "page size"
// @Success     200 {object} pagination.Snapshot
// @Failure     502 {object} responses.ErrorResponse
// @Router      /v1/feed [get]
func (feedRoute *FeedRoute) GetFeed(reqCtx *gin.Context) {
	viewerID, ok := middleware.ViewerID(reqCtx)
	if !ok {
		return
	}
	filters, err := ParseFilters(reqCtx)
	if err != nil {
		responses.AbortWithError(reqCtx, err)
		return
	}
	pageSize := 0
	if raw := reqCtx.Query("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 0 {
			responses.AbortWithError(reqCtx, common.ErrValidationFailed.WithMessage("page_size must be a positive integer"))
			return
		}
	}

	entry, err := feedRoute.registry.Open(viewerID, reqCtx.Query(SessionQuery))
	if err != nil {
		responses.AbortWithError(reqCtx, err)
		return
	}
	snapshot, err := entry.Session.LoadInitial(reqCtx.Request.Context(), filters, pageSize)
	feedRoute.respond(reqCtx, snapshot, err)
}

// LoadMore godoc
// @Summary     Load the next page
// @Tags        feed
// @Produce     json
// @Param       session_id query string true "feed session"
// @Success     200 {object} pagination.Snapshot
// @Router      /v1/feed/more [post]
func (feedRoute *FeedRoute) LoadMore(reqCtx *gin.Context) {
	entry, ok := feedRoute.session(reqCtx)
	if !ok {
		return
	}
	snapshot, err := entry.Session.LoadMore(reqCtx.Request.Context())
	feedRoute.respond(reqCtx, snapshot, err)
}

// Refresh godoc
// @Summary     Reload the feed, bypassing the cache
// @Tags        feed
// @Produce     json
// @Param       session_id query string true "feed session"
// @Success     200 {object} pagination.Snapshot
// @Router      /v1/feed/refresh [post]
func (feedRoute *FeedRoute) Refresh(reqCtx *gin.Context) {
	entry, ok := feedRoute.session(reqCtx)
	if !ok {
		return
	}
	snapshot, err := entry.Session.Refresh(reqCtx.Request.Context())
	feedRoute.respond(reqCtx, snapshot, err)
}

// ShowNewPosts godoc
// @Summary     Merge buffered new posts into the list
// @Tags        feed
// @Produce     json
// @Param       session_id query string true "feed session"
// @Success     200 {object} pagination.Snapshot
// @Router      /v1/feed/new-posts/show [post]
func (feedRoute *FeedRoute) ShowNewPosts(reqCtx *gin.Context) {
	entry, ok := feedRoute.session(reqCtx)
	if !ok {
		return
	}
	reqCtx.JSON(http.StatusOK, entry.Session.ShowNewPosts())
}

// CloseFeed godoc
// @Summary     Close a feed session
// @Tags        feed
// @Param       session_id query string true "feed session"
// @Success     204
// @Router      /v1/feed [delete]
func (feedRoute *FeedRoute) CloseFeed(reqCtx *gin.Context) {
	viewerID, ok := middleware.ViewerID(reqCtx)
	if !ok {
		return
	}
	if !feedRoute.registry.Close(viewerID, reqCtx.Query(SessionQuery)) {
		responses.AbortWithError(reqCtx, common.ErrNotFound.WithMessage("feed session not found"))
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

// GetTrending godoc
// @Summary     Trending posts
// @Tags        feed
// @Produce     json
// @Param       limit query int false "max posts"
// @Success     200 {object} responses.GeneralResponse[[]feed.FeedPost]
// @Router      /v1/feed/trending [get]
func (feedRoute *FeedRoute) GetTrending(reqCtx *gin.Context) {
	limit, _ := strconv.Atoi(reqCtx.Query("limit"))
	posts, err := feedRoute.trending.Get(reqCtx.Request.Context(), limit)
	if err != nil {
		responses.AbortWithError(reqCtx, err)
		return
	}
	if posts == nil {
		posts = []domainfeed.FeedPost{}
	}
	reqCtx.JSON(http.StatusOK, responses.GeneralResponse[[]domainfeed.FeedPost]{
		Status: responses.ResponseCodeOk,
		Result: posts,
	})
}

func (feedRoute *FeedRoute) session(reqCtx *gin.Context) (*feedsession.Entry, bool) {
	viewerID, ok := middleware.ViewerID(reqCtx)
	if !ok {
		return nil, false
	}
	entry, err := feedRoute.registry.Get(viewerID, reqCtx.Query(SessionQuery))
	if err != nil {
		responses.AbortWithError(reqCtx, err)
		return nil, false
	}
	return entry, true
}

func (feedRoute *FeedRoute) respond(reqCtx *gin.Context, snapshot pagination.Snapshot, err error) {
	if err != nil {
		responses.AbortWithError(reqCtx, err)
		return
	}
	if snapshot.Posts == nil {
		snapshot.Posts = []domainfeed.FeedPost{}
	}
	reqCtx.JSON(http.StatusOK, snapshot)
}

// ParseFilters reads tags, author, from and to from the query string.
func ParseFilters(reqCtx *gin.Context) (domainfeed.Filters, error) {
	var f domainfeed.Filters
	for _, raw := range reqCtx.QueryArray("tags") {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	f.AuthorID = reqCtx.Query("author")

	var err error
	if f.DateFrom, err = parseTime(reqCtx.Query("from")); err != nil {
		return f, common.ErrValidationFailed.WithMessage("from must be an RFC3339 timestamp")
	}
	if f.DateTo, err = parseTime(reqCtx.Query("to")); err != nil {
		return f, common.ErrValidationFailed.WithMessage("to must be an RFC3339 timestamp")
	}
	if f.DateFrom != nil && f.DateTo != nil && !f.DateFrom.Before(*f.DateTo) {
		return f, common.ErrValidationFailed.WithMessage("from must be before to")
	}
	return f.Canonical(), nil
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
