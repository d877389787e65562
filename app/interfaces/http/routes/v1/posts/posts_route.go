package posts

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedsession"
	"menlo.ai/jan-feed-gateway/app/infrastructure/realtime"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/middleware"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/responses"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
)

const SessionQuery = "session_id"

type LikeRequest struct {
	Liked *bool `json:"liked"`
}

type ShareRequest struct {
	Shared *bool `json:"shared"`
}

type PostsRoute struct {
	registry *feedsession.Registry
	bus      realtime.Bus
}

func NewPostsRoute(registry *feedsession.Registry, bus realtime.Bus) *PostsRoute {
	return &PostsRoute{
		registry: registry,
		bus:      bus,
	}
}

func (postsRoute *PostsRoute) RegisterRouter(router gin.IRouter) {
	postsRouter := router.Group("/posts", middleware.AuthMiddleware())
	postsRouter.POST("", postsRoute.CreatePost)
	postsRouter.POST("/:post_id/like", postsRoute.Like)
	postsRouter.POST("/:post_id/share", postsRoute.Share)
}

// CreatePost godoc
// @Summary     Publish a post
// @Description Shows a pending post at the head of the session's feed until the store confirms it.
// @Tags        posts
// @Accept      json
// @Produce     json
// @Param       session_id query string         true "feed session"
// @Param       request    body  feed.PostDraft true "post"
// @Success     201 {object} responses.GeneralResponse[feed.FeedPost]
// @Failure     400 {object} responses.ErrorResponse
// @Failure     409 {object} responses.ErrorResponse
// @Router      /v1/posts [post]
func (postsRoute *PostsRoute) CreatePost(reqCtx *gin.Context) {
	entry, ok := postsRoute.session(reqCtx)
	if !ok {
		return
	}
	var draft feed.PostDraft
	if err := reqCtx.ShouldBindJSON(&draft); err != nil {
		responses.AbortWithError(reqCtx, common.ErrValidationFailed.WithMessage("invalid request body"))
		return
	}

	ctx := reqCtx.Request.Context()
	post, err := entry.Mutations.CreatePost(ctx, draft)
	if err != nil {
		postsRoute.reject(reqCtx, post, err)
		return
	}
	if err := postsRoute.bus.Publish(ctx, *post); err != nil {
		logger.GetLogger().WithError(err).WithField("post_id", post.ID).Warn("failed to announce new post")
	}
	reqCtx.JSON(http.StatusCreated, responses.GeneralResponse[*feed.FeedPost]{
		Status: responses.ResponseCodeOk,
		Result: post,
	})
}

// Like godoc
// @Summary     Like or unlike a post
// @Description Without a body the like is toggled; {"liked": bool} sets it.
// @Tags        posts
// @Accept      json
// @Produce     json
// @Param       session_id query string      true  "feed session"
// @Param       post_id    path  string      true  "post"
// @Param       request    body  LikeRequest false "desired state"
// @Success     200 {object} responses.GeneralResponse[feed.FeedPost]
// @Failure     409 {object} responses.ErrorResponse
// @Router      /v1/posts/{post_id}/like [post]
func (postsRoute *PostsRoute) Like(reqCtx *gin.Context) {
	entry, ok := postsRoute.session(reqCtx)
	if !ok {
		return
	}
	var req LikeRequest
	if !bindOptional(reqCtx, &req) {
		return
	}

	ctx := reqCtx.Request.Context()
	postID := reqCtx.Param("post_id")
	var (
		post *feed.FeedPost
		err  error
	)
	if req.Liked != nil {
		post, err = entry.Mutations.SetLiked(ctx, postID, *req.Liked)
	} else {
		post, err = entry.Mutations.ToggleLike(ctx, postID)
	}
	postsRoute.respond(reqCtx, post, err)
}

// Share godoc
// @Summary     Share or unshare a post
// @Description Without a body the share is toggled; {"shared": bool} sets it.
// @Tags        posts
// @Accept      json
// @Produce     json
// @Param       session_id query string       true  "feed session"
// @Param       post_id    path  string       true  "post"
// @Param       request    body  ShareRequest false "desired state"
// @Success     200 {object} responses.GeneralResponse[feed.FeedPost]
// @Failure     409 {object} responses.ErrorResponse
// @Router      /v1/posts/{post_id}/share [post]
func (postsRoute *PostsRoute) Share(reqCtx *gin.Context) {
	entry, ok := postsRoute.session(reqCtx)
	if !ok {
		return
	}
	var req ShareRequest
	if !bindOptional(reqCtx, &req) {
		return
	}

	ctx := reqCtx.Request.Context()
	postID := reqCtx.Param("post_id")
	var (
		post *feed.FeedPost
		err  error
	)
	if req.Shared != nil {
		post, err = entry.Mutations.SetShared(ctx, postID, *req.Shared)
	} else {
		post, err = entry.Mutations.ToggleShare(ctx, postID)
	}
	postsRoute.respond(reqCtx, post, err)
}

func (postsRoute *PostsRoute) session(reqCtx *gin.Context) (*feedsession.Entry, bool) {
	viewerID, ok := middleware.ViewerID(reqCtx)
	if !ok {
		return nil, false
	}
	entry, err := postsRoute.registry.Get(viewerID, reqCtx.Query(SessionQuery))
	if err != nil {
		responses.AbortWithError(reqCtx, err)
		return nil, false
	}
	return entry, true
}

func (postsRoute *PostsRoute) respond(reqCtx *gin.Context, post *feed.FeedPost, err error) {
	if err != nil {
		postsRoute.reject(reqCtx, post, err)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.GeneralResponse[*feed.FeedPost]{
		Status: responses.ResponseCodeOk,
		Result: post,
	})
}

// reject returns the restored post alongside a rejected change.
func (postsRoute *PostsRoute) reject(reqCtx *gin.Context, post *feed.FeedPost, err error) {
	if !errors.Is(err, common.ErrMutationRejected) {
		responses.AbortWithError(reqCtx, err)
		return
	}
	reqCtx.AbortWithStatusJSON(http.StatusConflict, responses.RejectedResponse[*feed.FeedPost]{
		ErrorResponse: responses.NewErrorResponse(err),
		Result:        post,
	})
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(reqCtx *gin.Context, dest any) bool {
	if reqCtx.Request.Body == nil || reqCtx.Request.ContentLength == 0 {
		return true
	}
	if err := reqCtx.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		responses.AbortWithError(reqCtx, common.ErrValidationFailed.WithMessage("invalid request body"))
		return false
	}
	return true
}
