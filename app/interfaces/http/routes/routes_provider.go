package routes

import (
	"github.com/google/wire"
	v1 "menlo.ai/jan-feed-gateway/app/interfaces/http/routes/v1"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/routes/v1/admin"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/routes/v1/feed"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/routes/v1/posts"
)

var RouteProvider = wire.NewSet(
	feed.NewFeedRoute,
	posts.NewPostsRoute,
	admin.NewCacheRoute,
	v1.NewV1Route,
)
