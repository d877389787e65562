package feed

import (
	"context"
	"time"
)

// FeedSource serves raw rows ordered by creation time, newest first.
type FeedSource interface {
	FetchPage(ctx context.Context, req PageRequest) ([]FeedPost, error)
}

// RecentSource serves every post created since a point in time, used to
// build the trending set.
type RecentSource interface {
	FetchSince(ctx context.Context, since time.Time, limit int) ([]FeedPost, error)
}

// MutationSink is the authoritative write side. Each call is idempotent for
// the same intent: liking an already liked post succeeds without a second
// like.
type MutationSink interface {
	Like(ctx context.Context, postID, userID string) error
	Unlike(ctx context.Context, postID, userID string) error
	Share(ctx context.Context, postID, userID string) error
	Unshare(ctx context.Context, postID, userID string) error
	CreatePost(ctx context.Context, userID string, draft PostDraft) (*FeedPost, error)
}

// Store is a backend that serves every feed read and write.
type Store interface {
	FeedSource
	RecentSource
	MutationSink
}
