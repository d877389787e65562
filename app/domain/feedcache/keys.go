package feedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"menlo.ai/jan-feed-gateway/app/domain/feed"
)

const (
	feedScope   = "feed"
	scoreScope  = "score"
	userEntity  = "user"
	TrendingKey = feedScope + ":trending"

	filterHashLength = 16
)

// FilterHash identifies a filter set inside a cache key: the first 16 hex
// characters of the sha256 of its canonical form.
func FilterHash(f feed.Filters) string {
	c := f.Canonical()
	var b strings.Builder
	b.WriteString("tags=")
	b.WriteString(strings.Join(c.Tags, ","))
	b.WriteString("|author=")
	b.WriteString(c.AuthorID)
	b.WriteString("|from=")
	if c.DateFrom != nil {
		b.WriteString(c.DateFrom.Format(time.RFC3339Nano))
	}
	b.WriteString("|to=")
	if c.DateTo != nil {
		b.WriteString(c.DateTo.Format(time.RFC3339Nano))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:filterHashLength]
}

// FeedKey is feed:user:{viewer}:{filterHash}
func FeedKey(viewerID string, f feed.Filters) string {
	return join(feedScope, userEntity, segment(viewerID), FilterHash(f))
}

// ScoreKey is score:{postID}:{viewerID}
func ScoreKey(postID, viewerID string) string {
	return join(scoreScope, segment(postID), segment(viewerID))
}

func ViewerFeedPattern(viewerID string) string {
	return join(feedScope, userEntity, segment(viewerID), "*")
}

func PostScorePattern(postID string) string {
	return join(scoreScope, segment(postID), "*")
}

func TagPattern(tag string) string {
	return join("*", segment(tag), "*")
}

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

// segment percent-encodes an id for use as one key segment. The result has
// no ':' separator and no glob metacharacter, so keys and patterns built
// from it stay within that id's namespace.
func segment(s string) string {
	return url.QueryEscape(s)
}
