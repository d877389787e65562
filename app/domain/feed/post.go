package feed

import (
	"slices"
	"strings"
	"time"
)

// FeedPost is the read-model projection of a post as one viewer sees it.
type FeedPost struct {
	ID              string    `json:"id"`
	AuthorID        string    `json:"author_id"`
	Content         string    `json:"content"`
	MediaURLs       []string  `json:"media_urls,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LikeCount       int       `json:"like_count"`
	CommentCount    int       `json:"comment_count"`
	ShareCount      int       `json:"share_count"`
	HasMedia        bool      `json:"has_media"`
	IsPremiumAuthor bool      `json:"is_premium_author"`
	RelevanceScore  float64   `json:"relevance_score"`
	IsLiked         bool      `json:"is_liked"`
	IsShared        bool      `json:"is_shared"`
	Pending         bool      `json:"pending,omitempty"`
}

// PostDraft is the input for creating a post.
type PostDraft struct {
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Filters narrows a feed. Tags match when the post carries any of them.
type Filters struct {
	Tags     []string   `json:"tags,omitempty"`
	AuthorID string     `json:"author_id,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
}

// Canonical returns an equivalent filter set with lower-cased, sorted,
// de-duplicated tags and UTC dates, so equal filters hash equally.
func (f Filters) Canonical() Filters {
	out := Filters{AuthorID: strings.TrimSpace(f.AuthorID)}
	for _, t := range f.Tags {
		if t = NormalizeTag(t); t != "" {
			out.Tags = append(out.Tags, t)
		}
	}
	slices.Sort(out.Tags)
	out.Tags = slices.Compact(out.Tags)
	if f.DateFrom != nil {
		from := f.DateFrom.UTC()
		out.DateFrom = &from
	}
	if f.DateTo != nil {
		to := f.DateTo.UTC()
		out.DateTo = &to
	}
	return out
}

func (f Filters) IsEmpty() bool {
	return len(f.Tags) == 0 && f.AuthorID == "" && f.DateFrom == nil && f.DateTo == nil
}

// Matches reports whether a post would have been returned for these filters.
// DateFrom is inclusive and DateTo exclusive.
func (f Filters) Matches(p FeedPost) bool {
	if f.AuthorID != "" && p.AuthorID != f.AuthorID {
		return false
	}
	if f.DateFrom != nil && p.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && !p.CreatedAt.Before(*f.DateTo) {
		return false
	}
	if len(f.Tags) == 0 {
		return true
	}
	for _, want := range f.Tags {
		for _, have := range p.Tags {
			if NormalizeTag(have) == NormalizeTag(want) {
				return true
			}
		}
	}
	return false
}

func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}

// PageRequest asks a FeedSource for one raw chronological window.
type PageRequest struct {
	ViewerID string
	// PageSize is the number of rows wanted; sources return at most this many
	PageSize int
	// Cursor bounds the window to posts created strictly before it
	Cursor  *time.Time
	Filters Filters
}
