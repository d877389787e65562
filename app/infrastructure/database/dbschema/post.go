package dbschema

import (
	"time"

	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/infrastructure/database"
	"menlo.ai/jan-feed-gateway/app/utils/functional"
)

func init() {
	database.RegisterSchemaForAutoMigrate(Author{}, Post{}, PostTag{}, PostLike{}, PostShare{})
}

type Author struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255"`
	IsPremium bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

type Post struct {
	ID           string    `gorm:"primaryKey;size:64"`
	AuthorID     string    `gorm:"size:64;not null;index"`
	Content      string    `gorm:"type:text;not null"`
	MediaURLs    []string  `gorm:"serializer:json"`
	LikeCount    int       `gorm:"not null;default:0"`
	CommentCount int       `gorm:"not null;default:0"`
	ShareCount   int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time
}

type PostTag struct {
	PostID string `gorm:"primaryKey;size:64"`
	Tag    string `gorm:"primaryKey;size:64"`
}

type PostLike struct {
	PostID    string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64;index"`
	CreatedAt time.Time
}

type PostShare struct {
	PostID    string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64;index"`
	CreatedAt time.Time
}

// PostRow is a post as one viewer sees it: the stored row plus the author
// flag and the viewer's own like and share.
type PostRow struct {
	Post
	IsPremiumAuthor bool
	IsLiked         bool
	IsShared        bool
}

func NewSchemaPost(id, authorID string, draft feed.PostDraft, createdAt time.Time) *Post {
	return &Post{
		ID:        id,
		AuthorID:  authorID,
		Content:   draft.Content,
		MediaURLs: draft.MediaURLs,
		CreatedAt: createdAt,
	}
}

func NewSchemaPostTags(postID string, tags []string) []PostTag {
	return functional.Map(functional.Distinct(tags), func(tag string) PostTag {
		return PostTag{PostID: postID, Tag: tag}
	})
}

func (r *PostRow) EtoD(tags []string) feed.FeedPost {
	return feed.FeedPost{
		ID:              r.ID,
		AuthorID:        r.AuthorID,
		Content:         r.Content,
		MediaURLs:       r.MediaURLs,
		Tags:            tags,
		CreatedAt:       r.CreatedAt,
		LikeCount:       r.LikeCount,
		CommentCount:    r.CommentCount,
		ShareCount:      r.ShareCount,
		HasMedia:        len(r.MediaURLs) > 0,
		IsPremiumAuthor: r.IsPremiumAuthor,
		IsLiked:         r.IsLiked,
		IsShared:        r.IsShared,
	}
}
