package postrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/infrastructure/database/dbschema"
	"menlo.ai/jan-feed-gateway/app/utils/functional"
	"menlo.ai/jan-feed-gateway/app/utils/idgen"
)

const (
	likeCountColumn  = "like_count"
	shareCountColumn = "share_count"
)

// PostGormRepository is the durable feed store. Reads go through the
// resolver's replica when one is configured; writes and their counters are
// transactional on the primary.
type PostGormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostGormRepository(db *gorm.DB) *PostGormRepository {
	return &PostGormRepository{
		db:  db,
		now: time.Now,
	}
}

func (r *PostGormRepository) FetchPage(ctx context.Context, req feed.PageRequest) ([]feed.FeedPost, error) {
	var rows []dbschema.PostRow
	if err := r.pageQuery(ctx, req).Find(&rows).Error; err != nil {
		return nil, err
	}
	return r.withTags(ctx, rows)
}

func (r *PostGormRepository) FetchSince(ctx context.Context, since time.Time, limit int) ([]feed.FeedPost, error) {
	var rows []dbschema.PostRow
	query := r.viewerQuery(ctx, "").
		Where("p.created_at >= ?", since).
		Order("p.created_at DESC").
		Order("p.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return r.withTags(ctx, rows)
}

func (r *PostGormRepository) Like(ctx context.Context, postID, userID string) error {
	return r.addEdge(ctx, &dbschema.PostLike{PostID: postID, UserID: userID, CreatedAt: r.now()}, postID, likeCountColumn)
}

func (r *PostGormRepository) Unlike(ctx context.Context, postID, userID string) error {
	return r.removeEdge(ctx, &dbschema.PostLike{}, postID, userID, likeCountColumn)
}

func (r *PostGormRepository) Share(ctx context.Context, postID, userID string) error {
	return r.addEdge(ctx, &dbschema.PostShare{PostID: postID, UserID: userID, CreatedAt: r.now()}, postID, shareCountColumn)
}

func (r *PostGormRepository) Unshare(ctx context.Context, postID, userID string) error {
	return r.removeEdge(ctx, &dbschema.PostShare{}, postID, userID, shareCountColumn)
}

func (r *PostGormRepository) CreatePost(ctx context.Context, userID string, draft feed.PostDraft) (*feed.FeedPost, error) {
	id, err := idgen.GeneratePostID()
	if err != nil {
		return nil, err
	}
	model := dbschema.NewSchemaPost(id, userID, draft, r.now().UTC())

	var author dbschema.Author
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if len(draft.Tags) > 0 {
			tags := dbschema.NewSchemaPostTags(id, draft.Tags)
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tags).Error; err != nil {
				return err
			}
		}
		result := tx.Where("id = ?", userID).Limit(1).Find(&author)
		return result.Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	row := dbschema.PostRow{Post: *model, IsPremiumAuthor: author.IsPremium}
	post := row.EtoD(draft.Tags)
	return &post, nil
}

// viewerQuery selects posts with the author flag and, for a non-empty
// viewer, whether the viewer liked or shared each one.
func (r *PostGormRepository) viewerQuery(ctx context.Context, viewerID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("post AS p").
		Select(`p.*, COALESCE(a.is_premium, FALSE) AS is_premium_author,
			EXISTS (SELECT 1 FROM post_like pl WHERE pl.post_id = p.id AND pl.user_id = ?) AS is_liked,
			EXISTS (SELECT 1 FROM post_share ps WHERE ps.post_id = p.id AND ps.user_id = ?) AS is_shared`,
			viewerID, viewerID).
		Joins("LEFT JOIN author a ON a.id = p.author_id")
}

// pageQuery is one chronological window: rows strictly older than the
// cursor, newest first.
func (r *PostGormRepository) pageQuery(ctx context.Context, req feed.PageRequest) *gorm.DB {
	query := r.viewerQuery(ctx, req.ViewerID)
	if req.Cursor != nil {
		query = query.Where("p.created_at < ?", *req.Cursor)
	}
	f := req.Filters.Canonical()
	if f.AuthorID != "" {
		query = query.Where("p.author_id = ?", f.AuthorID)
	}
	if f.DateFrom != nil {
		query = query.Where("p.created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		query = query.Where("p.created_at < ?", *f.DateTo)
	}
	if len(f.Tags) > 0 {
		query = query.Where("EXISTS (SELECT 1 FROM post_tag pt WHERE pt.post_id = p.id AND pt.tag IN ?)", f.Tags)
	}
	query = query.Order("p.created_at DESC").Order("p.id ASC")
	if req.PageSize > 0 {
		query = query.Limit(req.PageSize)
	}
	return query
}

func (r *PostGormRepository) withTags(ctx context.Context, rows []dbschema.PostRow) ([]feed.FeedPost, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := functional.Map(rows, func(row dbschema.PostRow) string {
		return row.ID
	})
	var tags []dbschema.PostTag
	if err := r.db.WithContext(ctx).Where("post_id IN ?", ids).Order("tag").Find(&tags).Error; err != nil {
		return nil, err
	}
	byPost := functional.GroupBy(tags,
		func(t dbschema.PostTag) string { return t.PostID },
		func(t dbschema.PostTag) string { return t.Tag })

	return functional.Map(rows, func(row dbschema.PostRow) feed.FeedPost {
		return row.EtoD(byPost[row.ID])
	}), nil
}

// addEdge inserts a like or share row once; the counter only moves when
// the row is new.
func (r *PostGormRepository) addEdge(ctx context.Context, edge any, postID, counter string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensurePost(tx, postID); err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(edge)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&dbschema.Post{}).
			Where("id = ?", postID).
			UpdateColumn(counter, gorm.Expr(counter+" + 1")).Error
	})
}

func (r *PostGormRepository) removeEdge(ctx context.Context, model any, postID, userID, counter string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensurePost(tx, postID); err != nil {
			return err
		}
		result := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&dbschema.Post{}).
			Where("id = ?", postID).
			UpdateColumn(counter, gorm.Expr("GREATEST("+counter+" - 1, 0)")).Error
	})
}

func (r *PostGormRepository) ensurePost(tx *gorm.DB, postID string) error {
	var post dbschema.Post
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", postID).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.ErrNotFound.WithMessage("post not found")
	}
	return err
}
