package feedsource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/utils/httpclients"
	"resty.dev/v3"
)

type postsResponse struct {
	Posts []feed.FeedPost `json:"posts"`
}

type createPostRequest struct {
	AuthorID  string   `json:"author_id"`
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPSource reads and writes the feed through an upstream posts service.
//
//	GET    /posts?viewer_id&limit&cursor&tags&author&from&to
//	GET    /posts/recent?since&limit
//	PUT    /posts/{id}/likes/{user}   DELETE /posts/{id}/likes/{user}
//	PUT    /posts/{id}/shares/{user}  DELETE /posts/{id}/shares/{user}
//	POST   /posts
type HTTPSource struct {
	client *resty.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	client := httpclients.NewClient("FeedUpstream")
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	return &HTTPSource{client: client}
}

func (s *HTTPSource) FetchPage(ctx context.Context, req feed.PageRequest) ([]feed.FeedPost, error) {
	var out postsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(pageQuery(req)).
		SetResult(&out).
		SetError(&errorResponse{}).
		Get("/posts")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (s *HTTPSource) FetchSince(ctx context.Context, since time.Time, limit int) ([]feed.FeedPost, error) {
	var out postsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339Nano)).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		SetError(&errorResponse{}).
		Get("/posts/recent")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (s *HTTPSource) Like(ctx context.Context, postID, userID string) error {
	return s.edge(ctx, http.MethodPut, "likes", postID, userID)
}

func (s *HTTPSource) Unlike(ctx context.Context, postID, userID string) error {
	return s.edge(ctx, http.MethodDelete, "likes", postID, userID)
}

func (s *HTTPSource) Share(ctx context.Context, postID, userID string) error {
	return s.edge(ctx, http.MethodPut, "shares", postID, userID)
}

func (s *HTTPSource) Unshare(ctx context.Context, postID, userID string) error {
	return s.edge(ctx, http.MethodDelete, "shares", postID, userID)
}

func (s *HTTPSource) CreatePost(ctx context.Context, userID string, draft feed.PostDraft) (*feed.FeedPost, error) {
	var out feed.FeedPost
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(createPostRequest{
			AuthorID:  userID,
			Content:   draft.Content,
			MediaURLs: draft.MediaURLs,
			Tags:      draft.Tags,
		}).
		SetResult(&out).
		SetError(&errorResponse{}).
		Post("/posts")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *HTTPSource) Close() error {
	return s.client.Close()
}

func (s *HTTPSource) edge(ctx context.Context, method, kind, postID, userID string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("post_id", postID).
		SetPathParam("user_id", userID).
		SetError(&errorResponse{}).
		Execute(method, "/posts/{post_id}/"+kind+"/{user_id}")
	return checkResponse(resp, err)
}

func pageQuery(req feed.PageRequest) url.Values {
	q := url.Values{}
	q.Set("viewer_id", req.ViewerID)
	q.Set("limit", strconv.Itoa(req.PageSize))
	if req.Cursor != nil {
		q.Set("cursor", req.Cursor.UTC().Format(time.RFC3339Nano))
	}
	f := req.Filters.Canonical()
	if len(f.Tags) > 0 {
		q.Set("tags", strings.Join(f.Tags, ","))
	}
	if f.AuthorID != "" {
		q.Set("author", f.AuthorID)
	}
	if f.DateFrom != nil {
		q.Set("from", f.DateFrom.Format(time.RFC3339Nano))
	}
	if f.DateTo != nil {
		q.Set("to", f.DateTo.Format(time.RFC3339Nano))
	}
	return q
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("feed upstream: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	msg := resp.Status()
	if e, ok := resp.Error().(*errorResponse); ok && e.Error != "" {
		msg = e.Error
	}
	if resp.StatusCode() == http.StatusNotFound {
		return common.ErrNotFound.WithMessage(msg)
	}
	return fmt.Errorf("feed upstream returned %d: %s", resp.StatusCode(), msg)
}
