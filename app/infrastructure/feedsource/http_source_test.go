package feedsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type upstream struct {
	mu      sync.Mutex
	queries []map[string]string
	edges   []string
	created []createPostRequest
}

func (u *upstream) record(c *gin.Context) {
	q := map[string]string{}
	for k := range c.Request.URL.Query() {
		q[k] = c.Query(k)
	}
	u.mu.Lock()
	u.queries = append(u.queries, q)
	u.mu.Unlock()
}

func newUpstream(t *testing.T) (*upstream, *HTTPSource) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	u := &upstream{}
	r := gin.New()
	r.GET("/posts", func(c *gin.Context) {
		u.record(c)
		c.JSON(http.StatusOK, postsResponse{Posts: []feed.FeedPost{{ID: "p1", CreatedAt: t0, Tags: []string{"go"}}}})
	})
	r.GET("/posts/recent", func(c *gin.Context) {
		u.record(c)
		c.JSON(http.StatusOK, postsResponse{Posts: []feed.FeedPost{{ID: "p2"}, {ID: "p3"}}})
	})
	edge := func(c *gin.Context) {
		if c.Param("post_id") == "missing" {
			c.JSON(http.StatusNotFound, errorResponse{Error: "no such post"})
			return
		}
		u.mu.Lock()
		u.edges = append(u.edges, c.Request.Method+" "+c.Request.URL.Path)
		u.mu.Unlock()
		c.Status(http.StatusNoContent)
	}
	r.PUT("/posts/:post_id/likes/:user_id", edge)
	r.DELETE("/posts/:post_id/likes/:user_id", edge)
	r.PUT("/posts/:post_id/shares/:user_id", edge)
	r.DELETE("/posts/:post_id/shares/:user_id", edge)
	r.POST("/posts", func(c *gin.Context) {
		var req createPostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		u.mu.Lock()
		u.created = append(u.created, req)
		u.mu.Unlock()
		c.JSON(http.StatusCreated, feed.FeedPost{ID: "post_new", AuthorID: req.AuthorID, Content: req.Content, Tags: req.Tags, CreatedAt: t0})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	source := NewHTTPSource(srv.URL + "/")
	t.Cleanup(func() { _ = source.Close() })
	return u, source
}

func TestHTTPSource_FetchPageSendsWindowAndFilters(t *testing.T) {
	u, source := newUpstream(t)
	cursor := t0.Add(-time.Hour)
	from := t0.Add(-48 * time.Hour)

	posts, err := source.FetchPage(context.Background(), feed.PageRequest{
		ViewerID: "u1",
		PageSize: 21,
		Cursor:   &cursor,
		Filters:  feed.Filters{Tags: []string{"Rust", "#go"}, AuthorID: "a1", DateFrom: &from},
	})
	require.NoError(t, err)

	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)
	assert.True(t, posts[0].CreatedAt.Equal(t0))
	require.Len(t, u.queries, 1)
	assert.Equal(t, map[string]string{
		"viewer_id": "u1",
		"limit":     "21",
		"cursor":    cursor.Format(time.RFC3339Nano),
		"tags":      "go,rust",
		"author":    "a1",
		"from":      from.Format(time.RFC3339Nano),
	}, u.queries[0])
}

func TestHTTPSource_FetchSince(t *testing.T) {
	u, source := newUpstream(t)

	posts, err := source.FetchSince(context.Background(), t0, 50)
	require.NoError(t, err)

	assert.Len(t, posts, 2)
	assert.Equal(t, "50", u.queries[0]["limit"])
	assert.Equal(t, t0.Format(time.RFC3339Nano), u.queries[0]["since"])
}

func TestHTTPSource_Edges(t *testing.T) {
	u, source := newUpstream(t)
	ctx := context.Background()

	require.NoError(t, source.Like(ctx, "p1", "u1"))
	require.NoError(t, source.Unlike(ctx, "p1", "u1"))
	require.NoError(t, source.Share(ctx, "p1", "u1"))
	require.NoError(t, source.Unshare(ctx, "p1", "u1"))

	assert.Equal(t, []string{
		"PUT /posts/p1/likes/u1",
		"DELETE /posts/p1/likes/u1",
		"PUT /posts/p1/shares/u1",
		"DELETE /posts/p1/shares/u1",
	}, u.edges)

	err := source.Like(ctx, "missing", "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Contains(t, err.Error(), "no such post")
}

func TestHTTPSource_CreatePost(t *testing.T) {
	u, source := newUpstream(t)

	post, err := source.CreatePost(context.Background(), "u1", feed.PostDraft{Content: "hello", Tags: []string{"go"}})
	require.NoError(t, err)

	assert.Equal(t, "post_new", post.ID)
	assert.Equal(t, "u1", post.AuthorID)
	assert.Equal(t, []createPostRequest{{AuthorID: "u1", Content: "hello", Tags: []string{"go"}}}, u.created)
}

func TestHTTPSource_TransportErrorIsReturned(t *testing.T) {
	source := NewHTTPSource("http://127.0.0.1:1")
	source.client.SetRetryCount(0).SetTimeout(time.Second)

	_, err := source.FetchPage(context.Background(), feed.PageRequest{ViewerID: "u1", PageSize: 5})
	assert.Error(t, err)
}
