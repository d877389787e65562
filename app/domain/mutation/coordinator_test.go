package mutation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedcache"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
	"menlo.ai/jan-feed-gateway/app/utils/idgen"
)

var (
	t0         = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	errRefused = errors.New("write refused")
)

type writeHook func(ctx context.Context, op, postID string) error

type fakeSink struct {
	mu      sync.Mutex
	ops     []string
	hooks   []writeHook
	err     error
	created *feed.FeedPost
	create  func(ctx context.Context, draft feed.PostDraft) (*feed.FeedPost, error)
}

func (f *fakeSink) call(ctx context.Context, op, postID string) error {
	f.mu.Lock()
	f.ops = append(f.ops, op+":"+postID)
	var hook writeHook
	if len(f.hooks) > 0 {
		hook = f.hooks[0]
		f.hooks = f.hooks[1:]
	}
	err := f.err
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, op, postID)
	}
	return err
}

func (f *fakeSink) Like(ctx context.Context, postID, userID string) error {
	return f.call(ctx, "like", postID)
}

func (f *fakeSink) Unlike(ctx context.Context, postID, userID string) error {
	return f.call(ctx, "unlike", postID)
}

func (f *fakeSink) Share(ctx context.Context, postID, userID string) error {
	return f.call(ctx, "share", postID)
}

func (f *fakeSink) Unshare(ctx context.Context, postID, userID string) error {
	return f.call(ctx, "unshare", postID)
}

func (f *fakeSink) CreatePost(ctx context.Context, userID string, draft feed.PostDraft) (*feed.FeedPost, error) {
	f.mu.Lock()
	f.ops = append(f.ops, "create")
	create := f.create
	f.mu.Unlock()
	if create != nil {
		return create(ctx, draft)
	}
	return f.created, f.err
}

func (f *fakeSink) opCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

type fixture struct {
	ws     *feed.WorkingSet
	sink   *fakeSink
	cache  *cache.TieredCacheService
	policy *feedcache.Policy
	coord  *Coordinator
}

func newFixture(t *testing.T, posts ...feed.FeedPost) *fixture {
	t.Helper()
	c, err := cache.NewTieredCacheService(cache.NoOpBackend{}, cache.Options{LocalMaxEntries: 128})
	require.NoError(t, err)
	f := &fixture{
		ws:     feed.NewWorkingSet(),
		sink:   &fakeSink{},
		cache:  c,
		policy: feedcache.NewPolicy(c, feedcache.TTLConfig{}),
	}
	f.ws.Replace(posts)
	f.coord = NewCoordinator("u1", f.ws, f.sink, f.policy, feed.Config{
		PostMaxLength: 20,
		Weights:       feed.DefaultScoreWeights(),
	}, WithClock(func() time.Time { return t0 }))
	return f
}

func (f *fixture) post(t *testing.T, id string) feed.FeedPost {
	t.Helper()
	p, ok := f.ws.Get(id)
	require.True(t, ok)
	return p
}

func (f *fixture) seedCache(ctx context.Context) {
	f.policy.StoreTrending(ctx, nil)
	f.policy.StoreFeedPage(ctx, "u1", feed.Filters{}, feedcache.FeedPage{})
	f.policy.StoreFeedPage(ctx, "u2", feed.Filters{}, feedcache.FeedPage{})
}

func TestToggleLike_FailedWriteRestoresSnapshot(t *testing.T) {
	f := newFixture(t, feed.FeedPost{ID: "p1", LikeCount: 5})
	f.sink.err = errRefused
	ctx := context.Background()
	f.seedCache(ctx)

	got, err := f.coord.ToggleLike(ctx, "p1")

	assert.ErrorIs(t, err, common.ErrMutationRejected)
	assert.ErrorIs(t, err, errRefused)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.LikeCount)
	assert.False(t, got.IsLiked)
	assert.Equal(t, PostState{LikeCount: 5}, stateOf(f.post(t, "p1")))
	assert.True(t, f.cache.Exists(ctx, feedcache.TrendingKey), "cache untouched on failure")
	assert.True(t, f.cache.Exists(ctx, feedcache.FeedKey("u1", feed.Filters{})))
	assert.Empty(t, f.coord.Pending())
}

func TestToggleLike_SuccessKeepsChangeAndInvalidates(t *testing.T) {
	f := newFixture(t, feed.FeedPost{ID: "p1", LikeCount: 5})
	ctx := context.Background()
	f.seedCache(ctx)
	f.cache.Set(ctx, feedcache.ScoreKey("p1", "u2"), 1.0, time.Minute)

	got, err := f.coord.ToggleLike(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 6, got.LikeCount)
	assert.True(t, got.IsLiked)

	assert.False(t, f.cache.Exists(ctx, feedcache.TrendingKey))
	assert.False(t, f.cache.Exists(ctx, feedcache.ScoreKey("p1", "u2")))
	assert.False(t, f.cache.Exists(ctx, feedcache.FeedKey("u1", feed.Filters{})))
	assert.True(t, f.cache.Exists(ctx, feedcache.FeedKey("u2", feed.Filters{})), "other viewers are left alone")

	got, err = f.coord.ToggleLike(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.LikeCount)
	assert.False(t, got.IsLiked)
	assert.Equal(t, []string{"like:p1", "unlike:p1"}, f.sink.ops)
}

// Two likes issued from the same rendered state, the first failing and the
// second succeeding, in both resolution orders.
func TestSetLiked_StackedFailThenSuccessEndsLikedOnce(t *testing.T) {
	tests := []struct {
		name        string
		failFirstAt string
	}{
		{"first fails before second resolves", "before"},
		{"first fails after second succeeded", "after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, feed.FeedPost{ID: "p1", LikeCount: 5})
			ctx := context.Background()

			firstStarted := make(chan struct{})
			releaseFirst := make(chan struct{})
			secondStarted := make(chan struct{})
			releaseSecond := make(chan struct{})
			f.sink.hooks = []writeHook{
				func(context.Context, string, string) error {
					close(firstStarted)
					<-releaseFirst
					return errRefused
				},
				func(context.Context, string, string) error {
					close(secondStarted)
					<-releaseSecond
					return nil
				},
			}

			firstErr := make(chan error, 1)
			go func() {
				_, err := f.coord.SetLiked(ctx, "p1", true)
				firstErr <- err
			}()
			<-firstStarted
			assert.Equal(t, PostState{LikeCount: 6, IsLiked: true}, stateOf(f.post(t, "p1")))

			secondErr := make(chan error, 1)
			go func() {
				_, err := f.coord.SetLiked(ctx, "p1", true)
				secondErr <- err
			}()
			<-secondStarted
			assert.Equal(t, PostState{LikeCount: 6, IsLiked: true}, stateOf(f.post(t, "p1")))
			assert.Len(t, f.coord.Pending(), 2)

			if tt.failFirstAt == "before" {
				close(releaseFirst)
				assert.ErrorIs(t, <-firstErr, common.ErrMutationRejected)
				assert.Equal(t, PostState{LikeCount: 6, IsLiked: true}, stateOf(f.post(t, "p1")))
				close(releaseSecond)
				assert.NoError(t, <-secondErr)
			} else {
				close(releaseSecond)
				assert.NoError(t, <-secondErr)
				close(releaseFirst)
				assert.ErrorIs(t, <-firstErr, common.ErrMutationRejected)
			}

			assert.Equal(t, PostState{LikeCount: 6, IsLiked: true}, stateOf(f.post(t, "p1")))
			assert.Empty(t, f.coord.Pending())
		})
	}
}

func TestStackedMutations_LaterFailureRestoresItsOwnSnapshot(t *testing.T) {
	f := newFixture(t, feed.FeedPost{ID: "p1", LikeCount: 5})
	ctx := context.Background()

	_, err := f.coord.ToggleLike(ctx, "p1")
	require.NoError(t, err)

	f.sink.err = errRefused
	_, err = f.coord.ToggleLike(ctx, "p1")
	assert.ErrorIs(t, err, common.ErrMutationRejected)

	assert.Equal(t, PostState{LikeCount: 6, IsLiked: true}, stateOf(f.post(t, "p1")))
}

func TestMutation_ReloadedListIsNotRolledBack(t *testing.T) {
	f := newFixture(t, feed.FeedPost{ID: "p1", LikeCount: 5})
	ctx := context.Background()

	f.sink.hooks = []writeHook{func(context.Context, string, string) error {
		f.ws.Replace([]feed.FeedPost{{ID: "p1", LikeCount: 40, IsLiked: true}})
		return errRefused
	}}

	_, err := f.coord.SetLiked(ctx, "p1", true)
	assert.ErrorIs(t, err, common.ErrMutationRejected)
	assert.Equal(t, PostState{LikeCount: 40, IsLiked: true}, stateOf(f.post(t, "p1")))
}

func TestToggleShare(t *testing.T) {
	f := newFixture(t, feed.FeedPost{ID: "p1", ShareCount: 2, IsShared: true})
	ctx := context.Background()

	got, err := f.coord.ToggleShare(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ShareCount)
	assert.False(t, got.IsShared)

	f.sink.err = errRefused
	got, err = f.coord.ToggleShare(ctx, "p1")
	assert.ErrorIs(t, err, common.ErrMutationRejected)
	assert.Equal(t, 1, got.ShareCount)
	assert.False(t, got.IsShared)
	assert.Equal(t, []string{"unshare:p1", "share:p1"}, f.sink.ops)
}

func TestMutation_PostOutsideWorkingSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.ToggleLike(ctx, "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Zero(t, f.sink.opCount())

	got, err := f.coord.SetLiked(ctx, "ghost", true)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []string{"like:ghost"}, f.sink.ops)

	f.sink.err = errRefused
	_, err = f.coord.SetShared(ctx, "ghost", true)
	assert.ErrorIs(t, err, common.ErrMutationRejected)
}

func TestCreatePost_ValidationHappensBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t "},
		{"too long", strings.Repeat("x", 21)},
		{"too long in runes", strings.Repeat("é", 21)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, feed.FeedPost{ID: "p1"})

			_, err := f.coord.CreatePost(context.Background(), feed.PostDraft{Content: tt.content})

			assert.ErrorIs(t, err, common.ErrValidationFailed)
			assert.Zero(t, f.sink.opCount())
			assert.Equal(t, 1, f.ws.Len())
		})
	}
}

func TestCreatePost_PlaceholderReplacedOnSuccess(t *testing.T) {
	f := newFixture(t, feed.FeedPost{ID: "p1", CreatedAt: t0.Add(-time.Hour)})
	ctx := context.Background()
	f.seedCache(ctx)

	var seenWhileSaving []feed.FeedPost
	f.sink.create = func(ctx context.Context, draft feed.PostDraft) (*feed.FeedPost, error) {
		seenWhileSaving = f.ws.Posts()
		return &feed.FeedPost{ID: "post_new", AuthorID: "u1", Content: draft.Content, Tags: draft.Tags, CreatedAt: t0}, nil
	}

	got, err := f.coord.CreatePost(ctx, feed.PostDraft{Content: "  hello  ", Tags: []string{"#Go", "go"}})
	require.NoError(t, err)

	require.Len(t, seenWhileSaving, 2)
	assert.True(t, seenWhileSaving[0].Pending)
	assert.True(t, idgen.IsTempPostID(seenWhileSaving[0].ID))
	assert.Equal(t, "hello", seenWhileSaving[0].Content)

	assert.Equal(t, "post_new", got.ID)
	assert.False(t, got.Pending)
	assert.Equal(t, []string{"go"}, got.Tags)
	assert.Equal(t, 100.0, got.RelevanceScore)

	posts := f.ws.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "post_new", posts[0].ID)
	assert.False(t, f.cache.Exists(ctx, feedcache.FeedKey("u1", feed.Filters{})))
	assert.Empty(t, f.coord.Pending())
}

func TestCreatePost_PlaceholderRemovedOnFailure(t *testing.T) {
	f := newFixture(t, feed.FeedPost{ID: "p1"})
	f.sink.err = errRefused
	ctx := context.Background()
	f.seedCache(ctx)

	got, err := f.coord.CreatePost(ctx, feed.PostDraft{Content: "hello"})

	assert.ErrorIs(t, err, common.ErrMutationRejected)
	require.NotNil(t, got)
	assert.True(t, got.Pending)
	assert.Equal(t, []feed.FeedPost{{ID: "p1"}}, f.ws.Posts())
	assert.True(t, f.cache.Exists(ctx, feedcache.FeedKey("u1", feed.Filters{})))
	assert.Empty(t, f.coord.Pending())
}

func TestKindApplyIsIdempotent(t *testing.T) {
	s := PostState{LikeCount: 5, ShareCount: 1}
	for _, k := range []Kind{KindLike, KindUnlike, KindShare, KindUnshare} {
		once := k.apply(s)
		assert.Equal(t, once, k.apply(once), k)
	}
	assert.Equal(t, PostState{}, KindUnlike.apply(PostState{}))
	assert.Equal(t, PostState{}, KindUnlike.apply(PostState{IsLiked: true}))
}
