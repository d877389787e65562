package pagination

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedcache"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fetchHook func(ctx context.Context, req feed.PageRequest) ([]feed.FeedPost, error)

type fakeSource struct {
	mu    sync.Mutex
	posts []feed.FeedPost
	calls []feed.PageRequest
	hooks []fetchHook
	err   error
}

func (f *fakeSource) FetchPage(ctx context.Context, req feed.PageRequest) ([]feed.FeedPost, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	var hook fetchHook
	if len(f.hooks) > 0 {
		hook = f.hooks[0]
		f.hooks = f.hooks[1:]
	}
	err := f.err
	posts := f.posts
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	var out []feed.FeedPost
	for _, p := range posts {
		if req.Cursor != nil && !p.CreatedAt.Before(*req.Cursor) {
			continue
		}
		if !req.Filters.Matches(p) {
			continue
		}
		out = append(out, p)
		if len(out) == req.PageSize {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) lastCall() feed.PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// chronological builds posts one hour apart, newest first.
func chronological(ids ...string) []feed.FeedPost {
	out := make([]feed.FeedPost, len(ids))
	for i, id := range ids {
		out[i] = feed.FeedPost{ID: id, AuthorID: "author", CreatedAt: t0.Add(-time.Duration(i) * time.Hour)}
	}
	return out
}

func postIDs(posts []feed.FeedPost) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

type harness struct {
	source *fakeSource
	policy *feedcache.Policy
	clock  *clock
	cfg    feed.Config
}

func newHarness(t *testing.T, posts []feed.FeedPost) *harness {
	t.Helper()
	c, err := cache.NewTieredCacheService(cache.NoOpBackend{}, cache.Options{LocalMaxEntries: 1024})
	require.NoError(t, err)
	return &harness{
		source: &fakeSource{posts: posts},
		policy: feedcache.NewPolicy(c, feedcache.TTLConfig{}),
		clock:  &clock{now: t0},
		cfg: feed.Config{
			PageSize:    3,
			MaxPageSize: 10,
			Debounce:    time.Second,
			Weights:     feed.DefaultScoreWeights(),
		},
	}
}

func (h *harness) session(viewer string) *Session {
	return NewSession("fs_"+viewer, viewer, h.source, h.policy, h.cfg, WithClock(h.clock.Now))
}

func TestSession_HasMoreOnlyWhenExtraRowReturned(t *testing.T) {
	tests := []struct {
		name      string
		available int
		wantPosts int
		wantMore  bool
	}{
		{"empty", 0, 0, false},
		{"fewer than a page", 2, 2, false},
		{"exactly a page", 3, 3, false},
		{"page plus one", 4, 3, true},
		{"many", 10, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}[:tt.available]
			h := newHarness(t, chronological(ids...))
			s := h.session("u1")

			snap, err := s.LoadInitial(context.Background(), feed.Filters{}, 0)
			require.NoError(t, err)

			assert.Len(t, snap.Posts, tt.wantPosts)
			assert.Equal(t, tt.wantMore, snap.HasMore)
			assert.Equal(t, StateLoaded, snap.State)
			assert.Equal(t, 4, h.source.lastCall().PageSize, "asks for one extra row")
		})
	}
}

func TestSession_CursorIsRawChronologicalBoundary(t *testing.T) {
	posts := chronological("p1", "p2", "p3", "p4")
	posts[1].LikeCount = 100
	h := newHarness(t, posts)
	s := h.session("u1")
	ctx := context.Background()

	snap, err := s.LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1", "p3"}, postIDs(snap.Posts))
	assert.Equal(t, EncodeCursor(&posts[2].CreatedAt), snap.Cursor)

	h.clock.Advance(2 * time.Second)
	snap, err = s.LoadMore(ctx)
	require.NoError(t, err)

	require.NotNil(t, h.source.lastCall().Cursor)
	assert.True(t, h.source.lastCall().Cursor.Equal(posts[2].CreatedAt))
	assert.Equal(t, []string{"p2", "p1", "p3", "p4"}, postIDs(snap.Posts))
	assert.False(t, snap.HasMore)
	assert.Equal(t, EncodeCursor(&posts[3].CreatedAt), snap.Cursor)
}

func TestSession_LoadMoreWithOverlappingResultsKeepsEachPostOnce(t *testing.T) {
	all := chronological("a", "b", "c", "d", "e", "f", "g")
	byID := map[string]feed.FeedPost{}
	for _, p := range all {
		byID[p.ID] = p
	}
	pick := func(ids ...string) []feed.FeedPost {
		out := make([]feed.FeedPost, len(ids))
		for i, id := range ids {
			out[i] = byID[id]
		}
		return out
	}
	scripted := func(ids ...string) fetchHook {
		return func(context.Context, feed.PageRequest) ([]feed.FeedPost, error) { return pick(ids...), nil }
	}

	h := newHarness(t, nil)
	h.source.hooks = []fetchHook{
		scripted("a", "b", "c", "d"),
		scripted("c", "d", "e", "f"),
		scripted("d", "e", "g"),
	}
	s := h.session("u1")
	ctx := context.Background()

	first, err := s.LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Second)
	_, err = s.LoadMore(ctx)
	require.NoError(t, err)
	h.clock.Advance(2 * time.Second)
	snap, err := s.LoadMore(ctx)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, p := range snap.Posts {
		seen[p.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
	assert.Len(t, snap.Posts, 6)
	assert.Equal(t, postIDs(first.Posts), postIDs(snap.Posts[:3]), "rendered posts keep their place")
}

func TestSession_DebounceRejectsRapidFetches(t *testing.T) {
	h := newHarness(t, chronological("a", "b", "c", "d", "e"))
	s := h.session("u1")
	ctx := context.Background()

	_, err := s.LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)

	_, err = s.LoadMore(ctx)
	assert.ErrorIs(t, err, common.ErrDebounced)
	h.clock.Advance(999 * time.Millisecond)
	_, err = s.Refresh(ctx)
	assert.ErrorIs(t, err, common.ErrDebounced)
	assert.Equal(t, 1, h.source.callCount())

	h.clock.Advance(time.Millisecond)
	_, err = s.LoadMore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.source.callCount())
}

func TestSession_NewerFetchAbortsOlderOne(t *testing.T) {
	h := newHarness(t, chronological("a", "b"))
	started := make(chan struct{})
	h.source.hooks = []fetchHook{
		func(ctx context.Context, req feed.PageRequest) ([]feed.FeedPost, error) {
			close(started)
			<-ctx.Done()
			return chronological("stale"), ctx.Err()
		},
	}
	s := h.session("u1")

	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := s.LoadInitial(context.Background(), feed.Filters{}, 0)
		done <- result{snap, err}
	}()
	<-started

	h.clock.Advance(2 * time.Second)
	snap, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, postIDs(snap.Posts))

	old := <-done
	assert.ErrorIs(t, old.err, common.ErrAborted)
	assert.Equal(t, StateLoaded, s.Snapshot().State)
	assert.Equal(t, []string{"a", "b"}, postIDs(s.Snapshot().Posts))
}

func TestSession_CallerCancelIsAbortNotFailure(t *testing.T) {
	h := newHarness(t, chronological("a", "b"))
	s := h.session("u1")
	_, err := s.LoadInitial(context.Background(), feed.Filters{}, 0)
	require.NoError(t, err)

	h.source.hooks = []fetchHook{
		func(ctx context.Context, req feed.PageRequest) ([]feed.FeedPost, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.clock.Advance(2 * time.Second)
	go cancel()
	snap, err := s.Refresh(ctx)

	assert.ErrorIs(t, err, common.ErrAborted)
	assert.NotErrorIs(t, err, common.ErrFetchFailed)
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, []string{"a", "b"}, postIDs(snap.Posts))

	fresh := h.session("u2")
	h.source.hooks = []fetchHook{
		func(ctx context.Context, req feed.PageRequest) ([]feed.FeedPost, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	ctx, cancel = context.WithCancel(context.Background())
	go cancel()
	snap, err = fresh.LoadInitial(ctx, feed.Filters{}, 0)
	assert.ErrorIs(t, err, common.ErrAborted)
	assert.Equal(t, StateIdle, snap.State)
}

func TestSession_LateResponseOfAbortedFetchIsDiscarded(t *testing.T) {
	h := newHarness(t, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	h.source.hooks = []fetchHook{
		func(ctx context.Context, req feed.PageRequest) ([]feed.FeedPost, error) {
			close(started)
			<-release
			// ignores cancellation and answers anyway
			return chronological("late"), nil
		},
	}
	s := h.session("u1")

	done := make(chan error, 1)
	go func() {
		_, err := s.LoadInitial(context.Background(), feed.Filters{}, 5)
		done <- err
	}()
	<-started
	s.Close()
	close(release)

	assert.ErrorIs(t, <-done, common.ErrAborted)
	assert.Empty(t, s.Snapshot().Posts)
	assert.Equal(t, StateClosed, s.Snapshot().State)
}

func TestSession_FailedInitialLoadOffersRetry(t *testing.T) {
	h := newHarness(t, chronological("a", "b", "c", "d"))
	h.source.setErr(errors.New("connection refused"))
	s := h.session("u1")
	ctx := context.Background()

	snap, err := s.LoadInitial(ctx, feed.Filters{}, 0)
	assert.ErrorIs(t, err, common.ErrFetchFailed)
	assert.Equal(t, StateErrored, snap.State)
	assert.ErrorIs(t, snap.Err, common.ErrFetchFailed)

	h.source.setErr(nil)
	h.clock.Advance(2 * time.Second)
	snap, err = s.LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, snap.State)
	assert.Nil(t, snap.Err)
}

func TestSession_FailedLoadMoreKeepsList(t *testing.T) {
	h := newHarness(t, chronological("a", "b", "c", "d"))
	s := h.session("u1")
	ctx := context.Background()

	first, err := s.LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)

	h.source.setErr(errors.New("timeout"))
	h.clock.Advance(2 * time.Second)
	snap, err := s.LoadMore(ctx)
	assert.ErrorIs(t, err, common.ErrFetchFailed)
	assert.Equal(t, StateErrored, snap.State)
	assert.Equal(t, postIDs(first.Posts), postIDs(snap.Posts))
	assert.Equal(t, first.Cursor, snap.Cursor)

	h.source.setErr(nil)
	h.clock.Advance(2 * time.Second)
	snap, err = s.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Posts, 4)
}

func TestSession_LoadMorePreconditions(t *testing.T) {
	h := newHarness(t, chronological("a", "b"))
	s := h.session("u1")
	ctx := context.Background()

	_, err := s.LoadMore(ctx)
	assert.ErrorIs(t, err, common.ErrValidationFailed)

	_, err = s.LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Second)
	snap, err := s.LoadMore(ctx)
	require.NoError(t, err)
	assert.False(t, snap.HasMore)
	assert.Equal(t, 1, h.source.callCount(), "nothing left to fetch")
}

func TestSession_FirstPageIsCachedPerViewerAndFilters(t *testing.T) {
	h := newHarness(t, chronological("a", "b", "c", "d"))
	ctx := context.Background()

	_, err := h.session("u1").LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)
	snap, err := h.session("u1").LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.source.callCount())
	assert.True(t, snap.HasMore)
	assert.Len(t, snap.Posts, 3)

	_, err = h.session("u2").LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, h.source.callCount(), "viewers do not share feeds")

	_, err = h.session("u1").LoadInitial(ctx, feed.Filters{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, h.source.callCount(), "non-default page sizes bypass the cache")
}

func TestSession_RefreshBypassesCachedPage(t *testing.T) {
	h := newHarness(t, chronological("a", "b"))
	s := h.session("u1")
	ctx := context.Background()

	_, err := s.LoadInitial(ctx, feed.Filters{}, 0)
	require.NoError(t, err)

	h.source.mu.Lock()
	h.source.posts = chronological("new", "a", "b")
	h.source.mu.Unlock()

	h.clock.Advance(2 * time.Second)
	snap, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.source.callCount())
	assert.Contains(t, postIDs(snap.Posts), "new")
}

func TestSession_RealtimePostsWaitInBuffer(t *testing.T) {
	h := newHarness(t, []feed.FeedPost{{ID: "a", CreatedAt: t0.Add(-time.Hour), Tags: []string{"go"}}})
	s := h.session("u1")
	ctx := context.Background()

	incoming := feed.FeedPost{ID: "live", CreatedAt: t0, Tags: []string{"Go"}, LikeCount: 1}
	assert.False(t, s.ReceiveRealtime(incoming), "ignored before the first load")

	_, err := s.LoadInitial(ctx, feed.Filters{Tags: []string{"go"}}, 0)
	require.NoError(t, err)

	assert.True(t, s.ReceiveRealtime(incoming))
	assert.False(t, s.ReceiveRealtime(incoming), "duplicate")
	assert.False(t, s.ReceiveRealtime(feed.FeedPost{ID: "other", CreatedAt: t0, Tags: []string{"rust"}}))

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.PendingCount)
	assert.Equal(t, []string{"a"}, postIDs(snap.Posts))

	snap = s.ShowNewPosts()
	assert.Equal(t, []string{"live", "a"}, postIDs(snap.Posts))
	assert.Equal(t, 102.0, snap.Posts[0].RelevanceScore)
	assert.Zero(t, snap.PendingCount)
}

func TestSession_ClosedSessionRejectsFetches(t *testing.T) {
	h := newHarness(t, chronological("a"))
	s := h.session("u1")
	s.Close()
	s.Close()

	_, err := s.LoadInitial(context.Background(), feed.Filters{}, 0)
	assert.ErrorIs(t, err, common.ErrAborted)
	assert.Zero(t, h.source.callCount())
}
