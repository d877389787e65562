package pagination

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedcache"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
)

type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateLoaded      State = "loaded"
	StateErrored     State = "errored"
	StateLoadingMore State = "loading_more"
	StateClosed      State = "closed"
)

var errNothingToLoad = errors.New("no more pages")

// Snapshot is what a client renders.
type Snapshot struct {
	SessionID    string          `json:"session_id"`
	State        State           `json:"state"`
	Posts        []feed.FeedPost `json:"posts"`
	Cursor       string          `json:"cursor,omitempty"`
	HasMore      bool            `json:"has_more"`
	PendingCount int             `json:"pending_count"`
	Filters      feed.Filters    `json:"filters"`
	Err          error           `json:"-"`
}

type window struct {
	posts   []feed.FeedPost
	cursor  *time.Time
	hasMore bool
}

type fetchParams struct {
	viewerID string
	filters  feed.Filters
	pageSize int
	cursor   *time.Time
}

// Session is one viewer's paginated feed. State changes happen under mu;
// source and cache I/O happen outside it, guarded by fetch tokens.
type Session struct {
	id       string
	viewerID string
	source   feed.FeedSource
	policy   *feedcache.Policy
	cfg      feed.Config
	ws       *feed.WorkingSet
	now      func() time.Time

	mu           sync.Mutex
	state        State
	loaded       bool
	filters      feed.Filters
	pageSize     int
	cursor       *time.Time
	hasMore      bool
	lastErr      error
	fetchStarted time.Time
	generation   uint64
	current      *fetchToken
	lastActive   time.Time
}

type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithWorkingSet(ws *feed.WorkingSet) Option {
	return func(s *Session) { s.ws = ws }
}

func NewSession(id, viewerID string, source feed.FeedSource, policy *feedcache.Policy, cfg feed.Config, opts ...Option) *Session {
	s := &Session{
		id:       id,
		viewerID: viewerID,
		source:   source,
		policy:   policy,
		cfg:      cfg,
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ws == nil {
		s.ws = feed.NewWorkingSet()
	}
	s.pageSize = cfg.ClampPageSize(0)
	s.lastActive = s.now()
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) ViewerID() string {
	return s.viewerID
}

// WorkingSet is shared with the mutation coordinator of the same session.
func (s *Session) WorkingSet() *feed.WorkingSet {
	return s.ws
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) Filters() feed.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// LoadInitial replaces the list with the first page for filters. Only pages
// of the default size go through the feed cache.
func (s *Session) LoadInitial(ctx context.Context, filters feed.Filters, pageSize int) (Snapshot, error) {
	var params fetchParams
	tok, err := s.begin(ctx, StateLoading, nil, func() {
		s.filters = filters.Canonical()
		s.pageSize = s.cfg.ClampPageSize(pageSize)
		params = s.paramsLocked(nil)
	})
	if err != nil {
		return s.Snapshot(), err
	}
	return s.loadFirst(tok, params, false)
}

// Refresh drops the viewer's cached feeds and reloads with the current filters.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	var params fetchParams
	tok, err := s.begin(ctx, StateLoading, nil, func() {
		params = s.paramsLocked(nil)
	})
	if err != nil {
		return s.Snapshot(), err
	}
	return s.loadFirst(tok, params, true)
}

// LoadMore fetches the window older than the cursor and appends its unseen
// posts, ranked among themselves. Already shown posts keep their order.
func (s *Session) LoadMore(ctx context.Context) (Snapshot, error) {
	var params fetchParams
	tok, err := s.begin(ctx, StateLoadingMore, func() error {
		if !s.loaded {
			return common.ErrValidationFailed.WithMessage("feed is not loaded yet")
		}
		if !s.hasMore {
			return errNothingToLoad
		}
		return nil
	}, func() {
		params = s.paramsLocked(s.cursor)
	})
	if errors.Is(err, errNothingToLoad) {
		return s.Snapshot(), nil
	}
	if err != nil {
		return s.Snapshot(), err
	}

	w, err := s.fetchWindow(tok.ctx, params)
	return s.complete(tok, err, func() {
		added := s.ws.Append(w.posts)
		s.cursor = w.cursor
		s.hasMore = w.hasMore
		s.log().WithFields(logrus.Fields{
			"fetched": len(w.posts),
			"added":   len(added),
		}).Debug("loaded more posts")
	})
}

// ReceiveRealtime scores a pushed post and buffers it until ShowNewPosts.
// Posts outside the session's filters or already known are ignored.
func (s *Session) ReceiveRealtime(post feed.FeedPost) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || !s.loaded || !s.filters.Matches(post) {
		return false
	}
	post.RelevanceScore = s.cfg.Weights.Score(post, s.now())
	post.IsLiked = false
	post.IsShared = false
	post.Pending = false
	return s.ws.Buffer(post)
}

func (s *Session) ShowNewPosts() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.ws.ShowPending()
		s.lastActive = s.now()
	}
	return s.snapshotLocked()
}

// Close aborts any in-flight fetch. Later calls fail with ErrAborted.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.current.Abort()
	s.current = nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Touch marks the session as in use.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.now()
}

// begin starts a fetch: it enforces the debounce window, aborts the fetch in
// flight and issues a new token. precondition and setup run under the lock.
func (s *Session) begin(ctx context.Context, next State, precondition func() error, setup func()) (*fetchToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, common.ErrAborted.WithMessage("feed session closed")
	}
	if precondition != nil {
		if err := precondition(); err != nil {
			return nil, err
		}
	}
	now := s.now()
	if !s.fetchStarted.IsZero() && now.Sub(s.fetchStarted) < s.cfg.Debounce {
		return nil, common.ErrDebounced
	}

	s.current.Abort()
	s.generation++
	tok := newFetchToken(ctx, s.generation)
	s.current = tok
	s.fetchStarted = now
	s.lastActive = now
	s.state = next
	if setup != nil {
		setup()
	}
	return tok, nil
}

// complete applies a fetch result unless the token was superseded, in which
// case the result is dropped and ErrAborted returned.
func (s *Session) complete(tok *fetchToken, err error, apply func()) (Snapshot, error) {
	defer tok.release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != tok || tok.Aborted() || s.state == StateClosed {
		return s.snapshotLocked(), common.ErrAborted
	}
	s.current = nil

	if err != nil && tok.ctx.Err() != nil && isContextError(err) {
		// the caller went away; the list is left as it was
		if s.loaded {
			s.state = StateLoaded
		} else {
			s.state = StateIdle
		}
		return s.snapshotLocked(), common.ErrAborted.Wrap(err)
	}
	if err != nil {
		s.state = StateErrored
		s.lastErr = asFetchError(err)
		s.log().WithError(err).Warn("feed fetch failed")
		return s.snapshotLocked(), s.lastErr
	}

	apply()
	s.loaded = true
	s.lastErr = nil
	s.state = StateLoaded
	return s.snapshotLocked(), nil
}

func (s *Session) loadFirst(tok *fetchToken, params fetchParams, refresh bool) (Snapshot, error) {
	if refresh {
		s.policy.InvalidateViewerFeed(tok.ctx, params.viewerID)
	}

	load := func(ctx context.Context) (*feedcache.FeedPage, error) {
		w, err := s.fetchWindow(ctx, params)
		if err != nil {
			return nil, err
		}
		return &feedcache.FeedPage{
			Posts:    w.posts,
			Cursor:   w.cursor,
			HasMore:  w.hasMore,
			CachedAt: s.now(),
		}, nil
	}

	var (
		page *feedcache.FeedPage
		err  error
	)
	if params.pageSize == s.cfg.ClampPageSize(0) {
		page, err = s.policy.GetOrLoadFeedPage(tok.ctx, params.viewerID, params.filters, load)
	} else {
		page, err = load(tok.ctx)
	}

	return s.complete(tok, err, func() {
		s.ws.Replace(page.Posts)
		s.cursor = page.Cursor
		s.hasMore = page.HasMore
	})
}

// fetchWindow asks for one row more than the page size to learn whether
// another page exists. The cursor is the creation time of the last row kept,
// taken before ranking.
func (s *Session) fetchWindow(ctx context.Context, params fetchParams) (window, error) {
	rows, err := s.source.FetchPage(ctx, feed.PageRequest{
		ViewerID: params.viewerID,
		PageSize: params.pageSize + 1,
		Cursor:   params.cursor,
		Filters:  params.filters,
	})
	if err != nil {
		return window{}, err
	}

	hasMore := len(rows) > params.pageSize
	if hasMore {
		rows = rows[:params.pageSize]
	}
	next := params.cursor
	if len(rows) > 0 {
		last := rows[len(rows)-1].CreatedAt
		next = &last
	}

	now := s.now()
	ranked := feed.RankPage(rows, func(p feed.FeedPost) float64 {
		return s.policy.CachedScore(ctx, p.ID, params.viewerID, func() float64 {
			return s.cfg.Weights.Score(p, now)
		})
	})
	return window{posts: ranked, cursor: next, hasMore: hasMore}, nil
}

func (s *Session) paramsLocked(cursor *time.Time) fetchParams {
	return fetchParams{
		viewerID: s.viewerID,
		filters:  s.filters,
		pageSize: s.pageSize,
		cursor:   cursor,
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:    s.id,
		State:        s.state,
		Posts:        s.ws.Posts(),
		Cursor:       EncodeCursor(s.cursor),
		HasMore:      s.hasMore,
		PendingCount: s.ws.PendingCount(),
		Filters:      s.filters,
		Err:          s.lastErr,
	}
}

func (s *Session) log() *logrus.Entry {
	return logger.GetLogger().WithFields(logrus.Fields{
		"session_id": s.id,
		"viewer":     s.viewerID,
	})
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func asFetchError(err error) error {
	var ce *common.Error
	if errors.As(err, &ce) {
		return err
	}
	return common.ErrFetchFailed.Wrap(err)
}
