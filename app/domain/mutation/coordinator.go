package mutation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedcache"
	"menlo.ai/jan-feed-gateway/app/utils/idgen"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
)

const defaultPostMaxLength = 5000

// Coordinator applies a viewer's likes, shares and new posts to their
// working set before the authoritative write lands, then keeps or reverts
// them.
//
// Intents on the same post stack: each remembers the state it was applied
// on. When one fails, the post goes back to that state and every later
// intent on the post is applied again on top, so a failure never erases a
// newer change.
type Coordinator struct {
	viewerID string
	ws       *feed.WorkingSet
	sink     feed.MutationSink
	policy   *feedcache.Policy
	cfg      feed.Config
	now      func() time.Time

	mu      sync.Mutex
	ledgers map[string][]*Intent
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(viewerID string, ws *feed.WorkingSet, sink feed.MutationSink, policy *feedcache.Policy, cfg feed.Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		viewerID: viewerID,
		ws:       ws,
		sink:     sink,
		policy:   policy,
		cfg:      cfg,
		now:      time.Now,
		ledgers:  make(map[string][]*Intent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToggleLike flips the like as the viewer currently sees it.
func (c *Coordinator) ToggleLike(ctx context.Context, postID string) (*feed.FeedPost, error) {
	current, ok := c.ws.Get(postID)
	if !ok {
		return nil, common.ErrNotFound.WithMessage("post is not in this feed")
	}
	return c.SetLiked(ctx, postID, !current.IsLiked)
}

// SetLiked moves the post to the liked state the client asked for. Posts
// outside the working set are written without an optimistic step and nil
// is returned for them.
func (c *Coordinator) SetLiked(ctx context.Context, postID string, liked bool) (*feed.FeedPost, error) {
	if liked {
		return c.mutate(ctx, postID, KindLike)
	}
	return c.mutate(ctx, postID, KindUnlike)
}

func (c *Coordinator) ToggleShare(ctx context.Context, postID string) (*feed.FeedPost, error) {
	current, ok := c.ws.Get(postID)
	if !ok {
		return nil, common.ErrNotFound.WithMessage("post is not in this feed")
	}
	return c.SetShared(ctx, postID, !current.IsShared)
}

func (c *Coordinator) SetShared(ctx context.Context, postID string, shared bool) (*feed.FeedPost, error) {
	if shared {
		return c.mutate(ctx, postID, KindShare)
	}
	return c.mutate(ctx, postID, KindUnshare)
}

// CreatePost shows a pending placeholder at the head of the list while the
// post is saved, then swaps in the stored post or removes the placeholder.
func (c *Coordinator) CreatePost(ctx context.Context, draft feed.PostDraft) (*feed.FeedPost, error) {
	draft, err := c.validateDraft(draft)
	if err != nil {
		return nil, err
	}
	tmpID, err := idgen.GenerateTempPostID()
	if err != nil {
		return nil, fmt.Errorf("failed to create placeholder id: %w", err)
	}

	now := c.now()
	placeholder := feed.FeedPost{
		ID:        tmpID,
		AuthorID:  c.viewerID,
		Content:   draft.Content,
		MediaURLs: draft.MediaURLs,
		Tags:      draft.Tags,
		HasMedia:  len(draft.MediaURLs) > 0,
		CreatedAt: now,
		Pending:   true,
	}
	placeholder.RelevanceScore = c.cfg.Weights.Score(placeholder, now)

	intent := &Intent{
		ID:        uuid.NewString(),
		TargetID:  tmpID,
		Kind:      KindCreatePost,
		AppliedAt: now,
	}
	c.mu.Lock()
	c.ws.Prepend(placeholder)
	intent.epoch = c.ws.Epoch()
	c.ledgers[tmpID] = append(c.ledgers[tmpID], intent)
	c.mu.Unlock()

	created, err := c.sink.CreatePost(ctx, c.viewerID, draft)
	if err == nil && created == nil {
		err = fmt.Errorf("store returned no post")
	}

	c.mu.Lock()
	c.dropIntentLocked(intent)
	if err != nil {
		c.ws.Remove(tmpID)
		c.mu.Unlock()
		c.log(intent).WithError(err).Warn("create post rejected")
		return &placeholder, common.ErrMutationRejected.WithMessage("your post could not be published").Wrap(err)
	}
	post := *created
	post.Pending = false
	post.RelevanceScore = c.cfg.Weights.Score(post, c.now())
	c.ws.ReplacePost(tmpID, post)
	c.mu.Unlock()

	c.policy.InvalidatePost(ctx, post.ID, c.viewerID)
	return &post, nil
}

// Pending lists intents still waiting for their write, oldest first.
func (c *Coordinator) Pending() []Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Intent
	for _, ledger := range c.ledgers {
		for _, in := range ledger {
			if !in.confirmed {
				out = append(out, *in)
			}
		}
	}
	slices.SortFunc(out, func(a, b Intent) int { return a.AppliedAt.Compare(b.AppliedAt) })
	return out
}

func (c *Coordinator) mutate(ctx context.Context, postID string, kind Kind) (*feed.FeedPost, error) {
	intent := c.applyOptimistic(postID, kind)

	err := c.write(ctx, kind, postID)

	if intent == nil {
		if err != nil {
			return nil, common.ErrMutationRejected.Wrap(err)
		}
		c.policy.InvalidatePost(ctx, postID, c.viewerID)
		return nil, nil
	}

	c.resolve(intent, err)
	post, ok := c.ws.Get(postID)
	var result *feed.FeedPost
	if ok {
		result = &post
	}

	if err != nil {
		c.log(intent).WithError(err).Warn("mutation rejected, reverted")
		return result, common.ErrMutationRejected.Wrap(err)
	}
	c.policy.InvalidatePost(ctx, postID, c.viewerID)
	return result, nil
}

// applyOptimistic records an intent and applies it to the working set.
// It returns nil when the post is not in view.
func (c *Coordinator) applyOptimistic(postID string, kind Kind) *Intent {
	c.mu.Lock()
	defer c.mu.Unlock()

	intent := &Intent{
		ID:        uuid.NewString(),
		TargetID:  postID,
		Kind:      kind,
		AppliedAt: c.now(),
	}
	epoch, ok := c.ws.Update(postID, func(p *feed.FeedPost) {
		intent.Previous = stateOf(*p)
		kind.apply(intent.Previous).applyTo(p)
	})
	if !ok {
		return nil
	}
	intent.epoch = epoch
	c.ledgers[postID] = append(c.ledgers[postID], intent)
	return intent
}

func (c *Coordinator) resolve(intent *Intent, writeErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if writeErr == nil {
		intent.confirmed = true
		c.trimLocked(intent.TargetID)
		return
	}

	ledger := c.ledgers[intent.TargetID]
	idx := slices.Index(ledger, intent)
	if idx >= 0 {
		later := ledger[idx+1:]
		c.ws.UpdateInEpoch(intent.epoch, intent.TargetID, func(p *feed.FeedPost) {
			state := intent.Previous
			for _, next := range later {
				if next.epoch != intent.epoch {
					continue
				}
				next.Previous = state
				state = next.Kind.apply(state)
			}
			state.applyTo(p)
		})
	}
	c.dropIntentLocked(intent)
}

func (c *Coordinator) dropIntentLocked(intent *Intent) {
	ledger := c.ledgers[intent.TargetID]
	if idx := slices.Index(ledger, intent); idx >= 0 {
		c.ledgers[intent.TargetID] = slices.Delete(ledger, idx, idx+1)
	}
	c.trimLocked(intent.TargetID)
}

// trimLocked forgets confirmed intents that no earlier pending intent can
// still need.
func (c *Coordinator) trimLocked(targetID string) {
	ledger := c.ledgers[targetID]
	for len(ledger) > 0 && ledger[0].confirmed {
		ledger = ledger[1:]
	}
	if len(ledger) == 0 {
		delete(c.ledgers, targetID)
		return
	}
	c.ledgers[targetID] = ledger
}

func (c *Coordinator) write(ctx context.Context, kind Kind, postID string) error {
	switch kind {
	case KindLike:
		return c.sink.Like(ctx, postID, c.viewerID)
	case KindUnlike:
		return c.sink.Unlike(ctx, postID, c.viewerID)
	case KindShare:
		return c.sink.Share(ctx, postID, c.viewerID)
	case KindUnshare:
		return c.sink.Unshare(ctx, postID, c.viewerID)
	default:
		return fmt.Errorf("unsupported mutation %q", kind)
	}
}

func (c *Coordinator) validateDraft(draft feed.PostDraft) (feed.PostDraft, error) {
	draft.Content = strings.TrimSpace(draft.Content)
	if draft.Content == "" {
		return draft, common.ErrValidationFailed.WithMessage("post content must not be empty")
	}
	limit := c.cfg.PostMaxLength
	if limit <= 0 {
		limit = defaultPostMaxLength
	}
	if utf8.RuneCountInString(draft.Content) > limit {
		return draft, common.ErrValidationFailed.WithMessage(fmt.Sprintf("post content must be at most %d characters", limit))
	}

	var tags []string
	for _, t := range draft.Tags {
		if t = feed.NormalizeTag(t); t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	draft.Tags = tags
	return draft, nil
}

func (c *Coordinator) log(intent *Intent) *logrus.Entry {
	return logger.GetLogger().WithFields(logrus.Fields{
		"viewer":    c.viewerID,
		"intent_id": intent.ID,
		"target_id": intent.TargetID,
		"kind":      intent.Kind,
	})
}
