package feedsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/domain/feedcache"
	"menlo.ai/jan-feed-gateway/app/domain/mutation"
	"menlo.ai/jan-feed-gateway/app/domain/pagination"
	"menlo.ai/jan-feed-gateway/app/utils/idgen"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
)

// Entry is one open feed: the paginated list and the coordinator that
// mutates it. Both share the same working set.
type Entry struct {
	Session   *pagination.Session
	Mutations *mutation.Coordinator
}

type sessionKey struct {
	viewerID  string
	sessionID string
}

// Registry holds the open feed sessions of every viewer. A session is only
// reachable by the viewer that opened it.
type Registry struct {
	source feed.FeedSource
	sink   feed.MutationSink
	policy *feedcache.Policy
	cfg    feed.Config
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[sessionKey]*Entry
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(source feed.FeedSource, sink feed.MutationSink, policy *feedcache.Policy, cfg feed.Config, opts ...Option) *Registry {
	r := &Registry{
		source:   source,
		sink:     sink,
		policy:   policy,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[sessionKey]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open returns the viewer's session with sessionID, or a new session with a
// fresh id when sessionID is empty or unknown.
func (r *Registry) Open(viewerID, sessionID string) (*Entry, error) {
	if viewerID == "" {
		return nil, common.ErrUnauthorized
	}
	if sessionID != "" {
		if entry, err := r.Get(viewerID, sessionID); err == nil {
			entry.Session.Touch()
			return entry, nil
		}
	}

	id, err := idgen.GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to create session id: %w", err)
	}
	session := pagination.NewSession(id, viewerID, r.source, r.policy, r.cfg, pagination.WithClock(r.now))
	entry := &Entry{
		Session:   session,
		Mutations: mutation.NewCoordinator(viewerID, session.WorkingSet(), r.sink, r.policy, r.cfg, mutation.WithClock(r.now)),
	}

	r.mu.Lock()
	r.sessions[sessionKey{viewerID, id}] = entry
	r.mu.Unlock()

	r.log().WithFields(logrus.Fields{
		"viewer":     viewerID,
		"session_id": id,
	}).Debug("opened feed session")
	return entry, nil
}

func (r *Registry) Get(viewerID, sessionID string) (*Entry, error) {
	r.mu.RLock()
	entry, ok := r.sessions[sessionKey{viewerID, sessionID}]
	r.mu.RUnlock()
	if !ok {
		return nil, common.ErrNotFound.WithMessage("feed session not found")
	}
	return entry, nil
}

// Close aborts the session's fetch in flight and forgets it.
func (r *Registry) Close(viewerID, sessionID string) bool {
	key := sessionKey{viewerID, sessionID}
	r.mu.Lock()
	entry, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if !ok {
		return false
	}
	entry.Session.Close()
	return true
}

// SweepIdle closes every session not used for longer than the idle TTL.
func (r *Registry) SweepIdle(now time.Time) int {
	ttl := r.cfg.IdleTTL
	if ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-ttl)

	var idle []*Entry
	r.mu.Lock()
	for key, entry := range r.sessions {
		if entry.Session.LastActive().Before(cutoff) {
			idle = append(idle, entry)
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()

	for _, entry := range idle {
		entry.Session.Close()
	}
	if len(idle) > 0 {
		r.log().WithField("closed", len(idle)).Info("closed idle feed sessions")
	}
	return len(idle)
}

// Broadcast offers a newly created post to every open session and returns
// how many buffered it.
func (r *Registry) Broadcast(post feed.FeedPost) int {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.sessions))
	for _, entry := range r.sessions {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	buffered := 0
	for _, entry := range entries {
		if entry.Session.ReceiveRealtime(post) {
			buffered++
		}
	}
	return buffered
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll is called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[sessionKey]*Entry)
	r.mu.Unlock()
	for _, entry := range sessions {
		entry.Session.Close()
	}
}

func (r *Registry) log() *logrus.Entry {
	return logger.GetLogger().WithField("component", "feedsession")
}
