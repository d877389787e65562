package feed

import (
	"slices"
	"sync"
)

// WorkingSet is the in-memory list a viewer is looking at, plus the buffer
// of realtime posts not yet shown. Every reload bumps the epoch so that
// holders of older state can tell their view is gone.
type WorkingSet struct {
	mu      sync.RWMutex
	posts   []FeedPost
	pending []FeedPost
	epoch   uint64
}

func NewWorkingSet() *WorkingSet {
	return &WorkingSet{}
}

// Replace swaps the whole list and drops the pending buffer.
func (ws *WorkingSet) Replace(posts []FeedPost) uint64 {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.posts = dedupe(nil, posts)
	ws.pending = nil
	ws.epoch++
	return ws.epoch
}

// Append adds posts whose id is not present yet, keeping their order, and
// returns the ones actually added.
func (ws *WorkingSet) Append(posts []FeedPost) []FeedPost {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	added := dedupe(ws.posts, posts)
	ws.posts = append(ws.posts, added...)
	return added
}

// Prepend puts a post at the head of the list. It reports false when the id
// is already present.
func (ws *WorkingSet) Prepend(post FeedPost) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.indexLocked(post.ID) >= 0 {
		return false
	}
	ws.posts = slices.Insert(ws.posts, 0, post)
	return true
}

func (ws *WorkingSet) Get(id string) (FeedPost, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if i := ws.indexLocked(id); i >= 0 {
		return ws.posts[i], true
	}
	return FeedPost{}, false
}

// Update runs fn on the post with the given id under the set's lock. It
// returns the epoch the change landed in. fn must not call back into the set.
func (ws *WorkingSet) Update(id string, fn func(*FeedPost)) (uint64, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	i := ws.indexLocked(id)
	if i < 0 {
		return ws.epoch, false
	}
	fn(&ws.posts[i])
	return ws.epoch, true
}

// UpdateInEpoch is Update guarded by the epoch: after a reload it does nothing.
func (ws *WorkingSet) UpdateInEpoch(epoch uint64, id string, fn func(*FeedPost)) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.epoch != epoch {
		return false
	}
	i := ws.indexLocked(id)
	if i < 0 {
		return false
	}
	fn(&ws.posts[i])
	return true
}

// ReplacePost swaps the post with id oldID for post in place. If post's id is
// already elsewhere in the list the placeholder is simply removed.
func (ws *WorkingSet) ReplacePost(oldID string, post FeedPost) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	i := ws.indexLocked(oldID)
	if i < 0 {
		return false
	}
	if j := ws.indexLocked(post.ID); j >= 0 && j != i {
		ws.posts = slices.Delete(ws.posts, i, i+1)
		return true
	}
	ws.posts[i] = post
	return true
}

func (ws *WorkingSet) Remove(id string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	i := ws.indexLocked(id)
	if i < 0 {
		return false
	}
	ws.posts = slices.Delete(ws.posts, i, i+1)
	return true
}

func (ws *WorkingSet) Posts() []FeedPost {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return slices.Clone(ws.posts)
}

func (ws *WorkingSet) Len() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.posts)
}

func (ws *WorkingSet) Epoch() uint64 {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.epoch
}

// Buffer holds a realtime post until ShowPending. Posts already in the list
// or the buffer are ignored.
func (ws *WorkingSet) Buffer(post FeedPost) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.indexLocked(post.ID) >= 0 || slices.ContainsFunc(ws.pending, sameID(post.ID)) {
		return false
	}
	ws.pending = slices.Insert(ws.pending, 0, post)
	return true
}

func (ws *WorkingSet) PendingCount() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.pending)
}

// ShowPending moves the buffered posts to the head of the list, newest
// first, and returns how many were merged.
func (ws *WorkingSet) ShowPending() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	merged := dedupe(ws.posts, ws.pending)
	ws.posts = append(merged, ws.posts...)
	ws.pending = nil
	return len(merged)
}

func (ws *WorkingSet) indexLocked(id string) int {
	return slices.IndexFunc(ws.posts, sameID(id))
}

func sameID(id string) func(FeedPost) bool {
	return func(p FeedPost) bool { return p.ID == id }
}

// dedupe returns the posts of incoming whose id appears neither in existing
// nor earlier in incoming.
func dedupe(existing, incoming []FeedPost) []FeedPost {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, p := range existing {
		seen[p.ID] = struct{}{}
	}
	out := make([]FeedPost, 0, len(incoming))
	for _, p := range incoming {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
