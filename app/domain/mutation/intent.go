package mutation

import (
	"time"

	"menlo.ai/jan-feed-gateway/app/domain/feed"
)

type Kind string

const (
	KindLike       Kind = "like"
	KindUnlike     Kind = "unlike"
	KindShare      Kind = "share"
	KindUnshare    Kind = "unshare"
	KindCreatePost Kind = "create_post"
)

// PostState is the slice of a post that like and share intents touch.
type PostState struct {
	LikeCount  int
	IsLiked    bool
	ShareCount int
	IsShared   bool
}

func stateOf(p feed.FeedPost) PostState {
	return PostState{
		LikeCount:  p.LikeCount,
		IsLiked:    p.IsLiked,
		ShareCount: p.ShareCount,
		IsShared:   p.IsShared,
	}
}

func (s PostState) applyTo(p *feed.FeedPost) {
	p.LikeCount = s.LikeCount
	p.IsLiked = s.IsLiked
	p.ShareCount = s.ShareCount
	p.IsShared = s.IsShared
}

// apply returns the state after the intent of kind k. Intents set a flag
// rather than flip it, so applying one twice changes nothing.
func (k Kind) apply(s PostState) PostState {
	switch k {
	case KindLike:
		if !s.IsLiked {
			s.IsLiked = true
			s.LikeCount++
		}
	case KindUnlike:
		if s.IsLiked {
			s.IsLiked = false
			s.LikeCount = max(s.LikeCount-1, 0)
		}
	case KindShare:
		if !s.IsShared {
			s.IsShared = true
			s.ShareCount++
		}
	case KindUnshare:
		if s.IsShared {
			s.IsShared = false
			s.ShareCount = max(s.ShareCount-1, 0)
		}
	}
	return s
}

// Intent is one optimistic change waiting for the authoritative write.
// Previous is the state the intent was applied on top of.
type Intent struct {
	ID        string
	TargetID  string
	Kind      Kind
	Previous  PostState
	AppliedAt time.Time

	epoch     uint64
	confirmed bool
}
