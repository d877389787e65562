package feed

import (
	"cmp"
	"slices"
	"time"
)

// ScoreWeights holds the tuning constants of the relevance score.
type ScoreWeights struct {
	RecencyBase         float64 `json:"recency_base"`
	RecencyDecayPerHour float64 `json:"recency_decay_per_hour"`
	Like                float64 `json:"like"`
	Comment             float64 `json:"comment"`
	MediaBonus          float64 `json:"media_bonus"`
	PremiumBonus        float64 `json:"premium_bonus"`
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		RecencyBase:         100,
		RecencyDecayPerHour: 2,
		Like:                2,
		Comment:             3,
		MediaBonus:          20,
		PremiumBonus:        50,
	}
}

// Recency decays linearly from RecencyBase and is clamped to [0, RecencyBase].
// Posts dated in the future count as brand new.
func (w ScoreWeights) Recency(createdAt, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return clamp(w.RecencyBase-hours*w.RecencyDecayPerHour, 0, w.RecencyBase)
}

func (w ScoreWeights) Engagement(p FeedPost) float64 {
	return float64(max(p.LikeCount, 0))*w.Like + float64(max(p.CommentCount, 0))*w.Comment
}

// Score is the unweighted sum of recency, engagement and the flat bonuses.
// Scores only order posts within one page.
func (w ScoreWeights) Score(p FeedPost, now time.Time) float64 {
	score := w.Recency(p.CreatedAt, now) + w.Engagement(p)
	if p.HasMedia {
		score += w.MediaBonus
	}
	if p.IsPremiumAuthor {
		score += w.PremiumBonus
	}
	return score
}

// RankPage returns a copy of posts with RelevanceScore set by score, ordered
// by score descending. Ties go to the newer post, then the smaller id.
func RankPage(posts []FeedPost, score func(FeedPost) float64) []FeedPost {
	ranked := make([]FeedPost, len(posts))
	for i, p := range posts {
		p.RelevanceScore = score(p)
		ranked[i] = p
	}
	slices.SortStableFunc(ranked, func(a, b FeedPost) int {
		if c := cmp.Compare(b.RelevanceScore, a.RelevanceScore); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return ranked
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}
