package feed

import (
	"time"

	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

type Config struct {
	PageSize      int
	MaxPageSize   int
	Debounce      time.Duration
	IdleTTL       time.Duration
	PostMaxLength int
	Weights       ScoreWeights
}

func ConfigFromEnv() Config {
	env := environment_variables.EnvironmentVariables
	return Config{
		PageSize:      env.FEED_PAGE_SIZE,
		MaxPageSize:   env.FEED_MAX_PAGE_SIZE,
		Debounce:      env.FETCH_DEBOUNCE,
		IdleTTL:       env.SESSION_IDLE_TTL,
		PostMaxLength: env.POST_MAX_LENGTH,
		Weights: ScoreWeights{
			RecencyBase:         env.SCORE_RECENCY_BASE,
			RecencyDecayPerHour: env.SCORE_RECENCY_DECAY,
			Like:                env.SCORE_LIKE_WEIGHT,
			Comment:             env.SCORE_COMMENT_WEIGHT,
			MediaBonus:          env.SCORE_MEDIA_BONUS,
			PremiumBonus:        env.SCORE_PREMIUM_BONUS,
		},
	}
}

// ClampPageSize applies the default to non-positive sizes and caps the rest.
func (c Config) ClampPageSize(size int) int {
	if size <= 0 {
		size = c.PageSize
	}
	if size <= 0 {
		size = 20
	}
	if c.MaxPageSize > 0 && size > c.MaxPageSize {
		size = c.MaxPageSize
	}
	return size
}
