package httpclients

import (
	"time"

	"menlo.ai/jan-feed-gateway/app/utils/logger"
	"menlo.ai/jan-feed-gateway/config"
	"resty.dev/v3"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetryCount = 2
	defaultRetryWait  = 200 * time.Millisecond
)

// NewClient returns a resty client tagged with the caller's name in its
// user agent.
func NewClient(name string) *resty.Client {
	logger.GetLogger().Debugf("creating http client %s", name)
	return resty.New().
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWait).
		SetHeader("User-Agent", "jan-feed-gateway/"+config.Version+" ("+name+")").
		SetHeader("Accept", "application/json")
}
