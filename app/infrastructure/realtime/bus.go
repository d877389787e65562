package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/valkey-io/valkey-go"
	"menlo.ai/jan-feed-gateway/app/domain/feed"
	"menlo.ai/jan-feed-gateway/app/infrastructure/cache"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

// Broadcaster hands a new post to the open feed sessions of this instance.
type Broadcaster interface {
	Broadcast(post feed.FeedPost) int
}

// Bus announces new posts to every gateway instance and delivers the posts
// announced by any instance to the local Broadcaster.
type Bus interface {
	Name() string
	Publish(ctx context.Context, post feed.FeedPost) error
	// Run delivers incoming posts until ctx is cancelled
	Run(ctx context.Context) error
}

// NewBus rides on the cache backend's connection when it has one and stays
// in process otherwise.
func NewBus(backend cache.Backend, target Broadcaster) Bus {
	channel := environment_variables.EnvironmentVariables.REALTIME_CHANNEL
	switch b := backend.(type) {
	case *cache.RedisBackend:
		return &RedisBus{client: b.Client(), channel: channel, target: target, newBackOff: defaultBackOff}
	case *cache.ValkeyBackend:
		return &ValkeyBus{client: b.Client(), channel: channel, target: target, newBackOff: defaultBackOff}
	default:
		return &LocalBus{target: target}
	}
}

type LocalBus struct {
	target Broadcaster
}

func (b *LocalBus) Name() string {
	return "local"
}

func (b *LocalBus) Publish(ctx context.Context, post feed.FeedPost) error {
	b.target.Broadcast(post)
	return nil
}

func (b *LocalBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

type RedisBus struct {
	client     *redis.Client
	channel    string
	target     Broadcaster
	newBackOff func() *backoff.ExponentialBackOff
}

func (b *RedisBus) Name() string {
	return cache.CacheTypeRedis
}

// Publish announces post to every instance. When the announcement fails the
// post is still handed to this instance's sessions.
func (b *RedisBus) Publish(ctx context.Context, post feed.FeedPost) error {
	data, err := json.Marshal(post)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.target.Broadcast(post)
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBus) Run(ctx context.Context) error {
	return resubscribe(ctx, b.Name(), b.newBackOff, b.subscribe)
}

func (b *RedisBus) subscribe(ctx context.Context, ready func()) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	ready()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			deliver(b.target, []byte(msg.Payload))
		}
	}
}

type ValkeyBus struct {
	client     valkey.Client
	channel    string
	target     Broadcaster
	newBackOff func() *backoff.ExponentialBackOff
}

func (b *ValkeyBus) Name() string {
	return cache.CacheTypeValkey
}

func (b *ValkeyBus) Publish(ctx context.Context, post feed.FeedPost) error {
	data, err := json.Marshal(post)
	if err != nil {
		return err
	}
	if err := b.client.Do(ctx, b.client.B().Publish().Channel(b.channel).Message(string(data)).Build()).Error(); err != nil {
		b.target.Broadcast(post)
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

func (b *ValkeyBus) Run(ctx context.Context) error {
	return resubscribe(ctx, b.Name(), b.newBackOff, b.subscribe)
}

func (b *ValkeyBus) subscribe(ctx context.Context, ready func()) error {
	cmd := b.client.B().Subscribe().Channel(b.channel).Build()
	err := b.client.Receive(ctx, cmd, func(msg valkey.PubSubMessage) {
		deliver(b.target, []byte(msg.Message))
	})
	if err == nil {
		return errSubscriptionClosed
	}
	return err
}

var errSubscriptionClosed = errors.New("subscription closed")

const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
)

func defaultBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval
	if interval := environment_variables.EnvironmentVariables.CACHE_RETRY_INTERVAL; interval > 0 {
		bo.MaxInterval = interval
	}
	return bo
}

// resubscribe runs subscribe until ctx is cancelled. A dropped or refused
// subscription is retried with exponential backoff; ready resets the
// backoff once a subscription is confirmed.
func resubscribe(ctx context.Context, name string, newBackOff func() *backoff.ExponentialBackOff, subscribe func(ctx context.Context, ready func()) error) error {
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	bo := newBackOff()
	for {
		err := subscribe(ctx, bo.Reset)
		if ctx.Err() != nil {
			return nil
		}
		wait := bo.NextBackOff()
		logger.GetLogger().WithError(err).WithFields(map[string]any{
			"bus":   name,
			"retry": wait.String(),
		}).Warn("realtime: subscription lost, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// deliver decodes one announced post. Malformed payloads are logged and
// dropped.
func deliver(target Broadcaster, payload []byte) int {
	var post feed.FeedPost
	if err := json.Unmarshal(payload, &post); err != nil {
		logger.GetLogger().WithError(err).Warn("realtime: dropping malformed post")
		return 0
	}
	if post.ID == "" || post.CreatedAt.IsZero() {
		logger.GetLogger().WithField("post_id", post.ID).Warn("realtime: dropping post without id or creation time")
		return 0
	}
	return target.Broadcast(post)
}
