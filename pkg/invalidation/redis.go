package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/platinummonkey/warrant/pkg/observability"
)

// NewRedisClient connects to the Redis server at url
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisBus fans invalidations out over a Redis pub/sub channel.
// Each bus has a random origin so it can skip its own messages, which it
// has already applied on Publish.
type RedisBus struct {
	client   *redis.Client
	channel  string
	origin   string
	applier  Applier
	recorder EventRecorder
	logger   *observability.Logger

	subscribed chan struct{}
	once       sync.Once
}

// RedisBusOption configures a RedisBus
type RedisBusOption func(*RedisBus)

// WithRecorder counts published and received events
func WithRecorder(recorder EventRecorder) RedisBusOption {
	return func(b *RedisBus) {
		if recorder != nil {
			b.recorder = recorder
		}
	}
}

// WithChannel overrides DefaultChannel
func WithChannel(channel string) RedisBusOption {
	return func(b *RedisBus) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// NewRedisBus creates a bus on client. The client is owned by the caller.
func NewRedisBus(client *redis.Client, applier Applier, logger *observability.Logger, opts ...RedisBusOption) *RedisBus {
	b := &RedisBus{
		client:     client,
		channel:    DefaultChannel,
		origin:     uuid.NewString(),
		applier:    applier,
		recorder:   noopRecorder{},
		logger:     logger,
		subscribed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithField("channel", b.channel).WithField("origin", b.origin)
	return b
}

// Origin identifies this bus in published events
func (b *RedisBus) Origin() string {
	return b.origin
}

// Subscribed is closed once Run holds an active subscription
func (b *RedisBus) Subscribed() <-chan struct{} {
	return b.subscribed
}

// Publish applies event locally, then publishes it. The local apply happens
// even when Redis is unreachable; the returned error reports the publish.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if err := apply(b.applier, event); err != nil {
		b.recorder.RecordInvalidationEvent("publish", err)
		return err
	}

	event.Origin = b.origin
	data, err := json.Marshal(event)
	if err != nil {
		b.recorder.RecordInvalidationEvent("publish", err)
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}

	err = b.client.Publish(ctx, b.channel, data).Err()
	b.recorder.RecordInvalidationEvent("publish", err)
	if err != nil {
		return fmt.Errorf("failed to publish invalidation event: %w", err)
	}
	return nil
}

// Run subscribes to the channel and applies remote events until ctx is done
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so no event is missed after Subscribed fires
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.once.Do(func() { close(b.subscribed) })
	b.logger.Info("Subscribed to invalidation channel")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handle(msg.Payload)
		}
	}
}

func (b *RedisBus) handle(payload string) {
	defer observability.RecoverPanic(b.logger, "invalidation subscriber")

	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		b.recorder.RecordInvalidationEvent("receive", err)
		b.logger.WithError(err).Warn("Skipping malformed invalidation event")
		return
	}
	if event.Origin == b.origin {
		return
	}

	err := apply(b.applier, event)
	b.recorder.RecordInvalidationEvent("receive", err)
	if err != nil {
		b.logger.WithError(err).WithField("event", event.String()).Warn("Failed to apply invalidation event")
		return
	}
	b.logger.WithField("event", event.String()).Debug("Applied invalidation event")
}
