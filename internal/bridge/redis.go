// Package bridge fans collaboration events out across server instances.
//
// A multi-instance deployment puts users of the same trip on different
// servers; the local room fanout only reaches sessions on this instance.
// The bridge publishes every room broadcast on a per-trip Redis channel and
// re-emits messages published by other instances into the local rooms.
// Delivery is fire-and-forget: no ordering and no delivery guarantee.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// channelPrefix namespaces the per-trip pub/sub channels.
const channelPrefix = "collab:trip:"

// Handler receives events published by other instances.
// The payload is the marshalled event payload, opaque to the bridge.
type Handler func(tripID uuid.UUID, event string, payload json.RawMessage)

// envelope is the wire format on the Redis channel. Origin identifies the
// publishing instance so it can skip its own messages on the way back in
// (the local room fanout has already delivered them).
type envelope struct {
	Origin  string          `json:"origin"`
	TripID  uuid.UUID       `json:"trip_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Redis is the Redis pub/sub implementation of the bridge.
type Redis struct {
	client     *redis.Client
	instanceID string
	log        *slog.Logger
}

// New creates a bridge on the given client with a fresh instance identity.
func New(client *redis.Client, log *slog.Logger) *Redis {
	return &Redis{
		client:     client,
		instanceID: uuid.NewString(),
		log:        log,
	}
}

// Publish broadcasts an event to every instance subscribed to the trip's
// channel, including this one (the subscriber filters it out by origin).
func (b *Redis) Publish(ctx context.Context, tripID uuid.UUID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bridge.Publish: marshal payload: %w", err)
	}

	env, err := json.Marshal(envelope{
		Origin:  b.instanceID,
		TripID:  tripID,
		Event:   event,
		Payload: data,
	})
	if err != nil {
		return fmt.Errorf("bridge.Publish: marshal envelope: %w", err)
	}

	if err := b.client.Publish(ctx, channelPrefix+tripID.String(), env).Err(); err != nil {
		return fmt.Errorf("bridge.Publish: %w", err)
	}
	return nil
}

// Run subscribes to all trip channels and dispatches remote events to
// handler until ctx is cancelled. A lost subscription is re-established
// with exponential backoff capped at 30s; Run only returns once ctx is done.
func (b *Redis) Run(ctx context.Context, handler Handler) error {
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := b.consume(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		b.log.Warn("bridge subscription lost, resubscribing", "error", err)
		return retry.RetryableError(err)
	})
}

// consume holds one pattern subscription open and dispatches messages until
// the channel closes or ctx is cancelled.
func (b *Redis) consume(ctx context.Context, handler Handler) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	// Fail fast if the subscription could not be established.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("bridge: subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("bridge: subscription channel closed")
			}
			b.dispatch(msg, handler)
		}
	}
}

func (b *Redis) dispatch(msg *redis.Message, handler Handler) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.log.Warn("bridge: dropping malformed message", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == b.instanceID {
		// Our own publication; local sessions already got it from the hub.
		return
	}
	if env.TripID == uuid.Nil {
		// Fall back to the channel name for older publishers.
		id, err := uuid.Parse(strings.TrimPrefix(msg.Channel, channelPrefix))
		if err != nil {
			b.log.Warn("bridge: dropping message with no trip id", "channel", msg.Channel)
			return
		}
		env.TripID = id
	}
	handler(env.TripID, env.Event, env.Payload)
}
