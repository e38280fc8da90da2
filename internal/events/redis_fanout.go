package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"doc-intel/internal/models"
)

// RedisFanout implements Fanout on Redis pub/sub. Redis delivers per-channel
// messages to a subscriber in publish order, which carries the ordering
// guarantee end to end.
type RedisFanout struct {
	client *redis.Client
	logger Logger
}

// NewRedisFanout creates a Redis-backed fanout
func NewRedisFanout(client *redis.Client, logger Logger) *RedisFanout {
	return &RedisFanout{
		client: client,
		logger: logger,
	}
}

// Publish marshals the envelope and hands it to Redis
func (f *RedisFanout) Publish(ctx context.Context, channel string, envelope *models.Envelope) error {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return NewFanoutError("publish", channel, err)
	}

	if err := f.client.Publish(ctx, channel, raw).Err(); err != nil {
		return NewFanoutError("publish", channel, err)
	}

	return nil
}

// Subscribe attaches to the given channels and starts the receive loop
func (f *RedisFanout) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	sub := f.client.Subscribe(ctx, channels...)

	// Confirm the subscription actually started before handing it out
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		if len(channels) > 0 {
			return nil, NewFanoutError("subscribe", channels[0], err)
		}
		return nil, NewFanoutError("subscribe", "", err)
	}

	rs := &redisSubscription{
		sub:      sub,
		logger:   f.logger,
		messages: make(chan *models.Envelope, 64),
		done:     make(chan struct{}),
	}

	go rs.receiveLoop(ctx)

	return rs, nil
}

// Close closes the underlying Redis client
func (f *RedisFanout) Close() error {
	return f.client.Close()
}

type redisSubscription struct {
	sub      *redis.PubSub
	logger   Logger
	messages chan *models.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

func (s *redisSubscription) receiveLoop(ctx context.Context) {
	defer close(s.messages)
	ch := s.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.sub.Close()
			return
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			var envelope models.Envelope
			if err := json.Unmarshal([]byte(m.Payload), &envelope); err != nil {
				s.logger.Warn("dropping malformed event payload", "channel", m.Channel, "error", err)
				continue
			}
			select {
			case s.messages <- &envelope:
			case <-s.done:
				return
			case <-ctx.Done():
				_ = s.sub.Close()
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan *models.Envelope {
	return s.messages
}

func (s *redisSubscription) AddChannels(ctx context.Context, channels ...string) error {
	if err := s.sub.Subscribe(ctx, channels...); err != nil {
		if len(channels) > 0 {
			return NewFanoutError("add_channels", channels[0], err)
		}
		return NewFanoutError("add_channels", "", err)
	}
	return nil
}

func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return s.sub.Close()
}
