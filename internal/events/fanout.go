package events

import (
	"context"

	"doc-intel/internal/models"
)

// Channel name helpers. Subscribers address a user's private feed, one
// document's progress feed, or the shared broadcast feed.
const BroadcastChannel = "broadcast"

// UserChannel returns the private channel for a user
func UserChannel(userID string) string {
	return "user-" + userID
}

// DocumentChannel returns the progress channel for a document
func DocumentChannel(documentID string) string {
	return "doc-" + documentID
}

// Logger defines the interface for logging
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// Fanout delivers event envelopes to every subscriber of a channel.
// Publish is synchronous with respect to the broker: when it returns nil the
// envelope has been handed to the broker in order.
type Fanout interface {
	Publish(ctx context.Context, channel string, envelope *models.Envelope) error
	// Subscribe attaches to one or more channels. Envelopes arrive on the
	// subscription's Messages channel in publish order per channel.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	Close() error
}

// Subscription is a live attachment to a set of channels
type Subscription interface {
	Messages() <-chan *models.Envelope
	// AddChannels extends the subscription without dropping messages from
	// channels already attached.
	AddChannels(ctx context.Context, channels ...string) error
	Close() error
}

// FanoutError represents errors from the event fanout
type FanoutError struct {
	Operation string
	Channel   string
	Err       error
}

func (e *FanoutError) Error() string {
	prefix := e.Operation
	if e.Channel != "" {
		prefix += " (channel: " + e.Channel + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *FanoutError) Unwrap() error {
	return e.Err
}

// NewFanoutError creates a new fanout error
func NewFanoutError(operation string, channel string, err error) *FanoutError {
	return &FanoutError{
		Operation: operation,
		Channel:   channel,
		Err:       err,
	}
}
