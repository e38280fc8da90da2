package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"doc-intel/internal/models"
)

// ClientState represents the connection lifecycle of an event client
type ClientState string

const (
	ClientDisconnected ClientState = "disconnected"
	ClientConnecting   ClientState = "connecting"
	ClientConnected    ClientState = "connected"
	ClientReconnecting ClientState = "reconnecting"
)

// Handler processes one event envelope
type Handler func(envelope *models.Envelope)

// Client is a consumer-side attachment to the fanout. It routes envelopes to
// one handler per event type and survives connection drops: the subscription
// set is retained and replayed against the broker on every reconnect.
type Client struct {
	fanout Fanout
	logger Logger

	mu            sync.Mutex
	state         ClientState
	subscriptions map[string]struct{}
	handlers      map[models.EventType]Handler
	sub           Subscription
	cancel        context.CancelFunc
	unread        int
	terminated    map[string]struct{}

	// ReconnectDelay is the pause before each reconnect attempt
	ReconnectDelay time.Duration
}

// NewClient creates a disconnected client
func NewClient(fanout Fanout, logger Logger) *Client {
	return &Client{
		fanout:         fanout,
		logger:         logger,
		state:          ClientDisconnected,
		subscriptions:  make(map[string]struct{}),
		handlers:       make(map[models.EventType]Handler),
		terminated:     make(map[string]struct{}),
		ReconnectDelay: time.Second,
	}
}

// On registers the handler for an event type, replacing any previous one
func (c *Client) On(eventType models.EventType, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = handler
}

// State returns the current connection state
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe adds a channel to the retained set and, when connected, attaches
// it to the live subscription immediately.
func (c *Client) Subscribe(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscriptions[channel]; ok {
		return nil
	}
	c.subscriptions[channel] = struct{}{}

	if c.state == ClientConnected && c.sub != nil {
		if err := c.sub.AddChannels(ctx, channel); err != nil {
			return err
		}
	}
	return nil
}

// Connect establishes the subscription and starts dispatching. Connecting an
// already-connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == ClientConnected || c.state == ClientConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = ClientConnecting
	channels := c.channelList()
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	sub, err := c.fanout.Subscribe(runCtx, channels...)
	if err != nil {
		cancel()
		c.setState(ClientDisconnected)
		return err
	}

	c.mu.Lock()
	c.sub = sub
	c.cancel = cancel
	c.state = ClientConnected
	c.mu.Unlock()

	go c.dispatchLoop(runCtx, sub)
	return nil
}

// Disconnect tears down the subscription. The retained subscription set and
// the unread counter survive for the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sub := c.sub
	cancel := c.cancel
	c.sub = nil
	c.cancel = nil
	c.state = ClientDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		_ = sub.Close()
	}
}

// Unread returns the pending notification count
func (c *Client) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// MarkRead clears n pending notifications. The counter never goes below zero,
// even when acknowledgements outnumber arrivals.
func (c *Client) MarkRead(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unread -= n
	if c.unread < 0 {
		c.unread = 0
	}
}

func (c *Client) channelList() []string {
	channels := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		channels = append(channels, ch)
	}
	return channels
}

func (c *Client) setState(state ClientState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) dispatchLoop(ctx context.Context, sub Subscription) {
	for envelope := range sub.Messages() {
		c.dispatch(envelope)
	}

	// Messages channel closed. If the client was not told to disconnect,
	// the connection dropped underneath us; reconnect with the retained set.
	c.mu.Lock()
	if c.state != ClientConnected || c.sub != sub {
		c.mu.Unlock()
		return
	}
	c.state = ClientReconnecting
	c.sub = nil
	c.mu.Unlock()

	c.reconnect(ctx)
}

func (c *Client) reconnect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.setState(ClientDisconnected)
			return
		case <-time.After(c.ReconnectDelay):
		}

		c.mu.Lock()
		if c.state != ClientReconnecting {
			c.mu.Unlock()
			return
		}
		channels := c.channelList()
		c.mu.Unlock()

		sub, err := c.fanout.Subscribe(ctx, channels...)
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "error", err)
			continue
		}

		c.mu.Lock()
		c.sub = sub
		c.state = ClientConnected
		c.mu.Unlock()

		c.logger.Info("reconnected", "channels", len(channels))
		go c.dispatchLoop(ctx, sub)
		return
	}
}

// dispatch routes an envelope to its registered handler. Envelopes with an
// unknown or unhandled type are logged and dropped; they never crash the loop.
// Processing events arriving after the document's terminal event violate
// per-document ordering and are dropped; duplicates of the terminal event
// itself are tolerated.
func (c *Client) dispatch(envelope *models.Envelope) {
	if !envelope.Type.IsValid() {
		c.logger.Warn("dropping event with unknown type", "type", string(envelope.Type))
		return
	}

	if models.IsProcessingEvent(envelope.Type) && !c.admitProcessingEvent(envelope) {
		return
	}

	if envelope.Type == models.EventNotification {
		c.mu.Lock()
		c.unread++
		c.mu.Unlock()
	}

	c.mu.Lock()
	handler := c.handlers[envelope.Type]
	c.mu.Unlock()

	if handler == nil {
		c.logger.Debug("no handler for event type", "type", string(envelope.Type))
		return
	}
	handler(envelope)
}

// admitProcessingEvent tracks which documents have reached a terminal event
// and rejects non-terminal events that arrive after one.
func (c *Client) admitProcessingEvent(envelope *models.Envelope) bool {
	var payload struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.DocumentID == "" {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.terminated[payload.DocumentID]; done {
		if models.IsTerminalProcessingEvent(envelope.Type) {
			// A redelivered terminal event is an idempotent duplicate
			return true
		}
		c.logger.Warn("dropping out-of-order processing event",
			"type", string(envelope.Type), "document_id", payload.DocumentID)
		return false
	}

	if models.IsTerminalProcessingEvent(envelope.Type) {
		c.terminated[payload.DocumentID] = struct{}{}
	}
	return true
}
