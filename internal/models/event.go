package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminates the fixed set of wire message kinds. The set is part
// of the client contract and must stay stable; consumers treat unknown types as
// a no-op for forward compatibility.
type EventType string

const (
	EventProcessingStarted   EventType = "document_processing_started"
	EventProcessingProgress  EventType = "document_processing_progress"
	EventProcessingCompleted EventType = "document_processing_completed"
	EventProcessingFailed    EventType = "document_processing_failed"
	EventNotification        EventType = "notification"
	EventActionItemAssigned  EventType = "action_item_assigned"
	EventPresence            EventType = "presence"
)

// IsValid checks if the event type is one of the fixed wire kinds
func (t EventType) IsValid() bool {
	switch t {
	case EventProcessingStarted, EventProcessingProgress, EventProcessingCompleted,
		EventProcessingFailed, EventNotification, EventActionItemAssigned, EventPresence:
		return true
	default:
		return false
	}
}

// Envelope is the wire format published to fanout channels
type Envelope struct {
	Type        EventType       `json:"type"`
	Data        json.RawMessage `json:"data,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}

// NewEnvelope wraps a payload in an envelope of the given type
func NewEnvelope(t EventType, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return Envelope{
		Type:        t,
		Data:        data,
		PublishedAt: time.Now(),
	}, nil
}

// ProcessingStartedEvent signals that a document entered the pipeline
type ProcessingStartedEvent struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename,omitempty"`
}

// ProcessingProgressEvent reports intermediate pipeline progress
type ProcessingProgressEvent struct {
	DocumentID  string  `json:"document_id"`
	Percentage  float64 `json:"percentage"`
	CurrentStep string  `json:"current_step,omitempty"`
}

// ProcessingCompletedEvent signals terminal success for a document
type ProcessingCompletedEvent struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename,omitempty"`
}

// ProcessingFailedEvent signals terminal failure for a document
type ProcessingFailedEvent struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

// NotificationEvent carries a user-facing notice
type NotificationEvent struct {
	Priority string `json:"priority"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// ActionItemAssignedEvent signals a detected action item assignment
type ActionItemAssignedEvent struct {
	Title string `json:"title"`
}

// PresenceEvent is advisory channel membership information. It must never
// gate delivery of processing events.
type PresenceEvent struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Action  string `json:"action"` // join, leave, timeout
}

// IsProcessingEvent reports whether t belongs to a document's processing
// lifecycle stream
func IsProcessingEvent(t EventType) bool {
	switch t {
	case EventProcessingStarted, EventProcessingProgress,
		EventProcessingCompleted, EventProcessingFailed:
		return true
	default:
		return false
	}
}

// IsTerminalProcessingEvent reports whether t ends a document's event stream.
// For a single document, completed/failed must not be followed by progress.
func IsTerminalProcessingEvent(t EventType) bool {
	return t == EventProcessingCompleted || t == EventProcessingFailed
}
