package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"doc-intel/internal/events"
)

// EventsHandler streams processing events to clients over server-sent events
type EventsHandler struct {
	fanout events.Fanout
	logger *log.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(fanout events.Fanout, logger *log.Logger) *EventsHandler {
	return &EventsHandler{
		fanout: fanout,
		logger: logger,
	}
}

// keepAliveInterval is how often an SSE comment is sent to hold idle
// connections open through proxies.
const keepAliveInterval = 25 * time.Second

// Stream subscribes the caller to their event channels
// @Summary Stream events
// @Description Server-sent event stream of the caller's user channel, the broadcast channel, and any document channels given via ?document=
// @Tags events
// @Produce text/event-stream
// @Param X-User-ID header string true "Caller identity"
// @Param document query []string false "Document IDs to follow"
// @Success 200 {string} string "event stream"
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/events [get]
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}

	flusher, okFlush := w.(http.Flusher)
	if !okFlush {
		writeError(h.logger, w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	channels := []string{events.UserChannel(userID), events.BroadcastChannel}
	for _, docID := range r.URL.Query()["document"] {
		if docID != "" {
			channels = append(channels, events.DocumentChannel(docID))
		}
	}

	sub, err := h.fanout.Subscribe(r.Context(), channels...)
	if err != nil {
		h.logger.Printf("Failed to subscribe %s: %v", userID, err)
		writeError(h.logger, w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": connected user=%s\n\n", userID)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case env, open := <-sub.Messages():
			if !open {
				return
			}
			payload, err := json.Marshal(env)
			if err != nil {
				h.logger.Printf("Failed to encode event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, payload)
			flusher.Flush()
		}
	}
}
