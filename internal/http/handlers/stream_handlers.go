package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/you/oobauthsvc/domain"
)

// StreamHandlers serves the server-sent-events status channel. The store read
// stays authoritative; pub/sub events only wake the loop up early so the
// browser sees transitions without waiting for the next poll tick.
type StreamHandlers struct {
	svc          domain.HandshakeService
	notifier     domain.Notifier
	pollInterval time.Duration
	maxLifetime  time.Duration
}

// NewStreamHandlers creates new SSE stream handlers
func NewStreamHandlers(svc domain.HandshakeService, notifier domain.Notifier, pollInterval, maxLifetime time.Duration) *StreamHandlers {
	if pollInterval <= 0 {
		pollInterval = 1500 * time.Millisecond
	}
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute
	}
	return &StreamHandlers{
		svc:          svc,
		notifier:     notifier,
		pollInterval: pollInterval,
		maxLifetime:  maxLifetime,
	}
}

type statusFrame struct {
	Token     string             `json:"token"`
	Status    domain.TokenStatus `json:"status"`
	ExpiresAt string             `json:"expires_at"`
}

// Stream handles GET /auth/:method/stream/:token
func (h *StreamHandlers) Stream(c *gin.Context) {
	method, err := domain.ParseMethod(c.Param("method"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown handshake method"})
		return
	}
	token := c.Param("token")

	// Validate before committing to the event stream so the client gets a
	// proper status code for a dead token.
	tok, err := h.svc.Status(c.Request.Context(), method, token)
	if err != nil {
		respondHandshakeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return
	}

	writeFrame := func(t *domain.HandshakeToken) {
		frame := statusFrame{
			Token:     t.Token,
			Status:    t.Status,
			ExpiresAt: t.ExpiresAt.UTC().Format(time.RFC3339),
		}
		data, err := json.Marshal(frame)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "event: status\ndata: %s\n\n", data)
		flusher.Flush()
	}

	writeFrame(tok)
	if tok.Status.Terminal() {
		return
	}

	events, cancel := h.notifier.Subscribe(c.Request.Context(), method, token)
	defer cancel()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(h.maxLifetime)
	defer deadline.Stop()

	last := tok.Status
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-deadline.C:
			// Connection cap; the browser reconnects and resumes.
			return
		case <-events:
			// Wake up early; the store read below is still the source of truth.
		case <-ticker.C:
		}

		tok, err := h.svc.Status(c.Request.Context(), method, token)
		if err != nil {
			return
		}

		if tok.Status != last {
			last = tok.Status
			writeFrame(tok)
		} else {
			// Heartbeat comment keeps intermediaries from dropping the stream.
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()
		}

		if tok.Status.Terminal() {
			return
		}
	}
}
