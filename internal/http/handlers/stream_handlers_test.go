package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/you/oobauthsvc/domain"
)

type mockStreamNotifier struct {
	events    chan domain.TokenEvent
	cancelled bool
}

func newMockStreamNotifier() *mockStreamNotifier {
	return &mockStreamNotifier{events: make(chan domain.TokenEvent)}
}

func (n *mockStreamNotifier) Publish(context.Context, domain.TokenEvent) {}

func (n *mockStreamNotifier) Subscribe(context.Context, domain.Method, string) (<-chan domain.TokenEvent, func()) {
	return n.events, func() { n.cancelled = true }
}

func streamRouter(svc domain.HandshakeService, notifier domain.Notifier, poll, maxLifetime time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewStreamHandlers(svc, notifier, poll, maxLifetime)

	r := gin.New()
	r.GET("/auth/:method/stream/:token", h.Stream)
	return r
}

func serveStream(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// statusSequence hands out the given statuses in order, repeating the last
// one once the sequence is exhausted.
func statusSequence(statuses ...domain.TokenStatus) func(context.Context, domain.Method, string) (*domain.HandshakeToken, error) {
	var calls int
	return func(_ context.Context, _ domain.Method, token string) (*domain.HandshakeToken, error) {
		idx := calls
		if idx >= len(statuses) {
			idx = len(statuses) - 1
		}
		calls++
		return &domain.HandshakeToken{
			Token:     token,
			Method:    domain.MethodQR,
			Status:    statuses[idx],
			ExpiresAt: time.Now().Add(5 * time.Minute),
		}, nil
	}
}

func TestStreamHandlers_FramesOnChangeAndTerminates(t *testing.T) {
	svc := &mockHandshakeService{StatusFunc: statusSequence(domain.StatusPending, domain.StatusUsed)}
	notifier := newMockStreamNotifier()
	r := streamRouter(svc, notifier, 5*time.Millisecond, time.Second)

	// ServeHTTP returns only when the stream ends; a terminal status must
	// end it well before the lifetime cap.
	start := time.Now()
	w := serveStream(t, r, "/auth/qr/stream/tok123")
	elapsed := time.Since(start)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, `"status":"pending"`) {
		t.Errorf("missing initial pending frame in %q", body)
	}
	if !strings.Contains(body, `"status":"used"`) {
		t.Errorf("missing terminal used frame in %q", body)
	}
	if strings.Count(body, "event: status") != 2 {
		t.Errorf("expected exactly two status frames, got %q", body)
	}

	if elapsed > 500*time.Millisecond {
		t.Errorf("stream did not terminate on terminal state, ran %v", elapsed)
	}
	if !notifier.cancelled {
		t.Error("subscription was not released")
	}
}

func TestStreamHandlers_HeartbeatAndLifetimeCap(t *testing.T) {
	svc := &mockHandshakeService{StatusFunc: statusSequence(domain.StatusPending)}
	notifier := newMockStreamNotifier()
	r := streamRouter(svc, notifier, 5*time.Millisecond, 50*time.Millisecond)

	start := time.Now()
	w := serveStream(t, r, "/auth/qr/stream/tok123")
	elapsed := time.Since(start)

	body := w.Body.String()
	if !strings.Contains(body, ": ping") {
		t.Errorf("expected heartbeat comments, got %q", body)
	}
	// Only the initial frame: the status never changed.
	if strings.Count(body, "event: status") != 1 {
		t.Errorf("expected a single status frame, got %q", body)
	}

	if elapsed > 500*time.Millisecond {
		t.Errorf("lifetime cap not enforced, stream ran %v", elapsed)
	}
	if !notifier.cancelled {
		t.Error("subscription was not released")
	}
}

func TestStreamHandlers_TerminalTokenClosesImmediately(t *testing.T) {
	svc := &mockHandshakeService{StatusFunc: statusSequence(domain.StatusExpired)}
	notifier := newMockStreamNotifier()
	r := streamRouter(svc, notifier, 5*time.Millisecond, time.Second)

	w := serveStream(t, r, "/auth/qr/stream/tok123")

	body := w.Body.String()
	if !strings.Contains(body, `"status":"expired"`) {
		t.Errorf("missing expired frame in %q", body)
	}
	if strings.Count(body, "event: status") != 1 {
		t.Errorf("expected a single frame for an already-terminal token, got %q", body)
	}
	if strings.Contains(body, ": ping") {
		t.Errorf("no heartbeats expected for an already-terminal token, got %q", body)
	}
}

func TestStreamHandlers_BroadcastWakesStreamEarly(t *testing.T) {
	svc := &mockHandshakeService{StatusFunc: statusSequence(domain.StatusPending, domain.StatusUsed)}
	notifier := newMockStreamNotifier()
	// Poll cadence far beyond the test horizon: only the broadcast can wake
	// the loop before the lifetime cap.
	r := streamRouter(svc, notifier, time.Minute, time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		notifier.events <- domain.TokenEvent{Token: "tok123", Method: domain.MethodQR, Status: domain.StatusUsed}
	}()

	start := time.Now()
	w := serveStream(t, r, "/auth/qr/stream/tok123")
	elapsed := time.Since(start)

	if !strings.Contains(w.Body.String(), `"status":"used"`) {
		t.Errorf("missing used frame in %q", w.Body.String())
	}
	if elapsed > 800*time.Millisecond {
		t.Errorf("broadcast did not wake the stream, ran %v", elapsed)
	}
}

func TestStreamHandlers_UnknownTokenRejectedBeforeStreaming(t *testing.T) {
	svc := &mockHandshakeService{
		StatusFunc: func(context.Context, domain.Method, string) (*domain.HandshakeToken, error) {
			return nil, domain.ErrTokenNotFound
		},
	}
	r := streamRouter(svc, newMockStreamNotifier(), 5*time.Millisecond, time.Second)

	w := serveStream(t, r, "/auth/qr/stream/missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("expected a json error, content type %q", ct)
	}
}
