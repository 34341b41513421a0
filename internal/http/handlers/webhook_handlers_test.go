package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/you/oobauthsvc/domain"
)

type mockBot struct {
	mu      sync.Mutex
	replies []string
}

func (b *mockBot) DeepLink(token string) string { return "https://t.me/test_bot?start=AUTH_" + token }

func (b *mockBot) Reply(_ int64, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, text)
	return nil
}

func webhookRouter(svc domain.HandshakeService, bot domain.BotService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandlers(svc, bot)

	r := gin.New()
	r.POST("/webhooks/telegram", h.Telegram)
	r.POST("/webhooks/phone/incoming", h.PhoneIncoming)
	return r
}

func telegramUpdate(text string) map[string]any {
	return map[string]any{
		"update_id": 1001,
		"message": map[string]any{
			"message_id": 7,
			"text":       text,
			"from":       map[string]any{"id": 500100, "username": "subscriber"},
			"chat":       map[string]any{"id": 500100},
		},
	}
}

func TestWebhookHandlers_Telegram(t *testing.T) {
	tests := []struct {
		name          string
		update        map[string]any
		confirmErr    error
		wantConfirmed string
		wantReply     string
	}{
		{
			name:          "deep link start confirms the token",
			update:        telegramUpdate("/start AUTH_tok123"),
			wantConfirmed: "tok123",
			wantReply:     "Confirmed. You can return to your browser.",
		},
		{
			name:   "unrelated message is ignored",
			update: telegramUpdate("hello bot"),
		},
		{
			name:   "bare start without payload is ignored",
			update: telegramUpdate("/start"),
		},
		{
			name:          "expired token gets a restart hint",
			update:        telegramUpdate("/start AUTH_tok999"),
			confirmErr:    domain.ErrTokenExpired,
			wantConfirmed: "tok999",
			wantReply:     "This sign-in link has expired. Please start over in your browser.",
		},
		{
			name:          "linked identity conflict is surfaced in chat",
			update:        telegramUpdate("/start AUTH_tok999"),
			confirmErr:    domain.ErrIdentityLinked,
			wantConfirmed: "tok999",
			wantReply:     "This Telegram account is already linked to a different subscriber account.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var confirmed string
			svc := &mockHandshakeService{
				ConfirmFunc: func(_ context.Context, method domain.Method, token string, actor domain.ConfirmerContext) (*domain.HandshakeToken, error) {
					confirmed = token
					if method != domain.MethodTelegramDeeplink {
						t.Errorf("method = %v", method)
					}
					if actor.TelegramID != 500100 {
						t.Errorf("actor telegram id = %d", actor.TelegramID)
					}
					if tt.confirmErr != nil {
						return nil, tt.confirmErr
					}
					return &domain.HandshakeToken{Token: token, Status: domain.StatusConfirmed}, nil
				},
			}
			bot := &mockBot{}
			r := webhookRouter(svc, bot)

			w := doJSON(t, r, http.MethodPost, "/webhooks/telegram", tt.update)

			// Telegram retries on non-200; the webhook always acknowledges.
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if confirmed != tt.wantConfirmed {
				t.Errorf("confirmed token = %q, want %q", confirmed, tt.wantConfirmed)
			}
			if tt.wantReply == "" {
				if len(bot.replies) != 0 {
					t.Errorf("unexpected replies: %v", bot.replies)
				}
			} else if len(bot.replies) != 1 || bot.replies[0] != tt.wantReply {
				t.Errorf("replies = %v, want [%q]", bot.replies, tt.wantReply)
			}
		})
	}
}

func TestWebhookHandlers_PhoneIncoming(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantPhone   string
	}{
		{
			name:        "json caller field",
			contentType: "application/json",
			body:        `{"caller":"+79991234567","call_id":"abc"}`,
			wantPhone:   "+79991234567",
		},
		{
			name:        "json legacy from field",
			contentType: "application/json",
			body:        `{"from":"89991234567"}`,
			wantPhone:   "89991234567",
		},
		{
			name:        "twilio style form field",
			contentType: "application/x-www-form-urlencoded",
			body:        "From=%2B79991234567&CallSid=CA123",
			wantPhone:   "+79991234567",
		},
		{
			name:        "caller preferred over from",
			contentType: "application/json",
			body:        `{"caller":"79991111111","from":"79992222222"}`,
			wantPhone:   "79991111111",
		},
		{
			name:        "legacy vendor form field",
			contentType: "application/x-www-form-urlencoded",
			body:        "callerid=89991234567",
			wantPhone:   "89991234567",
		},
		{
			name:        "no recognizable field",
			contentType: "application/json",
			body:        `{"call_id":"abc"}`,
		},
		{
			name:        "truncated json degrades to a no-op",
			contentType: "application/json",
			body:        `{"caller":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			svc := &mockHandshakeService{
				ConfirmPhoneFunc: func(_ context.Context, rawPhone string) error {
					got = rawPhone
					return nil
				},
			}
			r := webhookRouter(svc, &mockBot{})

			req, _ := http.NewRequest(http.MethodPost, "/webhooks/phone/incoming", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if w.Body.String() != `{"ok":true}` {
				t.Errorf("body = %s", w.Body.String())
			}
			if got != tt.wantPhone {
				t.Errorf("phone = %q, want %q", got, tt.wantPhone)
			}
		})
	}
}

// The vendor must get its acknowledgement even when the handshake rejects the
// call, otherwise it retries a webhook that can never succeed.
func TestWebhookHandlers_PhoneIncomingAlwaysAcks(t *testing.T) {
	failures := []error{domain.ErrNoPendingToken, domain.ErrTokenExpired, domain.ErrPhoneInvalid, domain.ErrUserNotFound}

	for _, failure := range failures {
		svc := &mockHandshakeService{
			ConfirmPhoneFunc: func(context.Context, string) error { return failure },
		}
		r := webhookRouter(svc, &mockBot{})

		req, _ := http.NewRequest(http.MethodPost, "/webhooks/phone/incoming", strings.NewReader(`{"caller":"79991234567"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK || w.Body.String() != `{"ok":true}` {
			t.Errorf("failure %v: status=%d body=%s", failure, w.Code, w.Body.String())
		}
	}
}
