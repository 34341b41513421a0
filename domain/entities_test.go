package domain

import (
	"testing"
	"time"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Method
		wantErr bool
	}{
		{"qr", "qr", MethodQR, false},
		{"telegram deeplink", "telegram_deeplink", MethodTelegramDeeplink, false},
		{"phone call", "phone_call", MethodPhoneCall, false},
		{"empty", "", "", true},
		{"unknown", "carrier_pigeon", "", true},
		{"case sensitive", "QR", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMethod(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParsePurpose(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Purpose
		wantErr bool
	}{
		{"empty defaults to login", "", PurposeLogin, false},
		{"login", "login", PurposeLogin, false},
		{"link", "link", PurposeLink, false},
		{"unknown", "register", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePurpose(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTokenStatusTerminal(t *testing.T) {
	terminal := []TokenStatus{StatusUsed, StatusExpired, StatusError}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}

	live := []TokenStatus{StatusPending, StatusScanned, StatusConfirmed}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}

func TestHandshakeTokenExpiredAt(t *testing.T) {
	now := time.Now()
	tok := &HandshakeToken{ExpiresAt: now.Add(5 * time.Minute)}

	if tok.ExpiredAt(now) {
		t.Error("token should not be expired before its deadline")
	}
	if tok.ExpiredAt(now.Add(5 * time.Minute)) {
		t.Error("token should not be expired exactly at its deadline")
	}
	if !tok.ExpiredAt(now.Add(5*time.Minute + time.Second)) {
		t.Error("token should be expired past its deadline")
	}
}

func TestConfirmerContextSame(t *testing.T) {
	tests := []struct {
		name string
		a, b ConfirmerContext
		want bool
	}{
		{"same telegram id", ConfirmerContext{TelegramID: 42}, ConfirmerContext{TelegramID: 42}, true},
		{"different telegram id", ConfirmerContext{TelegramID: 42}, ConfirmerContext{TelegramID: 7}, false},
		{"telegram vs phone", ConfirmerContext{TelegramID: 42}, ConfirmerContext{Phone: "79991234567"}, false},
		{"same phone", ConfirmerContext{Phone: "79991234567"}, ConfirmerContext{Phone: "79991234567"}, true},
		{"different phone", ConfirmerContext{Phone: "79991234567"}, ConfirmerContext{Phone: "79990000000"}, false},
		{"both empty", ConfirmerContext{}, ConfirmerContext{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Same(tt.b); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
