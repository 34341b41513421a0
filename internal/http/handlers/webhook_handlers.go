package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/you/oobauthsvc/domain"
)

// deepLinkToken matches the /start payload carried by the bot deep link.
var deepLinkToken = regexp.MustCompile(`^/start\s+AUTH_([A-Za-z0-9_-]+)$`)

// WebhookHandlers receives the out-of-band confirmations: bot messages from
// Telegram and inbound-call events from the telephony vendor. Both endpoints
// acknowledge unconditionally; a handshake failure is never the sender's
// problem.
type WebhookHandlers struct {
	svc domain.HandshakeService
	bot domain.BotService
}

// NewWebhookHandlers creates new webhook handlers
func NewWebhookHandlers(svc domain.HandshakeService, bot domain.BotService) *WebhookHandlers {
	return &WebhookHandlers{
		svc: svc,
		bot: bot,
	}
}

// Telegram handles POST /webhooks/telegram
func (h *WebhookHandlers) Telegram(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	m := deepLinkToken.FindStringSubmatch(msg.Text)
	if m == nil {
		// Not a deep-link start; nothing for us in this conversation turn.
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	token := m[1]

	actor := domain.ConfirmerContext{
		TelegramID: msg.From.ID,
		DeviceInfo: "@" + msg.From.UserName,
	}

	_, err := h.svc.Confirm(c.Request.Context(), domain.MethodTelegramDeeplink, token, actor)
	h.reply(msg.Chat.ID, err)

	if err != nil {
		log.Printf("TELEGRAM_CONFIRM_FAILED: telegram_id=%d error=%v timestamp=%s",
			msg.From.ID, err, time.Now().UTC().Format(time.RFC3339))
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// reply surfaces the outcome inside the bot conversation, the only channel
// the confirming user is watching.
func (h *WebhookHandlers) reply(chatID int64, confirmErr error) {
	var text string
	switch {
	case confirmErr == nil:
		text = "Confirmed. You can return to your browser."
	case errors.Is(confirmErr, domain.ErrTokenExpired):
		text = "This sign-in link has expired. Please start over in your browser."
	case errors.Is(confirmErr, domain.ErrTokenNotFound):
		text = "This sign-in link is no longer valid."
	case errors.Is(confirmErr, domain.ErrIdentityLinked):
		text = "This Telegram account is already linked to a different subscriber account."
	case errors.Is(confirmErr, domain.ErrUserNotFound):
		text = "We could not find a subscriber account for this Telegram profile."
	case errors.Is(confirmErr, domain.ErrUserInactive), errors.Is(confirmErr, domain.ErrAccountSuspended):
		text = "Your account is suspended. Please contact support."
	default:
		text = "Something went wrong. Please try again from your browser."
	}

	if err := h.bot.Reply(chatID, text); err != nil {
		log.Printf("TELEGRAM_REPLY_FAILED: chat_id=%d error=%v", chatID, err)
	}
}

// callerFields lists the payload keys the telephony vendor has used for the
// caller number over the years, in preference order.
var callerFields = []string{"caller", "caller_id", "callerid", "from", "phone", "number", "From", "Caller"}

// PhoneIncoming handles POST /webhooks/phone/incoming. The vendor retries on
// non-200, so the answer is {"ok":true} no matter what happened to the
// handshake.
func (h *WebhookHandlers) PhoneIncoming(c *gin.Context) {
	phone, ok := extractCaller(c)
	if !ok {
		log.Printf("PHONE_WEBHOOK_NO_CALLER: content_type=%s timestamp=%s",
			c.ContentType(), time.Now().UTC().Format(time.RFC3339))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if err := h.svc.ConfirmPhone(c.Request.Context(), phone); err != nil {
		log.Printf("PHONE_CONFIRM_FAILED: error=%v timestamp=%s",
			err, time.Now().UTC().Format(time.RFC3339))
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// extractCaller merges the request payload and URL query into one generic
// map and tries the known caller keys in order. The body is read once and the
// same bytes are tried as JSON first, then as a form, so either vendor shape
// survives.
func extractCaller(c *gin.Context) (string, bool) {
	merged := map[string]string{}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		body = nil
	}

	var fields map[string]any
	if json.Unmarshal(body, &fields) == nil {
		for k, v := range fields {
			switch val := v.(type) {
			case string:
				merged[k] = val
			case float64:
				merged[k] = fmt.Sprintf("%.0f", val)
			}
		}
	} else if values, err := url.ParseQuery(string(body)); err == nil {
		for k, vs := range values {
			if len(vs) > 0 && merged[k] == "" {
				merged[k] = vs[0]
			}
		}
	}

	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 && merged[k] == "" {
			merged[k] = vs[0]
		}
	}

	for _, key := range callerFields {
		if v := merged[key]; v != "" {
			return v, true
		}
	}
	return "", false
}
