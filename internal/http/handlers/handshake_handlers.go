package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/you/oobauthsvc/domain"
)

// HandshakeHandlers exposes the handshake lifecycle over HTTP. The browser
// talks to these endpoints; the out-of-band confirmations arrive through the
// webhook handlers.
type HandshakeHandlers struct {
	svc      domain.HandshakeService
	verifier domain.InitDataVerifier
}

// NewHandshakeHandlers creates new handshake handlers
func NewHandshakeHandlers(svc domain.HandshakeService, verifier domain.InitDataVerifier) *HandshakeHandlers {
	return &HandshakeHandlers{
		svc:      svc,
		verifier: verifier,
	}
}

// RequestBody represents a new handshake request
type RequestBody struct {
	Purpose string `json:"purpose,omitempty"`
	// Phone the user will call from, phone_call method only.
	Phone string `json:"phone,omitempty"`
}

// ActorBody carries the Telegram Mini-App signed init data identifying the
// confirming device.
type ActorBody struct {
	InitData string `json:"init_data" binding:"required"`
}

// Request handles POST /auth/:method/request
func (h *HandshakeHandlers) Request(c *gin.Context) {
	method, err := domain.ParseMethod(c.Param("method"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown handshake method"})
		return
	}

	// The body is optional; an absent one means a plain login request.
	var body RequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		body = RequestBody{}
	}

	purpose, err := domain.ParsePurpose(body.Purpose)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown handshake purpose"})
		return
	}

	req := &domain.HandshakeRequest{
		Method:    method,
		Purpose:   purpose,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Phone:     body.Phone,
	}

	if purpose == domain.PurposeLink {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required to link an identity"})
			return
		}
		req.UserID = userID.(uint)
	}

	grant, err := h.svc.Request(c.Request.Context(), req)
	if err != nil {
		respondHandshakeError(c, err)
		return
	}

	log.Printf("HANDSHAKE_REQUESTED: method=%s purpose=%s ip=%s timestamp=%s",
		method, purpose, req.IP, time.Now().UTC().Format(time.RFC3339))

	c.JSON(http.StatusCreated, gin.H{
		"data": gin.H{
			"token":      grant.Token.Token,
			"method":     grant.Token.Method,
			"status":     grant.Token.Status,
			"payload":    grant.OutOfBandPayload,
			"expires_at": grant.Token.ExpiresAt.UTC().Format(time.RFC3339),
			// The client derives its countdown from this once; it never
			// re-reads the server clock.
			"expires_in_seconds": int(time.Until(grant.Token.ExpiresAt).Seconds()),
		},
	})
}

// Scan handles POST /auth/:method/scan/:token (QR only)
func (h *HandshakeHandlers) Scan(c *gin.Context) {
	method, err := domain.ParseMethod(c.Param("method"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown handshake method"})
		return
	}

	actor, ok := h.bindActor(c)
	if !ok {
		return
	}

	tok, err := h.svc.Scan(c.Request.Context(), method, c.Param("token"), *actor)
	if err != nil {
		respondHandshakeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"token":  tok.Token,
			"status": tok.Status,
			"requester": gin.H{
				"ip":         tok.Requester.IP,
				"user_agent": tok.Requester.UserAgent,
			},
		},
	})
}

// Confirm handles POST /auth/:method/confirm/:token
func (h *HandshakeHandlers) Confirm(c *gin.Context) {
	method, err := domain.ParseMethod(c.Param("method"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown handshake method"})
		return
	}

	actor, ok := h.bindActor(c)
	if !ok {
		return
	}

	tok, err := h.svc.Confirm(c.Request.Context(), method, c.Param("token"), *actor)
	if err != nil {
		respondHandshakeError(c, err)
		return
	}

	log.Printf("HANDSHAKE_CONFIRMED: method=%s purpose=%s user_id=%d timestamp=%s",
		tok.Method, tok.Purpose, tok.ResolvedUserID, time.Now().UTC().Format(time.RFC3339))

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"token":  tok.Token,
			"status": tok.Status,
		},
	})
}

// Status handles GET /auth/:method/status/:token (poll fallback)
func (h *HandshakeHandlers) Status(c *gin.Context) {
	method, err := domain.ParseMethod(c.Param("method"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown handshake method"})
		return
	}

	tok, err := h.svc.Status(c.Request.Context(), method, c.Param("token"))
	if err != nil {
		respondHandshakeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"token":      tok.Token,
			"status":     tok.Status,
			"expires_at": tok.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

// Complete handles POST /auth/:method/complete/:token. Exactly one caller per
// token gets a session; everyone else gets the same uniform rejection.
func (h *HandshakeHandlers) Complete(c *gin.Context) {
	method, err := domain.ParseMethod(c.Param("method"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown handshake method"})
		return
	}

	result, err := h.svc.Complete(c.Request.Context(), method, c.Param("token"))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Handshake token not found"})
			return
		}
		// Anything else collapses to one answer so callers cannot probe why.
		c.JSON(http.StatusConflict, gin.H{"error": "Handshake not ready"})
		return
	}

	log.Printf("HANDSHAKE_COMPLETED: method=%s user_id=%d account=%s timestamp=%s",
		method, result.User.ID, result.Account.Number, time.Now().UTC().Format(time.RFC3339))

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"access_token":  result.Auth.AccessToken,
			"refresh_token": result.Auth.RefreshToken,
			"token_type":    "Bearer",
			"expires_in":    result.Auth.ExpiresIn,
			"user": gin.H{
				"id":    result.User.ID,
				"email": result.User.Email,
				"role":  result.User.Role,
			},
			"account": gin.H{
				"number": result.Account.Number,
				"tariff": result.Account.Tariff,
			},
		},
	})
}

func (h *HandshakeHandlers) bindActor(c *gin.Context) (*domain.ConfirmerContext, bool) {
	var body ActorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	actor, err := h.verifier.Verify(body.InitData)
	if err != nil {
		respondHandshakeError(c, err)
		return nil, false
	}
	return actor, true
}

// respondHandshakeError maps domain errors onto HTTP statuses. The mapping is
// shared by every lifecycle endpoint except complete, which flattens its
// failures on purpose.
func respondHandshakeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTokenNotFound), errors.Is(err, domain.ErrNoPendingToken):
		c.JSON(http.StatusNotFound, gin.H{"error": "Handshake token not found"})
	case errors.Is(err, domain.ErrTokenExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Handshake token has expired"})
	case errors.Is(err, domain.ErrTokenConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Handshake token already advanced"})
	case errors.Is(err, domain.ErrActorMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": "Confirmation must come from the scanning device"})
	case errors.Is(err, domain.ErrIdentityLinked):
		c.JSON(http.StatusConflict, gin.H{"error": "Identity is already linked to another account"})
	case errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No account matches this identity"})
	case errors.Is(err, domain.ErrUserInactive), errors.Is(err, domain.ErrAccountSuspended):
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is suspended"})
	case errors.Is(err, domain.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
	case errors.Is(err, domain.ErrInitDataInvalid), errors.Is(err, domain.ErrInitDataStale):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid confirmation credentials"})
	case errors.Is(err, domain.ErrPhoneInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
	case errors.Is(err, domain.ErrUnknownMethod), errors.Is(err, domain.ErrUnknownPurpose),
		errors.Is(err, domain.ErrTokenMissing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Handshake operation failed"})
	}
}
