package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/you/oobauthsvc/domain"
)

// AuthMW wraps the token service and session repository for middleware
type AuthMW struct {
	tokenSvc    domain.TokenService
	sessionRepo domain.SessionRepository
}

// NewAuthMW creates new auth middleware wrapper
func NewAuthMW(tokenSvc domain.TokenService, sessionRepo domain.SessionRepository) *AuthMW {
	return &AuthMW{
		tokenSvc:    tokenSvc,
		sessionRepo: sessionRepo,
	}
}

// WithJWT requires a valid Bearer token and live session.
func (mw *AuthMW) WithJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		mw.authenticate(c, authHeader)
	}
}

// OptionalJWT authenticates when a Bearer token is present and passes through
// when it is not. Link-purpose handshake requests need the caller identified;
// login-purpose ones are anonymous by nature.
func (mw *AuthMW) OptionalJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		mw.authenticate(c, authHeader)
	}
}

func (mw *AuthMW) authenticate(c *gin.Context, authHeader string) {
	tokenParts := strings.SplitN(authHeader, " ", 2)
	if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
		c.Abort()
		return
	}

	claims, err := mw.tokenSvc.ValidateAccessToken(tokenParts[1])
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJWTExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
		case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTokenMalformed):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		default:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token validation failed"})
		}
		c.Abort()
		return
	}

	// The session must still exist in Redis; a revoked session kills the JWT.
	if claims.SessionID != "" {
		session, err := mw.sessionRepo.FindByID(c.Request.Context(), claims.SessionID)
		if err != nil || session == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session invalid or expired"})
			c.Abort()
			return
		}
		if session.UserID != claims.UserID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session user mismatch"})
			c.Abort()
			return
		}
		c.Set("session_id", claims.SessionID)
	}

	c.Set("user_id", claims.UserID)
	c.Set("user_role", claims.Role)
	c.Next()
}
