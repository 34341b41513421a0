package httpx

import (
	"github.com/gin-gonic/gin"
	"github.com/you/oobauthsvc/internal/http/handlers"
	"github.com/you/oobauthsvc/internal/http/middleware"
)

func BuildRouter(hh *handlers.HandshakeHandlers, sh *handlers.StreamHandlers, wh *handlers.WebhookHandlers, jwtmw *middleware.AuthMW) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	auth := r.Group("/auth/:method")
	// OptionalJWT: link-purpose requests carry a Bearer token, login ones don't.
	auth.POST("/request", jwtmw.OptionalJWT(), hh.Request)
	auth.POST("/scan/:token", hh.Scan)
	auth.POST("/confirm/:token", hh.Confirm)
	auth.GET("/status/:token", hh.Status)
	auth.GET("/stream/:token", sh.Stream)
	auth.GET("/complete/:token", hh.Complete)

	hooks := r.Group("/webhooks")
	hooks.POST("/telegram", wh.Telegram)
	hooks.POST("/phone/incoming", wh.PhoneIncoming)

	return r
}
