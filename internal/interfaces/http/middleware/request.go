// internal/interfaces/http/middleware/request.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/your-org/seasonal-storefront/internal/config"
)

const (
	RequestIDKey  = "request_id"
	SessionIDKey  = "session_id"
	RequestHeader = "X-Request-ID"

	// SessionCookie carries the cart session across requests
	SessionCookie = "cart_session"
)

// RequestID tags every request with an id, reusing the caller's if valid
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestHeader, id)
		c.Next()
	}
}

// Session resolves the cart session from its cookie, minting one if absent
func Session(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookie)
		if err != nil || uuid.Validate(sessionID) != nil {
			sessionID = uuid.NewString()
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, sessionID, cfg.Cart.CookieMaxAge, "/", cfg.Cart.CookieDomain, cfg.Security.SecureCookies, true)
		c.Set(SessionIDKey, sessionID)
		c.Next()
	}
}

// SessionIDFromContext returns the session id set by Session
func SessionIDFromContext(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}

// RequestSizeLimit caps request bodies at maxBytes
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body too large",
			})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
