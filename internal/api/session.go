package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionCookie       = "pea_session"
	sessionIDContextKey = "pea_session_id"
)

// sessionMiddleware makes sure every request carries a session id, issuing a
// new cookie when the browser has none or sent garbage.
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, id, int(h.sessionTTL.Seconds()), "/", "", h.secureCookie, true)
		}
		c.Set(sessionIDContextKey, id)
		c.Next()
	}
}

// SessionIDFromContext retrieves the id stored by the session middleware.
func SessionIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(sessionIDContextKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}

func (h *Handler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", h.secureCookie, true)
}
