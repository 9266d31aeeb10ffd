package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CSRFCookie = "pea_csrf"
	CSRFHeader = "X-CSRF-Token"
)

// issueCSRF hands the page a token readable by its script. It is paired with
// the session cookie and checked on every state-changing request.
func (h *Handler) issueCSRF(c *gin.Context) {
	if token, err := c.Cookie(CSRFCookie); err == nil && token != "" {
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CSRFCookie, uuid.NewString(), int(h.sessionTTL.Seconds()), "/", "", h.secureCookie, false)
}

// csrfMiddleware enforces double-submit protection: the header must repeat the cookie.
func (h *Handler) csrfMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requiresCSRFCheck(c.Request.Method) {
			c.Next()
			return
		}
		headerToken := c.GetHeader(CSRFHeader)
		cookieToken, err := c.Cookie(CSRFCookie)
		if err != nil || headerToken == "" || cookieToken == "" ||
			subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid csrf token"})
			return
		}
		c.Next()
	}
}

func requiresCSRFCheck(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
