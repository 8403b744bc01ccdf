package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wagerdash/connect-service/internal/session"
)

const sessionKey = "wd:session"

// Auth gates routes behind a verified dashboard session.
type Auth struct {
	Verifier *session.Verifier
	LoginURL string
}

// RequireJSON aborts with a 401 JSON body when no valid session is present.
// Used by the API-shaped routes (status, unlink).
func (m *Auth) RequireJSON(c *gin.Context) {
	s, ok := m.parse(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":             "authentication_required",
			"error_description": "A valid session is required.",
		})
		return
	}
	c.Set(sessionKey, s)
	c.Next()
}

// RequireRedirect sends unauthenticated requests to the login page. Used by
// the browser-facing redirect routes (authorize, callback), which must never
// answer with a raw error body.
func (m *Auth) RequireRedirect(c *gin.Context) {
	s, ok := m.parse(c)
	if !ok {
		c.Redirect(http.StatusFound, m.LoginURL)
		c.Abort()
		return
	}
	c.Set(sessionKey, s)
	c.Next()
}

// GetSession exposes the authenticated session to handlers.
func GetSession(c *gin.Context) (*session.Session, bool) {
	value, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	s, ok := value.(*session.Session)
	return s, ok
}

func (m *Auth) parse(c *gin.Context) (*session.Session, bool) {
	token := ""
	if cookie, err := c.Cookie(session.CookieName); err == nil {
		token = strings.TrimSpace(cookie)
	}
	if token == "" {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
		}
	}
	if token == "" {
		return nil, false
	}
	s, err := m.Verifier.Parse(token)
	if err != nil {
		return nil, false
	}
	return s, true
}
