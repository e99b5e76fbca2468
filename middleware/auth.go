package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stock-trader/session"
)

// CookieName is the cookie holding the session token.
const CookieName = "session"

// SessionHandler is a handler that may only run on behalf of a logged in user.
type SessionHandler func(c *gin.Context, s session.Session)

// ErrorHandler renders an error response for err.
type ErrorHandler func(c *gin.Context, err error)

// Auth guards the routes that need a session.
type Auth struct {
	store   *session.Store
	log     *logrus.Logger
	onError ErrorHandler
}

// NewAuth is constructor. onError renders session store failures; when nil
// they get a bare 500.
func NewAuth(store *session.Store, log *logrus.Logger, onError ErrorHandler) *Auth {
	a := &Auth{store: store, log: log, onError: onError}
	if a.onError == nil {
		a.onError = func(c *gin.Context, err error) {
			a.log.WithField("path", c.Request.URL.Path).Error(err)
			c.AbortWithStatus(http.StatusInternalServerError)
		}
	}
	return a
}

// Protect resolves the session of the request and hands it to h. Requests
// without a live session are redirected to the login page and h never runs.
// A failing session store is an error, the cookie is kept.
func (a *Auth) Protect(h SessionHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(CookieName)
		s, err := a.store.Resolve(c.Request.Context(), token)
		if errors.Is(err, session.ErrNoSession) {
			ClearSessionCookie(c)
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		if err != nil {
			a.onError(c, err)
			c.Abort()
			return
		}
		c.Set("user_id", s.UserID)
		h(c, s)
	}
}

// SetSessionCookie hands the session token to the browser.
func SetSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, maxAge, "/", "", c.Request.TLS != nil, true)
}

// ClearSessionCookie removes the session token from the browser.
func ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", c.Request.TLS != nil, true)
}

// SessionToken returns the session token sent by the browser, if any.
func SessionToken(c *gin.Context) string {
	token, _ := c.Cookie(CookieName)
	return token
}
