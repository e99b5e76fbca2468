package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stock-trader/middleware"
	"stock-trader/session"
)

// forget ends the session of the browser, if any.
func (h *Handler) forget(c *gin.Context) {
	if token := middleware.SessionToken(c); token != "" {
		if err := h.sessions.Destroy(c.Request.Context(), token); err != nil {
			h.log.Error(err)
		}
		middleware.ClearSessionCookie(c)
	}
}

func (h *Handler) LoginForm(c *gin.Context) {
	h.forget(c)
	h.render(c, http.StatusOK, "login.html", nil)
}

// Login starts a new session for valid credentials.
func (h *Handler) Login(c *gin.Context) {
	h.forget(c)

	user, err := h.svc.Authenticate(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		h.Apologize(c, err)
		return
	}

	_, token, err := h.sessions.Create(c.Request.Context(), user.ID)
	if err != nil {
		h.Apologize(c, err)
		return
	}
	middleware.SetSessionCookie(c, token, int(h.sessions.TTL().Seconds()))
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) Logout(c *gin.Context) {
	h.forget(c)
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) RegisterForm(c *gin.Context) {
	h.render(c, http.StatusOK, "register.html", nil)
}

// Register creates the account and sends the user to the login page.
func (h *Handler) Register(c *gin.Context) {
	_, err := h.svc.Register(c.Request.Context(), c.PostForm("username"), c.PostForm("password"), c.PostForm("confirmation"))
	if err != nil {
		h.Apologize(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/login")
}

func (h *Handler) PasswordForm(c *gin.Context, s session.Session) {
	h.render(c, http.StatusOK, "password.html", nil)
}

// Password changes the password of the logged in user.
func (h *Handler) Password(c *gin.Context, s session.Session) {
	err := h.svc.ChangePassword(c.Request.Context(), s.UserID,
		c.PostForm("actualpassword"), c.PostForm("password"), c.PostForm("confirmation"))
	if err != nil {
		h.Apologize(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}
