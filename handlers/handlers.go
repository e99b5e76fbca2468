// Package handlers serves the pages of the simulator.
package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stock-trader/middleware"
	"stock-trader/models"
	"stock-trader/session"
	"stock-trader/trading"
)

//go:embed templates/*.html
var templates embed.FS

type Handler struct {
	svc      *trading.Service
	sessions *session.Store
	log      *logrus.Logger
}

func NewHandler(svc *trading.Service, sessions *session.Store, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, sessions: sessions, log: log}
}

// NewRouter builds the engine with every route, public or protected.
func NewRouter(h *Handler, auth *middleware.Auth) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.SetHTMLTemplate(template.Must(template.New("").Funcs(template.FuncMap{
		"usd": models.USD,
	}).ParseFS(templates, "templates/*.html")))

	r.Use(middleware.Logger(h.log), middleware.NoCache(), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		h.Apologize(c, fmt.Errorf("panic: %v", recovered))
	}))
	r.NoRoute(func(c *gin.Context) {
		h.render(c, http.StatusNotFound, "apology.html", gin.H{"Message": "not found", "Code": http.StatusNotFound})
	})
	r.NoMethod(func(c *gin.Context) {
		h.render(c, http.StatusMethodNotAllowed, "apology.html", gin.H{"Message": "method not allowed", "Code": http.StatusMethodNotAllowed})
	})

	// Public routes
	r.GET("/login", h.LoginForm)
	r.POST("/login", h.Login)
	r.GET("/logout", h.Logout)
	r.GET("/register", h.RegisterForm)
	r.POST("/register", h.Register)

	// Protected routes
	r.GET("/", auth.Protect(h.Index))
	r.GET("/buy", auth.Protect(h.BuyForm))
	r.POST("/buy", auth.Protect(h.Buy))
	r.GET("/sell", auth.Protect(h.SellForm))
	r.POST("/sell", auth.Protect(h.Sell))
	r.GET("/quote", auth.Protect(h.QuoteForm))
	r.POST("/quote", auth.Protect(h.Quote))
	r.GET("/history", auth.Protect(h.History))
	r.GET("/password", auth.Protect(h.PasswordForm))
	r.POST("/password", auth.Protect(h.Password))

	return r
}

// render executes a page template. Pages know whether a user is logged in
// to pick the navigation links.
func (h *Handler) render(c *gin.Context, code int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	_, data["LoggedIn"] = c.Get("user_id")
	c.HTML(code, name, data)
}

// Apologize renders the apology page for err.
func (h *Handler) Apologize(c *gin.Context, err error) {
	a := trading.AsApology(err)
	if a.Code >= http.StatusInternalServerError {
		entry := h.log.WithField("path", c.Request.URL.Path)
		if userID, ok := c.Get("user_id"); ok {
			entry = entry.WithField("user_id", userID)
		}
		entry.Error(err)
		_ = c.Error(err)
	}
	h.render(c, a.Code, "apology.html", gin.H{"Message": a.Message, "Code": a.Code})
	c.Abort()
}
