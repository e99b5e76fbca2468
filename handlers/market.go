package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stock-trader/session"
)

func (h *Handler) QuoteForm(c *gin.Context, s session.Session) {
	h.render(c, http.StatusOK, "quote.html", nil)
}

// Quote shows the current price of the requested symbol.
func (h *Handler) Quote(c *gin.Context, s session.Session) {
	quote, err := h.svc.Quote(c.Request.Context(), c.PostForm("symbol"))
	if err != nil {
		h.Apologize(c, err)
		return
	}
	h.render(c, http.StatusOK, "quoted.html", gin.H{"Quote": quote})
}
