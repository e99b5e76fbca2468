package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stock-trader/session"
)

// Index shows cash, holdings at current prices and the grand total.
func (h *Handler) Index(c *gin.Context, s session.Session) {
	portfolio, err := h.svc.Portfolio(c.Request.Context(), s.UserID)
	if err != nil {
		h.Apologize(c, err)
		return
	}
	h.render(c, http.StatusOK, "index.html", gin.H{"Portfolio": portfolio})
}

func (h *Handler) BuyForm(c *gin.Context, s session.Session) {
	h.render(c, http.StatusOK, "buy.html", nil)
}

func (h *Handler) Buy(c *gin.Context, s session.Session) {
	if _, err := h.svc.Buy(c.Request.Context(), s.UserID, c.PostForm("symbol"), c.PostForm("shares")); err != nil {
		h.Apologize(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// SellForm offers the symbols the user holds.
func (h *Handler) SellForm(c *gin.Context, s session.Session) {
	holdings, err := h.svc.Holdings(c.Request.Context(), s.UserID)
	if err != nil {
		h.Apologize(c, err)
		return
	}
	h.render(c, http.StatusOK, "sell.html", gin.H{"Holdings": holdings})
}

func (h *Handler) Sell(c *gin.Context, s session.Session) {
	if _, err := h.svc.Sell(c.Request.Context(), s.UserID, c.PostForm("symbol"), c.PostForm("shares")); err != nil {
		h.Apologize(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) History(c *gin.Context, s session.Session) {
	txs, err := h.svc.History(c.Request.Context(), s.UserID)
	if err != nil {
		h.Apologize(c, err)
		return
	}
	h.render(c, http.StatusOK, "history.html", gin.H{"Transactions": txs})
}
