package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/heizoel/internal/mailbox"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListMailbox(c *gin.Context) {
	filter := mailbox.Filter{Search: c.Query("search")}
	if raw := c.Query("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c)
			return
		}
		filter.UnreadOnly = unread
	}
	emails, err := h.mailbox.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "admin.mailbox.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails})
}

func (h *httpHandler) handleGetMailbox(c *gin.Context) {
	email, err := h.mailbox.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "admin.mailbox.get", err)
		return
	}
	c.JSON(http.StatusOK, email)
}

type readPayload struct {
	IsRead *bool `json:"is_read"`
}

func (h *httpHandler) handleSetMailboxRead(c *gin.Context) {
	var payload readPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.IsRead == nil {
		badRequest(c)
		return
	}
	email, err := h.mailbox.SetRead(c.Request.Context(), c.Param("id"), *payload.IsRead)
	if err != nil {
		h.respondError(c, "admin.mailbox.set_read", err)
		return
	}
	c.JSON(http.StatusOK, email)
}

func (h *httpHandler) handleFetchMailbox(c *gin.Context) {
	result, err := h.mailbox.Fetch(c.Request.Context())
	if err != nil {
		h.respondError(c, "admin.mailbox.fetch", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
