package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/heizoel/internal/notify"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/gin-gonic/gin"
)

// Secrets never leave the server: every settings read returns the masked form.

func (h *httpHandler) handleGetPhone(c *gin.Context) {
	record, err := h.settings.GetPhone(c.Request.Context())
	if err != nil {
		h.respondError(c, "admin.settings.get_phone", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleSavePhone(c *gin.Context) {
	var input settings.PhoneInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c)
		return
	}
	record, err := h.settings.SavePhone(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, "admin.settings.save_phone", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleGetEmail(c *gin.Context) {
	record, err := h.settings.GetEmail(c.Request.Context())
	if err != nil {
		h.respondError(c, "admin.settings.get_email", err)
		return
	}
	c.JSON(http.StatusOK, record.Masked())
}

func (h *httpHandler) handleSaveEmail(c *gin.Context) {
	var input settings.EmailInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c)
		return
	}
	record, err := h.settings.SaveEmail(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, "admin.settings.save_email", err)
		return
	}
	c.JSON(http.StatusOK, record.Masked())
}

type testEmailPayload struct {
	Recipient string `json:"recipient"`
}

func (h *httpHandler) handleTestEmail(c *gin.Context) {
	var payload testEmailPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			badRequest(c)
			return
		}
	}
	receipt, err := h.email.SendTest(c.Request.Context(), payload.Recipient)
	if err != nil {
		h.respondError(c, "admin.settings.test_email", err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *httpHandler) handleGetTelegram(c *gin.Context) {
	record, err := h.settings.GetTelegram(c.Request.Context())
	if err != nil {
		h.respondError(c, "admin.settings.get_telegram", err)
		return
	}
	c.JSON(http.StatusOK, record.Masked())
}

func (h *httpHandler) handleSaveTelegram(c *gin.Context) {
	var input settings.TelegramInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c)
		return
	}
	record, err := h.settings.SaveTelegram(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, "admin.settings.save_telegram", err)
		return
	}
	c.JSON(http.StatusOK, record.Masked())
}

func (h *httpHandler) handleTestTelegram(c *gin.Context) {
	report, err := h.telegram.Dispatch(c.Request.Context(), notify.TestEvent())
	if err != nil {
		h.respondError(c, "admin.settings.test_telegram", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) handleListChats(c *gin.Context) {
	chats, err := h.settings.ListChats(c.Request.Context())
	if err != nil {
		h.respondError(c, "admin.settings.list_chats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *httpHandler) handleCreateChat(c *gin.Context) {
	var input settings.ChatInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c)
		return
	}
	chat, err := h.settings.CreateChat(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, "admin.settings.create_chat", err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (h *httpHandler) handleUpdateChat(c *gin.Context) {
	var input settings.ChatInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c)
		return
	}
	chat, err := h.settings.UpdateChat(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.respondError(c, "admin.settings.update_chat", err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h *httpHandler) handleDeleteChat(c *gin.Context) {
	if err := h.settings.DeleteChat(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "admin.settings.delete_chat", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetImap(c *gin.Context) {
	record, err := h.settings.GetImap(c.Request.Context())
	if err != nil {
		h.respondError(c, "admin.settings.get_imap", err)
		return
	}
	c.JSON(http.StatusOK, record.Masked())
}

func (h *httpHandler) handleSaveImap(c *gin.Context) {
	var input settings.ImapInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c)
		return
	}
	record, err := h.settings.SaveImap(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, "admin.settings.save_imap", err)
		return
	}
	c.JSON(http.StatusOK, record.Masked())
}
