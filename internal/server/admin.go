package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/notify"
	"github.com/MarcoPoloResearchLab/heizoel/internal/site"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const recentRowsOnDashboard = 10

type dashboardPayload struct {
	Counts       inquiries.Counts           `json:"counts"`
	Statuses     []inquiries.OrderStatus    `json:"-"`
	UnreadEmails int64                      `json:"unread_emails"`
	ActiveChats  int64                      `json:"active_telegram_chats"`
	Orders       []inquiries.Order          `json:"-"`
	Contacts     []inquiries.ContactRequest `json:"-"`
}

func (h *httpHandler) dashboard(ctx context.Context) (dashboardPayload, error) {
	counts, err := h.inquiries.Counts(ctx)
	if err != nil {
		return dashboardPayload{}, err
	}
	unread, err := h.mailbox.CountUnread(ctx)
	if err != nil {
		return dashboardPayload{}, err
	}
	chats, err := h.settings.CountActiveChats(ctx)
	if err != nil {
		return dashboardPayload{}, err
	}
	return dashboardPayload{
		Counts:       counts,
		Statuses:     inquiries.OrderStatuses(),
		UnreadEmails: unread,
		ActiveChats:  chats,
	}, nil
}

func (h *httpHandler) handleDashboard(c *gin.Context) {
	payload, err := h.dashboard(c.Request.Context())
	if err != nil {
		h.respondError(c, "admin.dashboard", err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleAdminPage(c *gin.Context) {
	ctx := c.Request.Context()
	payload, err := h.dashboard(ctx)
	if err == nil {
		payload.Orders, err = h.inquiries.ListOrders(ctx, inquiries.OrderFilter{})
	}
	if err == nil {
		payload.Contacts, err = h.inquiries.ListContactRequests(ctx, inquiries.ContactFilter{})
	}
	if err != nil {
		h.logger.Error("admin page load failed", zap.Error(err))
		c.HTML(http.StatusInternalServerError, site.TemplateAdmin, h.view(c, site.View{Title: "Verwaltung"}))
		return
	}
	payload.Orders = firstN(payload.Orders, recentRowsOnDashboard)
	payload.Contacts = firstN(payload.Contacts, recentRowsOnDashboard)
	c.HTML(http.StatusOK, site.TemplateAdmin, h.view(c, site.View{Title: "Verwaltung", Data: payload}))
}

func (h *httpHandler) handleListContacts(c *gin.Context) {
	filter := inquiries.ContactFilter{Search: c.Query("search")}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c)
			return
		}
		filter.Since = since
	}
	records, err := h.inquiries.ListContactRequests(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "admin.contacts.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": records})
}

func (h *httpHandler) handleGetContact(c *gin.Context) {
	record, err := h.inquiries.GetContactRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "admin.contacts.get", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleDeleteContact(c *gin.Context) {
	if err := h.inquiries.DeleteContactRequest(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "admin.contacts.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListContactNotes(c *gin.Context) {
	notes, err := h.inquiries.ListContactNotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "admin.contacts.notes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

type notePayload struct {
	Text string `json:"note_text"`
}

func (h *httpHandler) handleAddContactNote(c *gin.Context) {
	var payload notePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c)
		return
	}
	note, err := h.inquiries.AddContactNote(c.Request.Context(), c.Param("id"), payload.Text)
	if err != nil {
		h.respondError(c, "admin.contacts.add_note", err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *httpHandler) handleResendContact(c *gin.Context) {
	record, err := h.inquiries.GetContactRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "admin.contacts.notify", err)
		return
	}
	c.JSON(http.StatusOK, h.notifier.Notify(c.Request.Context(), notify.ContactEvent(record)))
}

func (h *httpHandler) handleListOrders(c *gin.Context) {
	filter := inquiries.OrderFilter{Search: c.Query("search")}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := inquiries.ParseOrderStatus(raw)
		if err != nil {
			badRequest(c)
			return
		}
		filter.Status = status
	}
	records, err := h.inquiries.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "admin.orders.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": records})
}

func (h *httpHandler) handleGetOrder(c *gin.Context) {
	record, err := h.inquiries.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "admin.orders.get", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleDeleteOrder(c *gin.Context) {
	if err := h.inquiries.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "admin.orders.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type statusPayload struct {
	Status string `json:"status"`
}

func (h *httpHandler) handleUpdateOrderStatus(c *gin.Context) {
	var payload statusPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c)
		return
	}
	record, err := h.inquiries.UpdateOrderStatus(c.Request.Context(), c.Param("id"), payload.Status)
	if err != nil {
		h.respondError(c, "admin.orders.update_status", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleListOrderNotes(c *gin.Context) {
	notes, err := h.inquiries.ListOrderNotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "admin.orders.notes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

func (h *httpHandler) handleAddOrderNote(c *gin.Context) {
	var payload notePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c)
		return
	}
	note, err := h.inquiries.AddOrderNote(c.Request.Context(), c.Param("id"), payload.Text)
	if err != nil {
		h.respondError(c, "admin.orders.add_note", err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *httpHandler) handleResendOrder(c *gin.Context) {
	record, err := h.inquiries.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "admin.orders.notify", err)
		return
	}
	c.JSON(http.StatusOK, h.notifier.Notify(c.Request.Context(), notify.OrderEvent(record)))
}

func firstN[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
