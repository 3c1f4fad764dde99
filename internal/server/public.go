package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/MarcoPoloResearchLab/heizoel/internal/site"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

const (
	contactConfirmation = "Ihre Nachricht ist bei uns eingegangen. Wir melden uns in Kürze bei Ihnen."
	orderConfirmation   = "Ihre Anfrage ist bei uns eingegangen. Sie erhalten in Kürze ein persönliches Angebot."

	messageCheckInput  = "Bitte prüfen Sie Ihre Eingaben."
	messageUnreadable  = "Ihre Eingaben konnten nicht gelesen werden. Bitte versuchen Sie es erneut."
	messageStoreFailed = "Ihre Anfrage konnte gerade nicht gespeichert werden. Bitte versuchen Sie es später erneut oder rufen Sie uns an."
)

// view fills the per-request parts of a template view.
func (h *httpHandler) view(c *gin.Context, view site.View) site.View {
	view.CSRFField = csrf.TemplateField(c.Request)
	view.Phone = h.headerPhone(c)
	if view.Path == "" {
		view.Path = c.Request.URL.Path
	}
	return view
}

func (h *httpHandler) headerPhone(c *gin.Context) site.Phone {
	if phone, ok := h.settings.ActivePhone(c.Request.Context()); ok {
		return site.NewPhone(phone.PhoneNumber, phone.Label(), phone.TelLink)
	}
	if h.phone == "" {
		return site.Phone{}
	}
	return site.NewPhone(h.phone, h.phone, settings.TelLink(h.phone))
}

func (h *httpHandler) handlePage(page site.Page) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, site.TemplatePage, h.view(c, h.renderer.PageView(page)))
	}
}

func (h *httpHandler) handleNotFound(c *gin.Context) {
	if wantsJSON(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.HTML(http.StatusNotFound, site.TemplateNotFound, h.view(c, site.View{Title: "Seite nicht gefunden"}))
}

func (h *httpHandler) handleConfirmation(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, site.TemplateConfirm, h.view(c, site.View{Title: "Vielen Dank", Message: message}))
	}
}

func (h *httpHandler) handleContactForm(c *gin.Context) {
	c.HTML(http.StatusOK, site.TemplateContact, h.view(c, site.View{Title: "Kontakt"}))
}

func (h *httpHandler) handleOrderForm(c *gin.Context) {
	values := map[string]string{"product": c.Query("produkt")}
	c.HTML(http.StatusOK, site.TemplateOrder, h.view(c, site.View{Title: "Angebot anfordern", Values: values}))
}

func (h *httpHandler) handleContactSubmit(c *gin.Context) {
	var submission inquiries.ContactSubmission
	if err := c.ShouldBind(&submission); err != nil {
		h.rejectSubmission(c, site.TemplateContact, "Kontakt", err)
		return
	}
	record, err := h.inquiries.SubmitContact(c.Request.Context(), submission)
	if err != nil {
		h.failSubmission(c, site.TemplateContact, "Kontakt", "contact.submit", err)
		return
	}
	if wantsJSON(c) {
		c.JSON(http.StatusCreated, gin.H{"id": record.ID})
		return
	}
	c.Redirect(http.StatusSeeOther, "/kontakt/danke")
}

func (h *httpHandler) handleOrderSubmit(c *gin.Context) {
	var submission inquiries.OrderSubmission
	if err := c.ShouldBind(&submission); err != nil {
		h.rejectSubmission(c, site.TemplateOrder, "Angebot anfordern", err)
		return
	}
	record, err := h.inquiries.SubmitOrder(c.Request.Context(), submission)
	if err != nil {
		h.failSubmission(c, site.TemplateOrder, "Angebot anfordern", "order.submit", err)
		return
	}
	if wantsJSON(c) {
		c.JSON(http.StatusCreated, gin.H{"id": record.ID, "status": record.Status})
		return
	}
	c.Redirect(http.StatusSeeOther, "/anfrage/danke")
}

// rejectSubmission answers a payload that could not be decoded at all.
func (h *httpHandler) rejectSubmission(c *gin.Context, template, title string, err error) {
	h.logger.Info("form payload rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
	if wantsJSON(c) {
		badRequest(c)
		return
	}
	c.HTML(http.StatusUnprocessableEntity, template, h.view(c, site.View{
		Title:   title,
		Message: messageUnreadable,
		Values:  submittedValues(c),
	}))
}

func (h *httpHandler) failSubmission(c *gin.Context, template, title, operation string, err error) {
	if wantsJSON(c) {
		h.respondError(c, operation, err)
		return
	}
	var validation *inquiries.ValidationError
	if errors.As(err, &validation) {
		c.HTML(http.StatusUnprocessableEntity, template, h.view(c, site.View{
			Title:   title,
			Message: messageCheckInput,
			Values:  submittedValues(c),
			Errors:  validation.Fields,
		}))
		return
	}
	h.logger.Error("form submission failed", zap.String("operation", operation), zap.Error(err))
	c.HTML(http.StatusInternalServerError, template, h.view(c, site.View{
		Title:   title,
		Message: messageStoreFailed,
		Values:  submittedValues(c),
	}))
}

func submittedValues(c *gin.Context) map[string]string {
	values := make(map[string]string)
	if c.Request.PostForm == nil {
		_ = c.Request.ParseForm()
	}
	for key, entries := range c.Request.PostForm {
		if key == "gorilla.csrf.Token" || len(entries) == 0 {
			continue
		}
		values[key] = entries[0]
	}
	return values
}
