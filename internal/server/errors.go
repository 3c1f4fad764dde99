package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/mailbox"
	"github.com/MarcoPoloResearchLab/heizoel/internal/notify"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/MarcoPoloResearchLab/heizoel/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type codedError interface {
	Code() string
}

// classify maps a service failure to an HTTP status and a short error name.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, inquiries.ErrNotFound),
		errors.Is(err, settings.ErrNotFound),
		errors.Is(err, mailbox.ErrNotFound),
		errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, inquiries.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, inquiries.ErrInvalidStatus),
		errors.Is(err, inquiries.ErrEmptyNote),
		errors.Is(err, settings.ErrInvalidInput),
		errors.Is(err, notify.ErrNoRecipient):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, notify.ErrEmailNotConfigured),
		errors.Is(err, notify.ErrTelegramNotConfigured),
		errors.Is(err, mailbox.ErrMailboxNotConfigured):
		return http.StatusBadRequest, "not_configured"
	case errors.Is(err, notify.ErrEmailDelivery),
		errors.Is(err, mailbox.ErrConnection):
		return http.StatusBadGateway, "upstream_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondError writes the JSON failure body and logs the failure once.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	status, short := classify(err)
	body := gin.H{"error": short}
	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	var validation *inquiries.ValidationError
	if errors.As(err, &validation) {
		body["fields"] = validation.Fields
	}

	fields := []zap.Field{zap.String("operation", operation), zap.Int("status", status), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Info("request rejected", fields...)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
}
