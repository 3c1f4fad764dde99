package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/heizoel/internal/site"
	"github.com/MarcoPoloResearchLab/heizoel/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminPath = "/admin"

type credentialsPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// signupOpen reports whether new admin accounts may register.
func (h *httpHandler) signupOpen(ctx context.Context) bool {
	if h.allowSignup {
		return true
	}
	count, err := h.accounts.Count(ctx)
	if err != nil {
		h.logger.Error("account count failed", zap.Error(err))
		return false
	}
	return count == 0
}

func (h *httpHandler) handleAuthPage(c *gin.Context) {
	if _, err := h.sessions.ValidateRequest(c.Request); err == nil {
		c.Redirect(http.StatusSeeOther, adminPath)
		return
	}
	h.renderAuth(c, http.StatusOK, "", "")
}

func (h *httpHandler) renderAuth(c *gin.Context, status int, message, email string) {
	c.HTML(status, site.TemplateAuth, h.view(c, site.View{
		Title:   "Anmeldung",
		Path:    authPath,
		Message: message,
		Values:  map[string]string{"email": email},
		Data:    h.signupOpen(c.Request.Context()),
	}))
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var payload credentialsPayload
	if err := c.ShouldBind(&payload); err != nil {
		h.authFailed(c, http.StatusBadRequest, "invalid_request", "Bitte geben Sie E-Mail und Passwort ein.", "")
		return
	}
	account, err := h.accounts.Authenticate(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.logger.Info("admin login rejected", zap.String("email", payload.Email))
			h.authFailed(c, http.StatusUnauthorized, "invalid_credentials", "E-Mail oder Passwort ist falsch.", payload.Email)
			return
		}
		h.logger.Error("admin login failed", zap.Error(err))
		h.authFailed(c, http.StatusInternalServerError, "internal_error", "Die Anmeldung ist gerade nicht möglich.", payload.Email)
		return
	}
	h.startSession(c, account)
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	if !h.signupOpen(c.Request.Context()) {
		h.authFailed(c, http.StatusForbidden, "signup_closed", "Die Registrierung ist geschlossen.", "")
		return
	}
	var payload credentialsPayload
	if err := c.ShouldBind(&payload); err != nil {
		h.authFailed(c, http.StatusBadRequest, "invalid_request", "Bitte geben Sie E-Mail und Passwort ein.", "")
		return
	}
	account, err := h.accounts.Create(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidEmail):
			h.authFailed(c, http.StatusBadRequest, "invalid_email", "Bitte geben Sie eine gültige E-Mail-Adresse ein.", payload.Email)
		case errors.Is(err, users.ErrPasswordTooShort):
			h.authFailed(c, http.StatusBadRequest, "password_too_short", "Das Passwort muss mindestens 12 Zeichen lang sein.", payload.Email)
		case errors.Is(err, users.ErrDuplicateEmail):
			h.authFailed(c, http.StatusConflict, "duplicate_email", "Für diese E-Mail-Adresse besteht bereits ein Konto.", payload.Email)
		default:
			h.authFailed(c, http.StatusInternalServerError, "internal_error", "Die Registrierung ist gerade nicht möglich.", payload.Email)
		}
		return
	}
	h.startSession(c, account)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	h.sessions.ClearCookie(c.Writer)
	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, authPath)
}

func (h *httpHandler) startSession(c *gin.Context, account users.Account) {
	token, expiresAt, err := h.sessions.Issue(account.ID, account.Email)
	if err != nil {
		h.logger.Error("session issue failed", zap.String("account_id", account.ID), zap.Error(err))
		h.authFailed(c, http.StatusInternalServerError, "session_issue_failed", "Die Anmeldung ist gerade nicht möglich.", account.Email)
		return
	}
	h.sessions.SetCookie(c.Writer, token, expiresAt)
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"account_id": account.ID, "email": account.Email, "expires_at": expiresAt})
		return
	}
	c.Redirect(http.StatusSeeOther, adminPath)
}

func (h *httpHandler) authFailed(c *gin.Context, status int, code, message, email string) {
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": code})
		return
	}
	h.renderAuth(c, status, message, email)
}

func (h *httpHandler) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"account_id": c.GetString(accountIDContextKey),
		"email":      c.GetString(accountEmailContextKey),
	})
}
