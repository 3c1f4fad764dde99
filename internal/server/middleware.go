package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

const authPath = "/auth"

// csrfMiddleware protects the HTML form posts. JSON requests are exempt: browsers cannot send
// them cross-site without a CORS preflight.
func csrfMiddleware(key []byte, secure bool, logger *zap.Logger) gin.HandlerFunc {
	protect := csrf.Protect(
		key,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("csrf validation failed",
				zap.String("path", r.URL.Path),
				zap.Error(csrf.FailureReason(r)),
			)
			http.Error(w, "Das Formular ist abgelaufen. Bitte laden Sie die Seite neu.", http.StatusForbidden)
		})),
	)

	return func(c *gin.Context) {
		if isJSONRequest(c.Request) {
			c.Next()
			return
		}
		request := c.Request
		if !secure {
			request = csrf.PlaintextHTTPRequest(request)
		}
		passed := false
		protect(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, request)
		if !passed {
			c.Abort()
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			allowed = append(allowed, trimmed)
		}
	}
	if len(allowed) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowed,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// requireSession admits requests carrying a valid admin session cookie. API requests get a
// 401 body, page requests are redirected to the login page.
func (h *httpHandler) requireSession(api bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := h.sessions.ValidateRequest(c.Request)
		if err != nil {
			h.logSessionFailure(c, err)
			if api {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.Redirect(http.StatusSeeOther, authPath)
			c.Abort()
			return
		}
		c.Set(accountIDContextKey, claims.AccountID)
		c.Set(accountEmailContextKey, claims.Email)
		c.Next()
	}
}

func (h *httpHandler) logSessionFailure(c *gin.Context, err error) {
	fields := []zap.Field{zap.String("path", c.Request.URL.Path), zap.Error(err)}
	switch {
	case errors.Is(err, auth.ErrMissingSessionToken):
		h.logger.Debug("session missing", fields...)
	case errors.Is(err, auth.ErrExpiredSessionToken):
		h.logger.Info("session validation failed", fields...)
	default:
		h.logger.Warn("session validation failed", fields...)
	}
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func wantsJSON(c *gin.Context) bool {
	return isJSONRequest(c.Request) || strings.Contains(c.GetHeader("Accept"), "application/json")
}
