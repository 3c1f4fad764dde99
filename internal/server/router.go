package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/auth"
	"github.com/MarcoPoloResearchLab/heizoel/internal/events"
	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/logging"
	"github.com/MarcoPoloResearchLab/heizoel/internal/mailbox"
	"github.com/MarcoPoloResearchLab/heizoel/internal/notify"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/MarcoPoloResearchLab/heizoel/internal/site"
	"github.com/MarcoPoloResearchLab/heizoel/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	accountIDContextKey      = "heizoel_account_id"
	accountEmailContextKey   = "heizoel_account_email"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingInquiries = errors.New("inquiry service dependency required")
	errMissingSettings  = errors.New("settings service dependency required")
	errMissingMailbox   = errors.New("mailbox service dependency required")
	errMissingAccounts  = errors.New("account service dependency required")
	errMissingSessions  = errors.New("session manager dependency required")
	errMissingNotifiers = errors.New("email, telegram and notifier dependencies required")
	errMissingEvents    = errors.New("event subscriber dependency required")
	errMissingRenderer  = errors.New("site renderer dependency required")
	errInvalidCSRFKey   = errors.New("csrf key must be 32 bytes")
)

// EmailNotifier sends confirmation and test mails.
type EmailNotifier interface {
	Send(ctx context.Context, event notify.Event) (notify.EmailReceipt, error)
	SendTest(ctx context.Context, recipient string) (notify.EmailReceipt, error)
}

// TelegramNotifier fans a notification out to the subscribed chats.
type TelegramNotifier interface {
	Dispatch(ctx context.Context, event notify.Event) (notify.Report, error)
}

// Notifier runs both notification channels for one record.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event) notify.Outcome
}

// EventSubscriber hands out change subscriptions for the admin stream.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topics ...events.Topic) (<-chan events.Change, func())
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Inquiries         *inquiries.Service
	Settings          *settings.Service
	Mailbox           *mailbox.Service
	Accounts          *users.Service
	Sessions          *auth.SessionManager
	Email             EmailNotifier
	Telegram          TelegramNotifier
	Notifier          Notifier
	Events            EventSubscriber
	Renderer          *site.Renderer
	AllowedOrigins    []string
	CSRFKey           []byte
	SecureCookies     bool
	AllowSignup       bool
	DefaultPhone      string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the public site, the auth endpoints,
// the admin page and the admin JSON API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Inquiries == nil:
		return nil, errMissingInquiries
	case deps.Settings == nil:
		return nil, errMissingSettings
	case deps.Mailbox == nil:
		return nil, errMissingMailbox
	case deps.Accounts == nil:
		return nil, errMissingAccounts
	case deps.Sessions == nil:
		return nil, errMissingSessions
	case deps.Email == nil || deps.Telegram == nil || deps.Notifier == nil:
		return nil, errMissingNotifiers
	case deps.Events == nil:
		return nil, errMissingEvents
	case deps.Renderer == nil:
		return nil, errMissingRenderer
	case len(deps.CSRFKey) != 32:
		return nil, errInvalidCSRFKey
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	handler := &httpHandler{
		inquiries:   deps.Inquiries,
		settings:    deps.Settings,
		mailbox:     deps.Mailbox,
		accounts:    deps.Accounts,
		sessions:    deps.Sessions,
		email:       deps.Email,
		telegram:    deps.Telegram,
		notifier:    deps.Notifier,
		events:      deps.Events,
		renderer:    deps.Renderer,
		allowSignup: deps.AllowSignup,
		phone:       strings.TrimSpace(deps.DefaultPhone),
		heartbeat:   heartbeat,
		logger:      logger,
	}

	router := gin.New()
	router.HTMLRender = deps.Renderer
	router.Use(gin.Recovery())
	router.Use(logging.RequestID())
	router.Use(logging.AccessLog(logger))

	html := router.Group("/")
	html.Use(csrfMiddleware(deps.CSRFKey, deps.SecureCookies, logger))
	for _, page := range site.Pages() {
		html.GET(page.Path, handler.handlePage(page))
	}
	html.GET("/kontakt", handler.handleContactForm)
	html.POST("/kontakt", handler.handleContactSubmit)
	html.GET("/kontakt/danke", handler.handleConfirmation(contactConfirmation))
	html.GET("/anfrage", handler.handleOrderForm)
	html.POST("/anfrage", handler.handleOrderSubmit)
	html.GET("/anfrage/danke", handler.handleConfirmation(orderConfirmation))
	html.GET("/auth", handler.handleAuthPage)
	html.POST("/auth/login", handler.handleLogin)
	html.POST("/auth/logout", handler.handleLogout)
	html.POST("/auth/signup", handler.handleSignup)

	adminPages := html.Group("/admin")
	adminPages.Use(handler.requireSession(false))
	adminPages.GET("", handler.handleAdminPage)

	api := router.Group("/admin/api")
	api.Use(corsMiddleware(deps.AllowedOrigins))
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.Use(handler.requireSession(true))
	handler.registerAdminAPI(api)

	router.NoRoute(handler.handleNotFound)

	return router, nil
}

type httpHandler struct {
	inquiries   *inquiries.Service
	settings    *settings.Service
	mailbox     *mailbox.Service
	accounts    *users.Service
	sessions    *auth.SessionManager
	email       EmailNotifier
	telegram    TelegramNotifier
	notifier    Notifier
	events      EventSubscriber
	renderer    *site.Renderer
	allowSignup bool
	phone       string
	heartbeat   time.Duration
	logger      *zap.Logger
}

func (h *httpHandler) registerAdminAPI(api *gin.RouterGroup) {
	api.GET("/session", h.handleSession)
	api.GET("/dashboard", h.handleDashboard)
	api.GET("/events", h.handleEventStream)

	api.GET("/contacts", h.handleListContacts)
	api.GET("/contacts/:id", h.handleGetContact)
	api.DELETE("/contacts/:id", h.handleDeleteContact)
	api.GET("/contacts/:id/notes", h.handleListContactNotes)
	api.POST("/contacts/:id/notes", h.handleAddContactNote)
	api.POST("/contacts/:id/notify", h.handleResendContact)

	api.GET("/orders", h.handleListOrders)
	api.GET("/orders/:id", h.handleGetOrder)
	api.DELETE("/orders/:id", h.handleDeleteOrder)
	api.PATCH("/orders/:id/status", h.handleUpdateOrderStatus)
	api.GET("/orders/:id/notes", h.handleListOrderNotes)
	api.POST("/orders/:id/notes", h.handleAddOrderNote)
	api.POST("/orders/:id/notify", h.handleResendOrder)

	api.GET("/settings/phone", h.handleGetPhone)
	api.PUT("/settings/phone", h.handleSavePhone)
	api.GET("/settings/email", h.handleGetEmail)
	api.PUT("/settings/email", h.handleSaveEmail)
	api.POST("/settings/email/test", h.handleTestEmail)
	api.GET("/settings/telegram", h.handleGetTelegram)
	api.PUT("/settings/telegram", h.handleSaveTelegram)
	api.POST("/settings/telegram/test", h.handleTestTelegram)
	api.GET("/settings/telegram/chats", h.handleListChats)
	api.POST("/settings/telegram/chats", h.handleCreateChat)
	api.PUT("/settings/telegram/chats/:id", h.handleUpdateChat)
	api.DELETE("/settings/telegram/chats/:id", h.handleDeleteChat)
	api.GET("/settings/imap", h.handleGetImap)
	api.PUT("/settings/imap", h.handleSaveImap)

	api.GET("/mailbox", h.handleListMailbox)
	api.POST("/mailbox/fetch", h.handleFetchMailbox)
	api.GET("/mailbox/:id", h.handleGetMailbox)
	api.PATCH("/mailbox/:id", h.handleSetMailboxRead)
}
