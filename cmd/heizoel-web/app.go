package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/auth"
	"github.com/MarcoPoloResearchLab/heizoel/internal/config"
	"github.com/MarcoPoloResearchLab/heizoel/internal/database"
	"github.com/MarcoPoloResearchLab/heizoel/internal/events"
	"github.com/MarcoPoloResearchLab/heizoel/internal/ids"
	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/logging"
	"github.com/MarcoPoloResearchLab/heizoel/internal/mailbox"
	"github.com/MarcoPoloResearchLab/heizoel/internal/notify"
	"github.com/MarcoPoloResearchLab/heizoel/internal/server"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/MarcoPoloResearchLab/heizoel/internal/site"
	"github.com/MarcoPoloResearchLab/heizoel/internal/users"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// application holds every wired service of one process.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	sqlDB     *sql.DB
	bus       *events.Bus
	inquiries *inquiries.Service
	settings  *settings.Service
	mailbox   *mailbox.Service
	accounts  *users.Service
	sessions  *auth.SessionManager
	email     *notify.EmailDispatcher
	telegram  *notify.TelegramDispatcher
	trigger   *notify.Trigger
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	app := &application{config: appConfig, logger: logger, sqlDB: sqlDB}
	app.bus = events.NewBus(events.BusConfig{Logger: logger.Named("events")})

	app.inquiries, err = inquiries.NewService(inquiries.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: ids.NewUUIDProvider(),
		Publisher:  app.bus,
		Logger:     logger.Named("inquiries"),
	})
	if err != nil {
		return nil, app.closeWith(err)
	}

	app.settings, err = settings.NewService(settings.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: ids.NewUUIDProvider(),
		Publisher:  app.bus,
		Logger:     logger.Named("settings"),
	})
	if err != nil {
		return nil, app.closeWith(err)
	}

	app.mailbox, err = mailbox.NewService(mailbox.ServiceConfig{
		Database: db,
		Settings: app.settings,
		Source: &mailbox.IMAPSource{
			DialTimeout: appConfig.MailboxDialTimeout,
			Logger:      logger.Named("imap"),
		},
		FetchLimit: appConfig.MailboxFetchLimit,
		Clock:      time.Now,
		IDProvider: ids.NewUUIDProvider(),
		Publisher:  app.bus,
		Logger:     logger.Named("mailbox"),
	})
	if err != nil {
		return nil, app.closeWith(err)
	}

	app.accounts, err = users.NewService(users.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: ids.NewUUIDProvider(),
		Logger:     logger.Named("users"),
	})
	if err != nil {
		return nil, app.closeWith(err)
	}

	app.sessions, err = auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "heizoel-web",
		CookieName:    appConfig.CookieName,
		TTL:           appConfig.SessionTTL,
		SecureCookie:  appConfig.SecureCookie,
	})
	if err != nil {
		return nil, app.closeWith(err)
	}

	httpClient := &http.Client{Timeout: appConfig.NotifyTimeout}
	app.email, err = notify.NewEmailDispatcher(notify.EmailDispatcherConfig{
		Settings:   app.settings,
		BaseURL:    appConfig.ResendBaseURL,
		HTTPClient: httpClient,
		SiteName:   appConfig.SiteName,
		Logger:     logger.Named("email"),
	})
	if err != nil {
		return nil, app.closeWith(err)
	}

	app.telegram, err = notify.NewTelegramDispatcher(notify.TelegramDispatcherConfig{
		Settings:   app.settings,
		ServerURL:  appConfig.TelegramServerURL,
		HTTPClient: httpClient,
		NewSender:  notify.BotSenderFactory(appConfig.TelegramServerURL, httpClient),
		SiteName:   appConfig.SiteName,
		Logger:     logger.Named("telegram"),
	})
	if err != nil {
		return nil, app.closeWith(err)
	}

	app.trigger, err = notify.NewTrigger(notify.TriggerConfig{
		Subscriber: app.bus,
		Inquiries:  app.inquiries,
		Email:      app.email,
		Telegram:   app.telegram,
		Logger:     logger.Named("trigger"),
	})
	if err != nil {
		return nil, app.closeWith(err)
	}

	return app, nil
}

func (a *application) closeWith(err error) error {
	return errors.Join(err, a.close())
}

func (a *application) close() error {
	_ = a.logger.Sync()
	return a.sqlDB.Close()
}

// csrfKey returns the configured key or a random one. A random key invalidates
// open forms on restart.
func (a *application) csrfKey() ([]byte, error) {
	if a.config.CSRFKey != "" {
		return []byte(a.config.CSRFKey), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	a.logger.Warn("security.csrf_key not set, using a per-process key")
	return key, nil
}

func runServer(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close() //nolint:errcheck

	renderer, err := site.NewRenderer(app.config.SiteName)
	if err != nil {
		return err
	}
	csrfKey, err := app.csrfKey()
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Inquiries:      app.inquiries,
		Settings:       app.settings,
		Mailbox:        app.mailbox,
		Accounts:       app.accounts,
		Sessions:       app.sessions,
		Email:          app.email,
		Telegram:       app.telegram,
		Notifier:       app.trigger,
		Events:         app.bus,
		Renderer:       renderer,
		AllowedOrigins: app.config.AllowedOrigins,
		CSRFKey:        csrfKey,
		SecureCookies:  app.config.SecureCookie,
		AllowSignup:    app.config.AllowSignup,
		DefaultPhone:   app.config.DefaultPhone,
		Logger:         app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	triggerDone := app.trigger.Start(signalCtx)

	var workers sync.WaitGroup
	poller := mailbox.NewPoller(app.mailbox, app.config.MailboxPollInterval, app.logger.Named("poller"))
	workers.Add(1)
	go func() {
		defer workers.Done()
		poller.Run(signalCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		runErr = httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		stop()
		runErr = err
	}

	<-triggerDone
	workers.Wait()
	app.logger.Info("server stopped")
	return runErr
}
