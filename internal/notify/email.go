package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

const defaultHTTPTimeout = 15 * time.Second

// EmailSettingsSource loads the stored email settings.
type EmailSettingsSource interface {
	GetEmail(ctx context.Context) (settings.EmailSettings, error)
}

// EmailDispatcherConfig wires an EmailDispatcher.
type EmailDispatcherConfig struct {
	Settings   EmailSettingsSource
	BaseURL    string
	HTTPClient *http.Client
	SiteName   string
	Logger     *zap.Logger
}

// EmailDispatcher sends confirmation mails through Resend.
type EmailDispatcher struct {
	settings   EmailSettingsSource
	baseURL    *url.URL
	httpClient *http.Client
	siteName   string
	logger     *zap.Logger
}

// EmailReceipt identifies an accepted message.
type EmailReceipt struct {
	MessageID string   `json:"message_id"`
	To        []string `json:"to"`
}

// NewEmailDispatcher validates the configuration and constructs an EmailDispatcher.
func NewEmailDispatcher(cfg EmailDispatcherConfig) (*EmailDispatcher, error) {
	if cfg.Settings == nil {
		return nil, errors.New("notify: email settings source required")
	}
	var baseURL *url.URL
	if strings.TrimSpace(cfg.BaseURL) != "" {
		raw := cfg.BaseURL
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("notify: invalid resend base url: %w", err)
		}
		baseURL = parsed
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailDispatcher{
		settings:   cfg.Settings,
		baseURL:    baseURL,
		httpClient: httpClient,
		siteName:   cfg.SiteName,
		logger:     logger,
	}, nil
}

// Send mails the submitter a confirmation and copies the business address when configured.
func (d *EmailDispatcher) Send(ctx context.Context, event Event) (EmailReceipt, error) {
	if !event.valid() || event.Kind == EventTest {
		return EmailReceipt{}, fmt.Errorf("notify: unsupported email event %q", event.Kind)
	}
	config, err := d.loadSettings(ctx)
	if err != nil {
		return EmailReceipt{}, err
	}
	to := []string{event.submitterEmail()}
	var bcc []string
	if config.NotifyEmail != "" && !strings.EqualFold(config.NotifyEmail, to[0]) {
		bcc = []string{config.NotifyEmail}
	}
	return d.deliver(ctx, config, event, to, bcc)
}

// SendTest mails a fixed test message to recipient, or to the configured business address when empty.
func (d *EmailDispatcher) SendTest(ctx context.Context, recipient string) (EmailReceipt, error) {
	config, err := d.loadSettings(ctx)
	if err != nil {
		return EmailReceipt{}, err
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		recipient = config.NotifyEmail
	}
	if recipient == "" {
		recipient = config.SenderEmail
	}
	if recipient == "" {
		return EmailReceipt{}, ErrNoRecipient
	}
	return d.deliver(ctx, config, TestEvent(), []string{recipient}, nil)
}

func (d *EmailDispatcher) loadSettings(ctx context.Context) (settings.EmailSettings, error) {
	config, err := d.settings.GetEmail(ctx)
	if errors.Is(err, settings.ErrNotFound) {
		return settings.EmailSettings{}, ErrEmailNotConfigured
	}
	if err != nil {
		return settings.EmailSettings{}, err
	}
	if !config.Complete() {
		return settings.EmailSettings{}, ErrEmailNotConfigured
	}
	return config, nil
}

func (d *EmailDispatcher) deliver(ctx context.Context, config settings.EmailSettings, event Event, to, bcc []string) (EmailReceipt, error) {
	subject, html, err := renderEmail(event, d.siteName)
	if err != nil {
		return EmailReceipt{}, err
	}

	client := resend.NewCustomClient(d.httpClient, config.APIKey)
	if d.baseURL != nil {
		client.BaseURL = d.baseURL
	}
	params := &resend.SendEmailRequest{
		From:    formatSender(config),
		To:      to,
		Bcc:     bcc,
		Subject: subject,
		Html:    html,
	}
	if config.NotifyEmail != "" {
		params.ReplyTo = config.NotifyEmail
	}

	sent, err := client.Emails.SendWithContext(ctx, params)
	if err != nil {
		d.logger.Error("email delivery failed",
			zap.String("event", string(event.Kind)),
			zap.String("record_id", event.RecordID()),
			zap.Error(err))
		return EmailReceipt{}, fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}
	d.logger.Info("email sent",
		zap.String("event", string(event.Kind)),
		zap.String("record_id", event.RecordID()),
		zap.String("message_id", sent.Id))
	return EmailReceipt{MessageID: sent.Id, To: to}, nil
}

func formatSender(config settings.EmailSettings) string {
	name := strings.TrimSpace(config.SenderName)
	if name == "" {
		return config.SenderEmail
	}
	return fmt.Sprintf("%s <%s>", name, config.SenderEmail)
}
