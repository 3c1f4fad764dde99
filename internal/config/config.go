package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "HEIZOEL"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "heizoel.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultCookieName        = "heizoel_session"
	defaultSessionTTLMinutes = 12 * 60
	defaultSiteName          = "Heizöl Service"
	defaultResendBaseURL     = "https://api.resend.com/"
	defaultTelegramServer    = "https://api.telegram.org"
	defaultNotifyTimeout     = 15 * time.Second
	defaultDialTimeout       = 30 * time.Second
	defaultFetchLimit        = 50
	csrfKeyLength            = 32
)

// AppConfig captures runtime configuration for the web service.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string
	LogLevel       string
	LogFormat      string

	SigningSecret string
	CookieName    string
	SessionTTL    time.Duration
	AllowSignup   bool
	SecureCookie  bool
	CSRFKey       string

	SiteName     string
	DefaultPhone string

	ResendBaseURL     string
	TelegramServerURL string
	NotifyTimeout     time.Duration

	MailboxPollInterval time.Duration
	MailboxDialTimeout  time.Duration
	MailboxFetchLimit   int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.session_ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("auth.allow_signup", false)
	configViper.SetDefault("auth.secure_cookie", true)
	configViper.SetDefault("site.name", defaultSiteName)
	configViper.SetDefault("site.default_phone", "")
	configViper.SetDefault("notify.resend_base_url", defaultResendBaseURL)
	configViper.SetDefault("notify.telegram_server_url", defaultTelegramServer)
	configViper.SetDefault("notify.http_timeout", defaultNotifyTimeout)
	configViper.SetDefault("mailbox.poll_interval", time.Duration(0))
	configViper.SetDefault("mailbox.dial_timeout", defaultDialTimeout)
	configViper.SetDefault("mailbox.fetch_limit", defaultFetchLimit)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		AllowedOrigins:      normalizeOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		LogFormat:           configViper.GetString("log.format"),
		SigningSecret:       configViper.GetString("auth.signing_secret"),
		CookieName:          configViper.GetString("auth.cookie_name"),
		SessionTTL:          time.Duration(configViper.GetInt("auth.session_ttl_minutes")) * time.Minute,
		AllowSignup:         configViper.GetBool("auth.allow_signup"),
		SecureCookie:        configViper.GetBool("auth.secure_cookie"),
		CSRFKey:             configViper.GetString("security.csrf_key"),
		SiteName:            configViper.GetString("site.name"),
		DefaultPhone:        configViper.GetString("site.default_phone"),
		ResendBaseURL:       configViper.GetString("notify.resend_base_url"),
		TelegramServerURL:   configViper.GetString("notify.telegram_server_url"),
		NotifyTimeout:       configViper.GetDuration("notify.http_timeout"),
		MailboxPollInterval: configViper.GetDuration("mailbox.poll_interval"),
		MailboxDialTimeout:  configViper.GetDuration("mailbox.dial_timeout"),
		MailboxFetchLimit:   configViper.GetInt("mailbox.fetch_limit"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl_minutes must be positive")
	}
	if c.CSRFKey != "" && len(c.CSRFKey) != csrfKeyLength {
		return fmt.Errorf("security.csrf_key must be exactly %d bytes, got %d", csrfKeyLength, len(c.CSRFKey))
	}
	if c.MailboxFetchLimit <= 0 {
		return fmt.Errorf("mailbox.fetch_limit must be positive")
	}
	if c.MailboxPollInterval < 0 {
		return fmt.Errorf("mailbox.poll_interval must not be negative")
	}
	return nil
}

func normalizeOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
