package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// TelegramSettingsSource loads the bot settings and the recipients of a category.
type TelegramSettingsSource interface {
	GetTelegram(ctx context.Context) (settings.TelegramSettings, error)
	ActiveChatsFor(ctx context.Context, category settings.Category) ([]settings.TelegramChat, error)
}

// Sender posts one message to one chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// SenderFactory builds a Sender for a bot token.
type SenderFactory func(token string) (Sender, error)

// TelegramDispatcherConfig wires a TelegramDispatcher.
type TelegramDispatcherConfig struct {
	Settings   TelegramSettingsSource
	ServerURL  string
	HTTPClient *http.Client
	NewSender  SenderFactory
	SiteName   string
	Logger     *zap.Logger
}

// TelegramDispatcher fans a notification out to every subscribed chat.
type TelegramDispatcher struct {
	settings  TelegramSettingsSource
	newSender SenderFactory
	siteName  string
	logger    *zap.Logger
}

// RecipientResult is the outcome for one chat.
type RecipientResult struct {
	ChatID   string `json:"chat_id"`
	ChatName string `json:"chat_name,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes a dispatch. One failing chat never prevents delivery to the others.
type Report struct {
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Results    []RecipientResult `json:"results"`
}

// NewTelegramDispatcher validates the configuration and constructs a TelegramDispatcher.
func NewTelegramDispatcher(cfg TelegramDispatcherConfig) (*TelegramDispatcher, error) {
	if cfg.Settings == nil {
		return nil, errors.New("notify: telegram settings source required")
	}
	newSender := cfg.NewSender
	if newSender == nil {
		newSender = BotSenderFactory(cfg.ServerURL, cfg.HTTPClient)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramDispatcher{
		settings:  cfg.Settings,
		newSender: newSender,
		siteName:  cfg.SiteName,
		logger:    logger,
	}, nil
}

// Dispatch sends the formatted event to every active chat subscribed to its category.
func (d *TelegramDispatcher) Dispatch(ctx context.Context, event Event) (Report, error) {
	if !event.valid() {
		return Report{}, fmt.Errorf("notify: unsupported telegram event %q", event.Kind)
	}
	config, err := d.settings.GetTelegram(ctx)
	if errors.Is(err, settings.ErrNotFound) {
		return Report{}, ErrTelegramNotConfigured
	}
	if err != nil {
		return Report{}, err
	}
	if !config.Usable() {
		return Report{}, ErrTelegramNotConfigured
	}

	chats, err := d.settings.ActiveChatsFor(ctx, event.Category())
	if err != nil {
		return Report{}, err
	}
	report := Report{Results: make([]RecipientResult, 0, len(chats))}
	if len(chats) == 0 {
		return report, nil
	}

	sender, err := d.newSender(config.BotToken)
	if err != nil {
		d.logger.Error("telegram sender construction failed", zap.Error(err))
		return Report{}, fmt.Errorf("notify: telegram sender: %w", err)
	}

	text := FormatTelegram(event, d.siteName)
	for _, chat := range chats {
		result := RecipientResult{ChatID: chat.ChatID, ChatName: chat.ChatName}
		if sendErr := sender.SendMessage(ctx, chat.ChatID, text); sendErr != nil {
			result.Error = sendErr.Error()
			report.Failed++
			d.logger.Warn("telegram delivery failed",
				zap.String("chat_id", chat.ChatID),
				zap.String("event", string(event.Kind)),
				zap.String("record_id", event.RecordID()),
				zap.Error(sendErr))
		} else {
			result.Success = true
			report.Successful++
		}
		report.Results = append(report.Results, result)
	}

	d.logger.Info("telegram dispatch finished",
		zap.String("event", string(event.Kind)),
		zap.Int("successful", report.Successful),
		zap.Int("failed", report.Failed))
	return report, nil
}

type botSender struct {
	client *bot.Bot
}

// BotSenderFactory returns a SenderFactory backed by the Telegram Bot API.
// An empty serverURL targets the public API.
func BotSenderFactory(serverURL string, httpClient *http.Client) SenderFactory {
	return func(token string) (Sender, error) {
		options := []bot.Option{bot.WithSkipGetMe()}
		if strings.TrimSpace(serverURL) != "" {
			options = append(options, bot.WithServerURL(strings.TrimRight(serverURL, "/")))
		}
		if httpClient != nil {
			options = append(options, bot.WithHTTPClient(httpClient.Timeout, httpClient))
		}
		client, err := bot.New(token, options...)
		if err != nil {
			return nil, err
		}
		return &botSender{client: client}, nil
	}
}

func (s *botSender) SendMessage(ctx context.Context, chatID, text string) error {
	_, err := s.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: bot.True(),
		},
	})
	return err
}
