package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/events"
	"github.com/MarcoPoloResearchLab/heizoel/internal/ids"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound marks a settings kind or recipient that has not been stored.
	ErrNotFound = errors.New("settings: not found")
	// ErrInvalidInput marks a rejected settings payload.
	ErrInvalidInput = errors.New("settings: invalid input")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
	addressValidator     = validator.New()
)

const (
	opServiceNew     = "settings.service.new"
	opGetPhone       = "settings.get_phone"
	opSavePhone      = "settings.save_phone"
	opGetEmail       = "settings.get_email"
	opSaveEmail      = "settings.save_email"
	opGetTelegram    = "settings.get_telegram"
	opSaveTelegram   = "settings.save_telegram"
	opGetImap        = "settings.get_imap"
	opSaveImap       = "settings.save_imap"
	opListChats      = "settings.list_chats"
	opCreateChat     = "settings.create_chat"
	opUpdateChat     = "settings.update_chat"
	opDeleteChat     = "settings.delete_chat"
	opActiveChats    = "settings.active_chats"
	opCountChats     = "settings.count_active_chats"
	maskedPrefix     = "********"
	defaultImapPort  = 993
	recordIDPhone    = "phone"
	recordIDEmail    = "email"
	recordIDTelegram = "telegram"
	recordIDImap     = "imap"
)

// ServiceError attaches a stable operation.reason code to a failure.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error { return e.err }

// Code returns the operation.reason code.
func (e *ServiceError) Code() string { return e.code }

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig wires the settings service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Publisher  events.Publisher
	Logger     *zap.Logger
}

// Service stores the singleton settings kinds and the Telegram recipients.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

// PhoneInput updates the header phone number.
type PhoneInput struct {
	PhoneNumber string `json:"phone_number"`
	DisplayText string `json:"display_text"`
	TelLink     string `json:"tel_link"`
	IsActive    bool   `json:"is_active"`
}

// GetPhone returns the stored phone setting.
func (s *Service) GetPhone(ctx context.Context) (PhoneSetting, error) {
	var record PhoneSetting
	if err := s.loadSingleton(ctx, opGetPhone, &record); err != nil {
		return PhoneSetting{}, err
	}
	return record, nil
}

// ActivePhone returns the phone setting when one is stored and active.
func (s *Service) ActivePhone(ctx context.Context) (PhoneSetting, bool) {
	record, err := s.GetPhone(ctx)
	if err != nil || !record.IsActive || strings.TrimSpace(record.PhoneNumber) == "" {
		return PhoneSetting{}, false
	}
	return record, true
}

// SavePhone upserts the phone setting. An empty tel link is derived from the number.
func (s *Service) SavePhone(ctx context.Context, input PhoneInput) (PhoneSetting, error) {
	number := strings.TrimSpace(input.PhoneNumber)
	if number == "" {
		return PhoneSetting{}, newServiceError(opSavePhone, "missing_phone_number", fmt.Errorf("%w: phone_number is required", ErrInvalidInput))
	}
	telLink := strings.TrimSpace(input.TelLink)
	if telLink == "" {
		telLink = TelLink(number)
	}
	record := PhoneSetting{
		ID:          singletonID,
		PhoneNumber: number,
		DisplayText: strings.TrimSpace(input.DisplayText),
		TelLink:     telLink,
		IsActive:    input.IsActive,
		UpdatedAt:   s.clock().UTC(),
	}
	if err := s.upsert(ctx, opSavePhone, &record, recordIDPhone); err != nil {
		return PhoneSetting{}, err
	}
	return record, nil
}

// EmailInput updates the email provider settings. An empty or masked API key keeps the stored key.
type EmailInput struct {
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	APIKey      string `json:"api_key"`
	NotifyEmail string `json:"notify_email"`
}

// GetEmail returns the stored email settings.
func (s *Service) GetEmail(ctx context.Context) (EmailSettings, error) {
	var record EmailSettings
	if err := s.loadSingleton(ctx, opGetEmail, &record); err != nil {
		return EmailSettings{}, err
	}
	return record, nil
}

// SaveEmail upserts the email settings.
func (s *Service) SaveEmail(ctx context.Context, input EmailInput) (EmailSettings, error) {
	senderEmail := strings.TrimSpace(input.SenderEmail)
	if !validAddress(senderEmail) {
		return EmailSettings{}, newServiceError(opSaveEmail, "invalid_sender_email", fmt.Errorf("%w: sender_email must be a valid address", ErrInvalidInput))
	}
	notifyEmail := strings.TrimSpace(input.NotifyEmail)
	if notifyEmail != "" && !validAddress(notifyEmail) {
		return EmailSettings{}, newServiceError(opSaveEmail, "invalid_notify_email", fmt.Errorf("%w: notify_email must be a valid address", ErrInvalidInput))
	}

	apiKey, err := keepSecret(ctx, s, opSaveEmail, input.APIKey, func(existing *EmailSettings) string { return existing.APIKey })
	if err != nil {
		return EmailSettings{}, err
	}
	if apiKey == "" {
		return EmailSettings{}, newServiceError(opSaveEmail, "missing_api_key", fmt.Errorf("%w: api_key is required", ErrInvalidInput))
	}

	record := EmailSettings{
		ID:          singletonID,
		SenderName:  strings.TrimSpace(input.SenderName),
		SenderEmail: senderEmail,
		APIKey:      apiKey,
		NotifyEmail: notifyEmail,
		UpdatedAt:   s.clock().UTC(),
	}
	if err := s.upsert(ctx, opSaveEmail, &record, recordIDEmail); err != nil {
		return EmailSettings{}, err
	}
	return record, nil
}

// TelegramInput updates the bot settings. An empty or masked token keeps the stored token.
type TelegramInput struct {
	BotToken string `json:"bot_token"`
	IsActive bool   `json:"is_active"`
}

// GetTelegram returns the stored bot settings.
func (s *Service) GetTelegram(ctx context.Context) (TelegramSettings, error) {
	var record TelegramSettings
	if err := s.loadSingleton(ctx, opGetTelegram, &record); err != nil {
		return TelegramSettings{}, err
	}
	return record, nil
}

// SaveTelegram upserts the bot settings.
func (s *Service) SaveTelegram(ctx context.Context, input TelegramInput) (TelegramSettings, error) {
	token, err := keepSecret(ctx, s, opSaveTelegram, input.BotToken, func(existing *TelegramSettings) string { return existing.BotToken })
	if err != nil {
		return TelegramSettings{}, err
	}
	if token == "" {
		return TelegramSettings{}, newServiceError(opSaveTelegram, "missing_bot_token", fmt.Errorf("%w: bot_token is required", ErrInvalidInput))
	}
	record := TelegramSettings{
		ID:        singletonID,
		BotToken:  token,
		IsActive:  input.IsActive,
		UpdatedAt: s.clock().UTC(),
	}
	if err := s.upsert(ctx, opSaveTelegram, &record, recordIDTelegram); err != nil {
		return TelegramSettings{}, err
	}
	return record, nil
}

// ImapInput updates the mailbox settings. An empty or masked password keeps the stored password.
type ImapInput struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	UseTLS   bool   `json:"use_tls"`
	IsActive bool   `json:"is_active"`
}

// GetImap returns the stored mailbox settings.
func (s *Service) GetImap(ctx context.Context) (ImapSettings, error) {
	var record ImapSettings
	if err := s.loadSingleton(ctx, opGetImap, &record); err != nil {
		return ImapSettings{}, err
	}
	return record, nil
}

// SaveImap upserts the mailbox settings. A zero port defaults to 993.
func (s *Service) SaveImap(ctx context.Context, input ImapInput) (ImapSettings, error) {
	host := strings.TrimSpace(input.Host)
	username := strings.TrimSpace(input.Username)
	if host == "" || username == "" {
		return ImapSettings{}, newServiceError(opSaveImap, "missing_fields", fmt.Errorf("%w: host and username are required", ErrInvalidInput))
	}
	port := input.Port
	if port == 0 {
		port = defaultImapPort
	}
	if port < 1 || port > 65535 {
		return ImapSettings{}, newServiceError(opSaveImap, "invalid_port", fmt.Errorf("%w: port out of range", ErrInvalidInput))
	}
	password, err := keepSecret(ctx, s, opSaveImap, input.Password, func(existing *ImapSettings) string { return existing.Password })
	if err != nil {
		return ImapSettings{}, err
	}
	if password == "" {
		return ImapSettings{}, newServiceError(opSaveImap, "missing_password", fmt.Errorf("%w: password is required", ErrInvalidInput))
	}
	record := ImapSettings{
		ID:        singletonID,
		Host:      host,
		Port:      port,
		Username:  username,
		Password:  password,
		UseTLS:    input.UseTLS,
		IsActive:  input.IsActive,
		UpdatedAt: s.clock().UTC(),
	}
	if err := s.upsert(ctx, opSaveImap, &record, recordIDImap); err != nil {
		return ImapSettings{}, err
	}
	return record, nil
}

// ChatInput creates or updates a Telegram recipient. Empty notification types subscribe to every category.
type ChatInput struct {
	ChatID            string   `json:"chat_id"`
	ChatName          string   `json:"chat_name"`
	IsActive          bool     `json:"is_active"`
	NotificationTypes []string `json:"notification_types"`
}

func (in ChatInput) normalize(operation string) (ChatInput, error) {
	in.ChatID = strings.TrimSpace(in.ChatID)
	in.ChatName = strings.TrimSpace(in.ChatName)
	if in.ChatID == "" {
		return ChatInput{}, newServiceError(operation, "missing_chat_id", fmt.Errorf("%w: chat_id is required", ErrInvalidInput))
	}
	if len(in.NotificationTypes) == 0 {
		for _, category := range Categories() {
			in.NotificationTypes = append(in.NotificationTypes, string(category))
		}
		return in, nil
	}
	seen := make(map[string]struct{}, len(in.NotificationTypes))
	types := make([]string, 0, len(in.NotificationTypes))
	for _, raw := range in.NotificationTypes {
		value := strings.ToLower(strings.TrimSpace(raw))
		if !Category(value).valid() {
			return ChatInput{}, newServiceError(operation, "invalid_notification_type", fmt.Errorf("%w: unknown notification type %q", ErrInvalidInput, raw))
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		types = append(types, value)
	}
	in.NotificationTypes = types
	return in, nil
}

// ListChats returns every recipient, oldest first.
func (s *Service) ListChats(ctx context.Context) ([]TelegramChat, error) {
	var chats []TelegramChat
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&chats).Error; err != nil {
		s.logError(opListChats, "query_failed", err)
		return nil, newServiceError(opListChats, "query_failed", err)
	}
	return chats, nil
}

// CreateChat stores a new recipient.
func (s *Service) CreateChat(ctx context.Context, input ChatInput) (TelegramChat, error) {
	normalized, err := input.normalize(opCreateChat)
	if err != nil {
		return TelegramChat{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateChat, "id_generation_failed", err)
		return TelegramChat{}, newServiceError(opCreateChat, "id_generation_failed", err)
	}
	chat := TelegramChat{
		ID:                id,
		ChatID:            normalized.ChatID,
		ChatName:          normalized.ChatName,
		IsActive:          normalized.IsActive,
		NotificationTypes: datatypes.NewJSONSlice(normalized.NotificationTypes),
		CreatedAt:         s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&chat).Error; err != nil {
		s.logError(opCreateChat, "insert_failed", err, zap.String("chat_id", chat.ChatID))
		return TelegramChat{}, newServiceError(opCreateChat, "insert_failed", err)
	}
	s.publish(events.TopicTelegramChats, events.ActionInsert, chat.ID)
	return chat, nil
}

// UpdateChat replaces a recipient's fields.
func (s *Service) UpdateChat(ctx context.Context, id string, input ChatInput) (TelegramChat, error) {
	normalized, err := input.normalize(opUpdateChat)
	if err != nil {
		return TelegramChat{}, err
	}
	var chat TelegramChat
	err = s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TelegramChat{}, newServiceError(opUpdateChat, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opUpdateChat, "query_failed", err, zap.String("id", id))
		return TelegramChat{}, newServiceError(opUpdateChat, "query_failed", err)
	}
	chat.ChatID = normalized.ChatID
	chat.ChatName = normalized.ChatName
	chat.IsActive = normalized.IsActive
	chat.NotificationTypes = datatypes.NewJSONSlice(normalized.NotificationTypes)
	if err := s.db.WithContext(ctx).Save(&chat).Error; err != nil {
		s.logError(opUpdateChat, "update_failed", err, zap.String("id", chat.ID))
		return TelegramChat{}, newServiceError(opUpdateChat, "update_failed", err)
	}
	s.publish(events.TopicTelegramChats, events.ActionUpdate, chat.ID)
	return chat, nil
}

// DeleteChat removes a recipient.
func (s *Service) DeleteChat(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&TelegramChat{})
	if result.Error != nil {
		s.logError(opDeleteChat, "delete_failed", result.Error, zap.String("id", id))
		return newServiceError(opDeleteChat, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteChat, "not_found", ErrNotFound)
	}
	s.publish(events.TopicTelegramChats, events.ActionDelete, id)
	return nil
}

// ActiveChatsFor returns active recipients subscribed to the category.
func (s *Service) ActiveChatsFor(ctx context.Context, category Category) ([]TelegramChat, error) {
	var active []TelegramChat
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at ASC").Find(&active).Error; err != nil {
		s.logError(opActiveChats, "query_failed", err, zap.String("category", string(category)))
		return nil, newServiceError(opActiveChats, "query_failed", err)
	}
	matched := make([]TelegramChat, 0, len(active))
	for _, chat := range active {
		if chat.Wants(category) {
			matched = append(matched, chat)
		}
	}
	return matched, nil
}

// CountActiveChats counts active recipients.
func (s *Service) CountActiveChats(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&TelegramChat{}).Where("is_active = ?", true).Count(&count).Error; err != nil {
		s.logError(opCountChats, "query_failed", err)
		return 0, newServiceError(opCountChats, "query_failed", err)
	}
	return count, nil
}

// TelLink builds a tel: URI from a human formatted number.
func TelLink(number string) string {
	var builder strings.Builder
	builder.WriteString("tel:")
	for index, r := range strings.TrimSpace(number) {
		switch {
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '+' && index == 0:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func (s *Service) loadSingleton(ctx context.Context, operation string, dest any) error {
	err := s.db.WithContext(ctx).Where("id = ?", singletonID).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(operation, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "query_failed", err)
		return newServiceError(operation, "query_failed", err)
	}
	return nil
}

func (s *Service) upsert(ctx context.Context, operation string, record any, recordID string) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error; err != nil {
		s.logError(operation, "upsert_failed", err)
		return newServiceError(operation, "upsert_failed", err)
	}
	s.publish(events.TopicSettings, events.ActionUpdate, recordID)
	return nil
}

// keepSecret resolves an incoming secret: empty or masked input keeps the stored value.
func keepSecret[T any](ctx context.Context, s *Service, operation, incoming string, extract func(*T) string) (string, error) {
	trimmed := strings.TrimSpace(incoming)
	if trimmed != "" && !strings.HasPrefix(trimmed, maskedPrefix) {
		return trimmed, nil
	}
	var existing T
	err := s.loadSingleton(ctx, operation, &existing)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return extract(&existing), nil
}

func (s *Service) publish(topic events.Topic, action events.Action, id string) {
	s.publisher.Publish(events.Change{Topic: topic, Action: action, RecordID: id, Timestamp: s.clock().UTC()})
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("settings service error", attrs...)
}

func validAddress(value string) bool {
	return value != "" && addressValidator.Var(value, "email") == nil
}
