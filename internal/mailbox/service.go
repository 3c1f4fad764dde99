package mailbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/events"
	"github.com/MarcoPoloResearchLab/heizoel/internal/ids"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew      = "mailbox.service.new"
	opFetch           = "mailbox.fetch"
	opList            = "mailbox.list"
	opGet             = "mailbox.get"
	opSetRead         = "mailbox.set_read"
	opCountUnread     = "mailbox.count_unread"
	defaultFetchLimit = 50
)

var noOpLogger = zap.NewNop()

// SettingsSource loads the stored IMAP settings.
type SettingsSource interface {
	GetImap(ctx context.Context) (settings.ImapSettings, error)
}

// ServiceConfig wires the mailbox service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Settings   SettingsSource
	Source     Source
	FetchLimit int
	Clock      func() time.Time
	IDProvider ids.Provider
	Publisher  events.Publisher
	Logger     *zap.Logger
}

// Service fetches INBOX into the cache and serves the cached messages.
type Service struct {
	db         *gorm.DB
	settings   SettingsSource
	source     Source
	fetchLimit int
	clock      func() time.Time
	idProvider ids.Provider
	publisher  events.Publisher
	logger     *zap.Logger
}

// FetchResult counts what one fetch run did.
type FetchResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Filter narrows the cached email list.
type Filter struct {
	Search     string
	UnreadOnly bool
}

// Matches applies the filter to a cached email.
func (f Filter) Matches(email CachedEmail) bool {
	if f.UnreadOnly && email.IsRead {
		return false
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	if search == "" {
		return true
	}
	for _, candidate := range []string{email.Subject, email.Sender, email.Recipient} {
		if strings.Contains(strings.ToLower(candidate), search) {
			return true
		}
	}
	return false
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Settings == nil {
		return nil, newServiceError(opServiceNew, "missing_settings", errMissingSettings)
	}
	if cfg.Source == nil {
		return nil, newServiceError(opServiceNew, "missing_source", errMissingSource)
	}
	fetchLimit := cfg.FetchLimit
	if fetchLimit <= 0 {
		fetchLimit = defaultFetchLimit
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
		settings:   cfg.Settings,
		source:     cfg.Source,
		fetchLimit: fetchLimit,
		clock:      clock,
		idProvider: cfg.IDProvider,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

// Fetch copies the newest INBOX messages into the cache, skipping message ids already cached.
// A failure anywhere before the insert leaves the cache untouched.
func (s *Service) Fetch(ctx context.Context) (FetchResult, error) {
	config, err := s.settings.GetImap(ctx)
	if errors.Is(err, settings.ErrNotFound) {
		return FetchResult{}, newServiceError(opFetch, "not_configured", ErrMailboxNotConfigured)
	}
	if err != nil {
		return FetchResult{}, newServiceError(opFetch, "settings_failed", err)
	}
	if !config.Usable() {
		return FetchResult{}, newServiceError(opFetch, "not_configured", ErrMailboxNotConfigured)
	}

	account := Account{
		Host:     config.Host,
		Port:     config.Port,
		Username: config.Username,
		Password: config.Password,
		UseTLS:   config.UseTLS,
	}
	messages, err := s.source.Fetch(ctx, account, s.fetchLimit)
	if err != nil {
		s.logError(opFetch, "source_failed", err, zap.String("host", config.Host))
		return FetchResult{}, newServiceError(opFetch, "source_failed", err)
	}

	known, err := s.cachedMessageIDs(ctx)
	if err != nil {
		s.logError(opFetch, "query_failed", err)
		return FetchResult{}, newServiceError(opFetch, "query_failed", err)
	}

	var result FetchResult
	now := s.clock().UTC()
	rows := make([]CachedEmail, 0, len(messages))
	for _, msg := range messages {
		messageID := msg.MessageID
		if messageID == "" {
			messageID = syntheticMessageID(msg.UID, config.Host)
		}
		if _, seen := known[messageID]; seen {
			result.Skipped++
			continue
		}
		known[messageID] = struct{}{}

		body, parseErr := ParseBody(msg.Raw)
		if parseErr != nil {
			s.logger.Warn("mailbox body parse failed",
				zap.String("message_id", messageID),
				zap.Uint32("uid", msg.UID),
				zap.Error(parseErr))
		}
		rowID, idErr := s.idProvider.NewID()
		if idErr != nil {
			s.logError(opFetch, "id_generation_failed", idErr)
			return FetchResult{}, newServiceError(opFetch, "id_generation_failed", idErr)
		}
		received := msg.Date
		if received.IsZero() {
			received = now
		}
		rows = append(rows, CachedEmail{
			ID:           rowID,
			MessageID:    messageID,
			Subject:      msg.Subject,
			Sender:       msg.Sender,
			Recipient:    msg.Recipient,
			BodyPlain:    body.Plain,
			BodyHTML:     body.HTML,
			ReceivedDate: received.UTC(),
			Folder:       inboxName,
			CreatedAt:    now,
		})
	}

	if len(rows) > 0 {
		insert := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).
			Create(&rows)
		if insert.Error != nil {
			s.logError(opFetch, "insert_failed", insert.Error)
			return FetchResult{}, newServiceError(opFetch, "insert_failed", insert.Error)
		}
		result.Inserted = int(insert.RowsAffected)
		result.Skipped += len(rows) - result.Inserted
		stored, err := s.storedRowIDs(ctx, rows, result.Inserted)
		if err != nil {
			s.logError(opFetch, "query_failed", err)
			return FetchResult{}, newServiceError(opFetch, "query_failed", err)
		}
		for _, row := range rows {
			if _, ok := stored[row.ID]; ok {
				s.publish(events.ActionInsert, row.ID)
			}
		}
	}

	s.logger.Info("mailbox fetched",
		zap.String("host", config.Host),
		zap.Int("received", len(messages)),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// List returns cached emails, newest first, narrowed by filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]CachedEmail, error) {
	var records []CachedEmail
	if err := s.db.WithContext(ctx).Order("received_date DESC").Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	matched := records[:0]
	for _, record := range records {
		if filter.Matches(record) {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// Get returns one cached email and marks it read.
func (s *Service) Get(ctx context.Context, emailID string) (CachedEmail, error) {
	record, err := s.SetRead(ctx, emailID, true)
	if err != nil {
		return CachedEmail{}, rewrapOperation(err, opGet)
	}
	return record, nil
}

// SetRead flips the read flag of a cached email.
func (s *Service) SetRead(ctx context.Context, emailID string, read bool) (CachedEmail, error) {
	var record CachedEmail
	err := s.db.WithContext(ctx).Where("id = ?", emailID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CachedEmail{}, newServiceError(opSetRead, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opSetRead, "query_failed", err, zap.String("email_id", emailID))
		return CachedEmail{}, newServiceError(opSetRead, "query_failed", err)
	}
	if record.IsRead == read {
		return record, nil
	}
	if err := s.db.WithContext(ctx).Model(&record).Update("is_read", read).Error; err != nil {
		s.logError(opSetRead, "update_failed", err, zap.String("email_id", emailID))
		return CachedEmail{}, newServiceError(opSetRead, "update_failed", err)
	}
	record.IsRead = read
	s.publish(events.ActionUpdate, record.ID)
	return record, nil
}

// CountUnread returns the number of unread cached emails.
func (s *Service) CountUnread(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&CachedEmail{}).Where("is_read = ?", false).Count(&count).Error; err != nil {
		s.logError(opCountUnread, "query_failed", err)
		return 0, newServiceError(opCountUnread, "query_failed", err)
	}
	return count, nil
}

func (s *Service) cachedMessageIDs(ctx context.Context) (map[string]struct{}, error) {
	var existing []string
	if err := s.db.WithContext(ctx).Model(&CachedEmail{}).Pluck("message_id", &existing).Error; err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, messageID := range existing {
		known[messageID] = struct{}{}
	}
	return known, nil
}

// storedRowIDs reports which of rows were written. Rows whose message_id was
// cached concurrently are dropped by the conflict clause and must not be announced.
func (s *Service) storedRowIDs(ctx context.Context, rows []CachedEmail, inserted int) (map[string]struct{}, error) {
	stored := make(map[string]struct{}, len(rows))
	if inserted == len(rows) {
		for _, row := range rows {
			stored[row.ID] = struct{}{}
		}
		return stored, nil
	}
	if inserted == 0 {
		return stored, nil
	}
	rowIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		rowIDs = append(rowIDs, row.ID)
	}
	var existing []string
	if err := s.db.WithContext(ctx).Model(&CachedEmail{}).Where("id IN ?", rowIDs).Pluck("id", &existing).Error; err != nil {
		return nil, err
	}
	for _, id := range existing {
		stored[id] = struct{}{}
	}
	return stored, nil
}

func (s *Service) publish(action events.Action, id string) {
	s.publisher.Publish(events.Change{
		Topic:     events.TopicCachedEmails,
		Action:    action,
		RecordID:  id,
		Timestamp: s.clock().UTC(),
	})
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
	s.logger.Error("mailbox service error", attrs...)
}

func rewrapOperation(err error, operation string) error {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		reason := serviceErr.code[strings.LastIndex(serviceErr.code, ".")+1:]
		return newServiceError(operation, reason, serviceErr.err)
	}
	return err
}
