package mailbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/ids"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var databaseCounter atomic.Int64

type stubSettings struct {
	imap settings.ImapSettings
	err  error
}

func (s stubSettings) GetImap(context.Context) (settings.ImapSettings, error) {
	return s.imap, s.err
}

func activeImap() settings.ImapSettings {
	return settings.ImapSettings{
		ID:       1,
		Host:     "imap.example.de",
		Port:     993,
		Username: "info@example.de",
		Password: "secret",
		UseTLS:   true,
		IsActive: true,
	}
}

type fakeSource struct {
	mu       sync.Mutex
	messages []Message
	err      error
	calls    int
	limits   []int
}

func (f *fakeSource) Fetch(_ context.Context, _ Account, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	return append([]Message(nil), f.messages...), nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:mailbox_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), databaseCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestService(t *testing.T, source Source, imap stubSettings) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(t),
		Settings:   imap,
		Source:     source,
		Clock:      func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
		IDProvider: &ids.Sequence{Prefix: "mail-"},
	})
	require.NoError(t, err)
	return service
}

func plainMessage(uid uint32, messageID, subject string) Message {
	raw := fmt.Sprintf("From: kunde@example.de\r\nTo: info@example.de\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nNachricht %d\r\n", subject, uid)
	return Message{
		UID:       uid,
		MessageID: messageID,
		Subject:   subject,
		Sender:    "kunde@example.de",
		Recipient: "info@example.de",
		Date:      time.Date(2026, 2, 1, 8, 0, 0, int(uid), time.UTC).Add(time.Duration(uid) * time.Minute),
		Raw:       []byte(raw),
	}
}
