package inquiries

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/events"
	"github.com/MarcoPoloResearchLab/heizoel/internal/ids"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []events.Change
}

func (p *recordingPublisher) Publish(change events.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
}

func (p *recordingPublisher) recorded() []events.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Change(nil), p.changes...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(step)
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:inquiries_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestService(t *testing.T) (*Service, *recordingPublisher, *manualClock) {
	t.Helper()
	publisher := &recordingPublisher{}
	clock := &manualClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(t),
		Clock:      clock.Now,
		IDProvider: &ids.Sequence{Prefix: "rec-"},
		Publisher:  publisher,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, publisher, clock
}

func validContactSubmission() ContactSubmission {
	return ContactSubmission{
		Salutation: "herr",
		Company:    "Acme",
		FirstName:  "Max",
		LastName:   "Muster",
		Email:      "max@acme.de",
		Phone:      "0123",
		Message:    "Hallo",
		Privacy:    true,
	}
}

func validOrderSubmission() OrderSubmission {
	return OrderSubmission{
		Salutation:     "frau",
		FirstName:      "Erika",
		LastName:       "Mustermann",
		Email:          "erika@example.de",
		Phone:          "0170 1234567",
		Street:         "Hauptstraße 1",
		PostalCode:     "80331",
		City:           "München",
		Product:        "heizoel_standard",
		Quantity:       3000,
		DeliveryPoints: 1,
		DeliveryTime:   "two_weeks",
		Privacy:        true,
	}
}
