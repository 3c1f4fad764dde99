package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/auth"
	"github.com/MarcoPoloResearchLab/heizoel/internal/database"
	"github.com/MarcoPoloResearchLab/heizoel/internal/events"
	"github.com/MarcoPoloResearchLab/heizoel/internal/ids"
	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/mailbox"
	"github.com/MarcoPoloResearchLab/heizoel/internal/notify"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/MarcoPoloResearchLab/heizoel/internal/site"
	"github.com/MarcoPoloResearchLab/heizoel/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testAdminEmail    = "admin@heizoel.de"
	testAdminPassword = "correct horse battery"
	csrfFieldName     = "gorilla.csrf.Token"
)

var databaseCounter atomic.Int64

var (
	csrfTokenPattern = regexp.MustCompile(`name="gorilla\.csrf\.Token" value="([^"]+)"`)
	testCSRFKey      = []byte("0123456789abcdef0123456789abcdef")
)

type stubEmail struct {
	mu         sync.Mutex
	err        error
	recipients []string
}

func (s *stubEmail) Send(_ context.Context, event notify.Event) (notify.EmailReceipt, error) {
	if s.err != nil {
		return notify.EmailReceipt{}, s.err
	}
	return notify.EmailReceipt{MessageID: "mail-" + event.RecordID()}, nil
}

func (s *stubEmail) SendTest(_ context.Context, recipient string) (notify.EmailReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return notify.EmailReceipt{}, s.err
	}
	s.recipients = append(s.recipients, recipient)
	return notify.EmailReceipt{MessageID: "test-mail", To: []string{recipient}}, nil
}

type stubTelegram struct {
	report notify.Report
	err    error
}

func (s stubTelegram) Dispatch(context.Context, notify.Event) (notify.Report, error) {
	return s.report, s.err
}

type stubNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *stubNotifier) Notify(_ context.Context, event notify.Event) notify.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return notify.Outcome{Email: notify.EmailReceipt{MessageID: "resent-" + event.RecordID()}}
}

type stubSource struct {
	mu       sync.Mutex
	messages []mailbox.Message
	err      error
}

func (s *stubSource) Fetch(context.Context, mailbox.Account, int) ([]mailbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages, s.err
}

type testHarness struct {
	handler   http.Handler
	inquiries *inquiries.Service
	settings  *settings.Service
	mailbox   *mailbox.Service
	accounts  *users.Service
	sessions  *auth.SessionManager
	bus       *events.Bus
	source    *stubSource
	email     *stubEmail
	notifier  *stubNotifier
	cookie    *http.Cookie
}

type harnessOption func(*Dependencies)

func newTestHarness(t *testing.T, options ...harnessOption) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), databaseCounter.Add(1))
	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	bus := events.NewBus(events.BusConfig{})
	inquiryService, err := inquiries.NewService(inquiries.ServiceConfig{Database: db, IDProvider: &ids.Sequence{Prefix: "inq-"}, Publisher: bus})
	if err != nil {
		t.Fatalf("failed to construct inquiry service: %v", err)
	}
	settingsService, err := settings.NewService(settings.ServiceConfig{Database: db, IDProvider: &ids.Sequence{Prefix: "chat-"}, Publisher: bus})
	if err != nil {
		t.Fatalf("failed to construct settings service: %v", err)
	}
	source := &stubSource{}
	mailboxService, err := mailbox.NewService(mailbox.ServiceConfig{
		Database:   db,
		Settings:   settingsService,
		Source:     source,
		IDProvider: &ids.Sequence{Prefix: "mail-"},
		Publisher:  bus,
	})
	if err != nil {
		t.Fatalf("failed to construct mailbox service: %v", err)
	}
	accountService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: &ids.Sequence{Prefix: "acct-"}})
	if err != nil {
		t.Fatalf("failed to construct account service: %v", err)
	}
	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte("test-signing-secret"),
		CookieName:    "heizoel_session",
		TTL:           time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct session manager: %v", err)
	}
	renderer := mustRenderer(t)

	harness := &testHarness{
		inquiries: inquiryService,
		settings:  settingsService,
		mailbox:   mailboxService,
		accounts:  accountService,
		sessions:  sessions,
		bus:       bus,
		source:    source,
		email:     &stubEmail{},
		notifier:  &stubNotifier{},
	}
	deps := Dependencies{
		Inquiries:         inquiryService,
		Settings:          settingsService,
		Mailbox:           mailboxService,
		Accounts:          accountService,
		Sessions:          sessions,
		Email:             harness.email,
		Telegram:          stubTelegram{report: notify.Report{Successful: 2}},
		Notifier:          harness.notifier,
		Events:            bus,
		Renderer:          renderer,
		CSRFKey:           testCSRFKey,
		DefaultPhone:      "0800 123 456",
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	}
	for _, option := range options {
		option(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	harness.handler = handler
	return harness
}

func (h *testHarness) serve(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

// sessionCookie registers the admin account on first use and returns a valid session cookie.
func (h *testHarness) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	if h.cookie != nil {
		return h.cookie
	}
	account, err := h.accounts.Create(context.Background(), testAdminEmail, testAdminPassword)
	if err != nil {
		t.Fatalf("failed to create admin account: %v", err)
	}
	token, _, err := h.sessions.Issue(account.ID, account.Email)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	h.cookie = &http.Cookie{Name: h.sessions.CookieName(), Value: token}
	return h.cookie
}

func (h *testHarness) adminRequest(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	request.AddCookie(h.sessionCookie(t))
	return h.serve(request)
}

// formSession loads a form page and returns the csrf cookies plus the embedded token.
func (h *testHarness) formSession(t *testing.T, path string) ([]*http.Cookie, string) {
	t.Helper()
	recorder := h.serve(httptest.NewRequest(http.MethodGet, path, http.NoBody))
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status loading %s: %d", path, recorder.Code)
	}
	match := csrfTokenPattern.FindStringSubmatch(recorder.Body.String())
	if match == nil {
		t.Fatalf("expected csrf field in %s", path)
	}
	return recorder.Result().Cookies(), match[1]
}

func (h *testHarness) postForm(t *testing.T, path string, cookies []*http.Cookie, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	return h.serve(request)
}

func contactForm(token string) url.Values {
	return url.Values{
		csrfFieldName: {token},
		"salutation":  {"herr"},
		"company":     {"Acme GmbH"},
		"firstName":   {"Max"},
		"lastName":    {"Muster"},
		"email":       {"max@acme.de"},
		"phone":       {"+49 89 123"},
		"message":     {"Bitte um Rückruf"},
		"privacy":     {"true"},
	}
}

const orderJSON = `{"salutation":"frau","firstName":"Erika","lastName":"Muster","email":"erika@example.de","phone":"0171 555","street":"Hauptstraße 1","postalCode":"80331","city":"München","product":"heizoel_premium","quantity":2500,"deliveryPoints":1,"deliveryTime":"asap","privacy":true}`

func mustRenderer(t *testing.T) *site.Renderer {
	t.Helper()
	renderer, err := site.NewRenderer("Heizöl Service")
	if err != nil {
		t.Fatalf("failed to construct renderer: %v", err)
	}
	return renderer
}
