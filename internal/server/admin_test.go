package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/mailbox"
	"github.com/MarcoPoloResearchLab/heizoel/internal/notify"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
)

func submitTestOrder(t *testing.T, harness *testHarness) inquiries.Order {
	t.Helper()
	var submission inquiries.OrderSubmission
	if err := json.Unmarshal([]byte(orderJSON), &submission); err != nil {
		t.Fatalf("failed to decode order fixture: %v", err)
	}
	order, err := harness.inquiries.SubmitOrder(context.Background(), submission)
	if err != nil {
		t.Fatalf("failed to submit order: %v", err)
	}
	return order
}

func submitTestContact(t *testing.T, harness *testHarness, company string) inquiries.ContactRequest {
	t.Helper()
	contact, err := harness.inquiries.SubmitContact(context.Background(), inquiries.ContactSubmission{
		Salutation: "herr",
		Company:    company,
		FirstName:  "Max",
		LastName:   "Muster",
		Email:      "max@acme.de",
		Phone:      "+49 89 123",
		Message:    "Bitte um Rückruf",
		Privacy:    true,
	})
	if err != nil {
		t.Fatalf("failed to submit contact: %v", err)
	}
	return contact
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), dest); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestDashboardReportsCounts(t *testing.T) {
	harness := newTestHarness(t)
	submitTestContact(t, harness, "Acme GmbH")
	order := submitTestOrder(t, harness)
	submitTestOrder(t, harness)
	if _, err := harness.inquiries.UpdateOrderStatus(context.Background(), order.ID, "paid"); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	if _, err := harness.settings.CreateChat(context.Background(), settings.ChatInput{ChatID: "1001", IsActive: true}); err != nil {
		t.Fatalf("failed to create chat: %v", err)
	}

	recorder := harness.adminRequest(t, http.MethodGet, "/admin/api/dashboard", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	var payload struct {
		Counts struct {
			ContactsTotal    int64            `json:"contacts_total"`
			ContactsLastWeek int64            `json:"contacts_last_week"`
			OrdersTotal      int64            `json:"orders_total"`
			OrdersByStatus   map[string]int64 `json:"orders_by_status"`
		} `json:"counts"`
		UnreadEmails int64 `json:"unread_emails"`
		ActiveChats  int64 `json:"active_telegram_chats"`
	}
	decodeBody(t, recorder, &payload)
	if payload.Counts.ContactsTotal != 1 || payload.Counts.ContactsLastWeek != 1 || payload.Counts.OrdersTotal != 2 {
		t.Fatalf("unexpected counts: %+v", payload.Counts)
	}
	if payload.Counts.OrdersByStatus["pending"] != 1 || payload.Counts.OrdersByStatus["paid"] != 1 || payload.Counts.OrdersByStatus["processing"] != 0 {
		t.Fatalf("unexpected status counts: %v", payload.Counts.OrdersByStatus)
	}
	if payload.ActiveChats != 1 || payload.UnreadEmails != 0 {
		t.Fatalf("unexpected side counts: %+v", payload)
	}
}

func TestOrderStatusUpdateViaAPI(t *testing.T) {
	harness := newTestHarness(t)
	order := submitTestOrder(t, harness)

	recorder := harness.adminRequest(t, http.MethodPatch, "/admin/api/orders/"+order.ID+"/status", `{"status":"invoice_sent"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", recorder.Code, recorder.Body.String())
	}
	var updated inquiries.Order
	decodeBody(t, recorder, &updated)
	if updated.Status != inquiries.OrderStatusInvoiceSent {
		t.Fatalf("unexpected order status: %s", updated.Status)
	}

	recorder = harness.adminRequest(t, http.MethodPatch, "/admin/api/orders/"+order.ID+"/status", `{"status":"shipped"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown status, got %d", recorder.Code)
	}
	var failure struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decodeBody(t, recorder, &failure)
	if failure.Error != "invalid_request" || failure.Code != "inquiries.update_order_status.invalid_status" {
		t.Fatalf("unexpected failure body: %+v", failure)
	}

	recorder = harness.adminRequest(t, http.MethodPatch, "/admin/api/orders/missing/status", `{"status":"paid"}`)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", recorder.Code)
	}
}

func TestOrderListFiltersByStatusAndSearch(t *testing.T) {
	harness := newTestHarness(t)
	first := submitTestOrder(t, harness)
	submitTestOrder(t, harness)
	if _, err := harness.inquiries.UpdateOrderStatus(context.Background(), first.ID, "processing"); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	var listing struct {
		Orders []inquiries.Order `json:"orders"`
	}
	decodeBody(t, harness.adminRequest(t, http.MethodGet, "/admin/api/orders?status=processing", ""), &listing)
	if len(listing.Orders) != 1 || listing.Orders[0].ID != first.ID {
		t.Fatalf("unexpected status listing: %+v", listing.Orders)
	}

	decodeBody(t, harness.adminRequest(t, http.MethodGet, "/admin/api/orders?search=PREMIUM", ""), &listing)
	if len(listing.Orders) != 2 {
		t.Fatalf("expected product label search to match both orders, got %d", len(listing.Orders))
	}

	if recorder := harness.adminRequest(t, http.MethodGet, "/admin/api/orders?status=bogus", ""); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown status filter, got %d", recorder.Code)
	}
}

func TestNotesViaAPI(t *testing.T) {
	harness := newTestHarness(t)
	order := submitTestOrder(t, harness)
	contact := submitTestContact(t, harness, "")

	for _, text := range []string{"Kunde angerufen", "Angebot verschickt"} {
		recorder := harness.adminRequest(t, http.MethodPost, "/admin/api/orders/"+order.ID+"/notes", `{"note_text":"`+text+`"}`)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("unexpected status: %d %s", recorder.Code, recorder.Body.String())
		}
	}
	var listing struct {
		Notes []inquiries.OrderNote `json:"notes"`
	}
	decodeBody(t, harness.adminRequest(t, http.MethodGet, "/admin/api/orders/"+order.ID+"/notes", ""), &listing)
	if len(listing.Notes) != 2 || listing.Notes[0].NoteText != "Kunde angerufen" {
		t.Fatalf("expected notes oldest first, got %+v", listing.Notes)
	}

	if recorder := harness.adminRequest(t, http.MethodPost, "/admin/api/contacts/"+contact.ID+"/notes", `{"note_text":"   "}`); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected empty note rejection, got %d", recorder.Code)
	}
	if recorder := harness.adminRequest(t, http.MethodPost, "/admin/api/contacts/missing/notes", `{"note_text":"x"}`); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected missing parent rejection, got %d", recorder.Code)
	}
}

func TestContactListSearchAndDelete(t *testing.T) {
	harness := newTestHarness(t)
	acme := submitTestContact(t, harness, "Acme GmbH")
	submitTestContact(t, harness, "Bäckerei Huber")

	var listing struct {
		Contacts []inquiries.ContactRequest `json:"contacts"`
	}
	decodeBody(t, harness.adminRequest(t, http.MethodGet, "/admin/api/contacts?search=acme", ""), &listing)
	if len(listing.Contacts) != 1 || listing.Contacts[0].ID != acme.ID {
		t.Fatalf("unexpected search result: %+v", listing.Contacts)
	}

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	decodeBody(t, harness.adminRequest(t, http.MethodGet, "/admin/api/contacts?since="+future, ""), &listing)
	if len(listing.Contacts) != 0 {
		t.Fatalf("expected no contacts after a future cutoff, got %d", len(listing.Contacts))
	}

	if recorder := harness.adminRequest(t, http.MethodDelete, "/admin/api/contacts/"+acme.ID, ""); recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected delete status: %d", recorder.Code)
	}
	if recorder := harness.adminRequest(t, http.MethodGet, "/admin/api/contacts/"+acme.ID, ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected deleted contact to be gone, got %d", recorder.Code)
	}
}

func TestResendNotificationUsesNotifier(t *testing.T) {
	harness := newTestHarness(t)
	order := submitTestOrder(t, harness)

	recorder := harness.adminRequest(t, http.MethodPost, "/admin/api/orders/"+order.ID+"/notify", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	var outcome notify.Outcome
	decodeBody(t, recorder, &outcome)
	if outcome.Email.MessageID != "resent-"+order.ID {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(harness.notifier.events) != 1 || harness.notifier.events[0].Kind != notify.EventOrder {
		t.Fatalf("expected one order notification, got %+v", harness.notifier.events)
	}
}

func TestSettingsSecretsAreMasked(t *testing.T) {
	harness := newTestHarness(t)

	if recorder := harness.adminRequest(t, http.MethodGet, "/admin/api/settings/email", ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found before first save, got %d", recorder.Code)
	}

	recorder := harness.adminRequest(t, http.MethodPut, "/admin/api/settings/email",
		`{"sender_name":"Heizöl Service","sender_email":"info@heizoel.de","api_key":"re_live_secret_key","notify_email":"team@heizoel.de"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", recorder.Code, recorder.Body.String())
	}
	if strings.Contains(recorder.Body.String(), "re_live_secret_key") {
		t.Fatal("api key leaked in save response")
	}

	recorder = harness.adminRequest(t, http.MethodPut, "/admin/api/settings/email",
		`{"sender_name":"Heizöl Team","sender_email":"info@heizoel.de","api_key":"","notify_email":"team@heizoel.de"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	stored, err := harness.settings.GetEmail(context.Background())
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	if stored.APIKey != "re_live_secret_key" || stored.SenderName != "Heizöl Team" {
		t.Fatalf("expected empty key to keep the stored secret: %+v", stored)
	}

	recorder = harness.adminRequest(t, http.MethodGet, "/admin/api/settings/email", "")
	if recorder.Code != http.StatusOK || strings.Contains(recorder.Body.String(), "re_live_secret_key") {
		t.Fatalf("expected masked read, got %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = harness.adminRequest(t, http.MethodPut, "/admin/api/settings/imap", `{"host":"imap.heizoel.de","username":"info@heizoel.de","password":"imap-pass","use_tls":true,"is_active":true}`)
	if recorder.Code != http.StatusOK || strings.Contains(recorder.Body.String(), "imap-pass") {
		t.Fatalf("unexpected imap save: %d %s", recorder.Code, recorder.Body.String())
	}
	var imap settings.ImapSettings
	decodeBody(t, recorder, &imap)
	if imap.Port != 993 {
		t.Fatalf("expected default port, got %d", imap.Port)
	}

	if recorder := harness.adminRequest(t, http.MethodPut, "/admin/api/settings/phone", `{"phone_number":""}`); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid phone rejection, got %d", recorder.Code)
	}
}

func TestTelegramChatCRUDViaAPI(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.adminRequest(t, http.MethodPost, "/admin/api/settings/telegram/chats", `{"chat_id":"-100200","chat_name":"Disposition","is_active":true,"notification_types":["bestellungen"]}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", recorder.Code, recorder.Body.String())
	}
	var chat settings.TelegramChat
	decodeBody(t, recorder, &chat)

	recorder = harness.adminRequest(t, http.MethodPut, "/admin/api/settings/telegram/chats/"+chat.ID, `{"chat_id":"-100200","chat_name":"Disposition","is_active":false}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected update status: %d", recorder.Code)
	}

	if recorder := harness.adminRequest(t, http.MethodPost, "/admin/api/settings/telegram/chats", `{"chat_id":"1","notification_types":["newsletter"]}`); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown category rejection, got %d", recorder.Code)
	}

	var listing struct {
		Chats []settings.TelegramChat `json:"chats"`
	}
	decodeBody(t, harness.adminRequest(t, http.MethodGet, "/admin/api/settings/telegram/chats", ""), &listing)
	if len(listing.Chats) != 1 || listing.Chats[0].IsActive {
		t.Fatalf("unexpected chats: %+v", listing.Chats)
	}

	if recorder := harness.adminRequest(t, http.MethodDelete, "/admin/api/settings/telegram/chats/"+chat.ID, ""); recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected delete status: %d", recorder.Code)
	}
	if recorder := harness.adminRequest(t, http.MethodDelete, "/admin/api/settings/telegram/chats/"+chat.ID, ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected second delete to miss, got %d", recorder.Code)
	}
}

func TestTestEndpointsMapDispatcherErrors(t *testing.T) {
	cases := []struct {
		name   string
		email  error
		status int
		short  string
	}{
		{name: "not configured", email: notify.ErrEmailNotConfigured, status: http.StatusBadRequest, short: "not_configured"},
		{name: "provider failure", email: notify.ErrEmailDelivery, status: http.StatusBadGateway, short: "upstream_failed"},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			harness := newTestHarness(t)
			harness.email.err = testCase.email
			recorder := harness.adminRequest(t, http.MethodPost, "/admin/api/settings/email/test", "")
			if recorder.Code != testCase.status || !strings.Contains(recorder.Body.String(), testCase.short) {
				t.Fatalf("unexpected response: %d %s", recorder.Code, recorder.Body.String())
			}
		})
	}

	harness := newTestHarness(t, func(deps *Dependencies) {
		deps.Telegram = stubTelegram{err: notify.ErrTelegramNotConfigured}
	})
	recorder := harness.adminRequest(t, http.MethodPost, "/admin/api/settings/telegram/test", "")
	if recorder.Code != http.StatusBadRequest || !strings.Contains(recorder.Body.String(), "not_configured") {
		t.Fatalf("unexpected telegram response: %d %s", recorder.Code, recorder.Body.String())
	}

	harness = newTestHarness(t)
	recorder = harness.adminRequest(t, http.MethodPost, "/admin/api/settings/email/test", `{"recipient":"chef@heizoel.de"}`)
	if recorder.Code != http.StatusOK || len(harness.email.recipients) != 1 || harness.email.recipients[0] != "chef@heizoel.de" {
		t.Fatalf("unexpected test mail: %d %v", recorder.Code, harness.email.recipients)
	}
}

func TestMailboxEndpoints(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.adminRequest(t, http.MethodPost, "/admin/api/mailbox/fetch", "")
	if recorder.Code != http.StatusBadRequest || !strings.Contains(recorder.Body.String(), "mailbox.fetch.not_configured") {
		t.Fatalf("expected not configured, got %d %s", recorder.Code, recorder.Body.String())
	}

	if _, err := harness.settings.SaveImap(context.Background(), settings.ImapInput{
		Host:     "imap.heizoel.de",
		Username: "info@heizoel.de",
		Password: "imap-pass",
		UseTLS:   true,
		IsActive: true,
	}); err != nil {
		t.Fatalf("failed to save imap settings: %v", err)
	}
	harness.source.messages = []mailbox.Message{{
		UID:       7,
		MessageID: "abc@heizoel.de",
		Subject:   "Lieferung",
		Sender:    "Kunde <kunde@example.de>",
		Recipient: "info@heizoel.de",
		Date:      time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Raw:       []byte("Subject: Lieferung\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nMorgen bitte\r\n"),
	}}

	recorder = harness.adminRequest(t, http.MethodPost, "/admin/api/mailbox/fetch", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected fetch status: %d %s", recorder.Code, recorder.Body.String())
	}
	var result mailbox.FetchResult
	decodeBody(t, recorder, &result)
	if result.Inserted != 1 || result.Skipped != 0 {
		t.Fatalf("unexpected fetch result: %+v", result)
	}

	var listing struct {
		Emails []mailbox.CachedEmail `json:"emails"`
	}
	decodeBody(t, harness.adminRequest(t, http.MethodGet, "/admin/api/mailbox?unread=true", ""), &listing)
	if len(listing.Emails) != 1 || listing.Emails[0].IsRead {
		t.Fatalf("unexpected unread listing: %+v", listing.Emails)
	}
	emailID := listing.Emails[0].ID

	recorder = harness.adminRequest(t, http.MethodGet, "/admin/api/mailbox/"+emailID, "")
	var opened mailbox.CachedEmail
	decodeBody(t, recorder, &opened)
	if !opened.IsRead || !strings.Contains(opened.BodyPlain, "Morgen bitte") {
		t.Fatalf("expected opened email to be read with body, got %+v", opened)
	}

	if recorder := harness.adminRequest(t, http.MethodPatch, "/admin/api/mailbox/"+emailID, `{}`); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected missing is_read rejection, got %d", recorder.Code)
	}
	recorder = harness.adminRequest(t, http.MethodPatch, "/admin/api/mailbox/"+emailID, `{"is_read":false}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected patch status: %d", recorder.Code)
	}
	decodeBody(t, harness.adminRequest(t, http.MethodGet, "/admin/api/mailbox?unread=1", ""), &listing)
	if len(listing.Emails) != 1 {
		t.Fatalf("expected email to be unread again, got %d", len(listing.Emails))
	}

	harness.source.err = errors.New("dial tcp: connection refused")
	recorder = harness.adminRequest(t, http.MethodPost, "/admin/api/mailbox/fetch", "")
	if recorder.Code == http.StatusOK {
		t.Fatal("expected fetch failure to surface")
	}
	if recorder := harness.adminRequest(t, http.MethodGet, "/admin/api/mailbox/missing", ""); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected missing email, got %d", recorder.Code)
	}
}

func TestCORSPreflightForAdminAPI(t *testing.T) {
	harness := newTestHarness(t, func(deps *Dependencies) {
		deps.AllowedOrigins = []string{"https://verwaltung.heizoel.de"}
	})

	preflight := func(origin string) *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodOptions, "/admin/api/orders", http.NoBody)
		request.Header.Set("Origin", origin)
		request.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		return harness.serve(request)
	}

	recorder := preflight("https://verwaltung.heizoel.de")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected preflight status: %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://verwaltung.heizoel.de" {
		t.Fatalf("unexpected allow origin header: %q", got)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", got)
	}

	if recorder := preflight("https://evil.example"); recorder.Code != http.StatusForbidden {
		t.Fatalf("expected disallowed origin to be rejected, got %d", recorder.Code)
	}
}
