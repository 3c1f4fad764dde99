package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
)

type stubEmailSettings struct {
	settings settings.EmailSettings
	err      error
}

func (s stubEmailSettings) GetEmail(context.Context) (settings.EmailSettings, error) {
	return s.settings, s.err
}

type stubTelegramSettings struct {
	settings settings.TelegramSettings
	err      error
	chats    []settings.TelegramChat
}

func (s stubTelegramSettings) GetTelegram(context.Context) (settings.TelegramSettings, error) {
	return s.settings, s.err
}

func (s stubTelegramSettings) ActiveChatsFor(_ context.Context, category settings.Category) ([]settings.TelegramChat, error) {
	matched := make([]settings.TelegramChat, 0, len(s.chats))
	for _, chat := range s.chats {
		if chat.IsActive && chat.Wants(category) {
			matched = append(matched, chat)
		}
	}
	return matched, nil
}

type fakeSender struct {
	mu      sync.Mutex
	failing map[string]bool
	sent    map[string]string
}

func newFakeSender(failing ...string) *fakeSender {
	sender := &fakeSender{failing: make(map[string]bool), sent: make(map[string]string)}
	for _, chatID := range failing {
		sender.failing[chatID] = true
	}
	return sender
}

func (s *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[chatID] {
		return errors.New("Bad Request: chat not found")
	}
	s.sent[chatID] = text
	return nil
}

func (s *fakeSender) factory() SenderFactory {
	return func(string) (Sender, error) { return s, nil }
}

func sampleContact() inquiries.ContactRequest {
	return inquiries.ContactRequest{
		ID:         "contact-1",
		Salutation: "herr",
		Company:    "Acme",
		FirstName:  "Max",
		LastName:   "Muster",
		Email:      "max@acme.de",
		Phone:      "0123",
		Message:    "Hallo\n<script>alert(1)</script>",
		CreatedAt:  time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func sampleOrder() inquiries.Order {
	return inquiries.Order{
		ID:             "order-1",
		Salutation:     "frau",
		FirstName:      "Erika",
		LastName:       "Mustermann",
		Email:          "erika@example.de",
		Phone:          "0170 1234567",
		Street:         "Hauptstraße 1",
		PostalCode:     "80331",
		City:           "München",
		Product:        "heizoel_premium",
		Quantity:       2500,
		DeliveryPoints: 2,
		DeliveryTime:   "asap",
		Status:         inquiries.OrderStatusPending,
	}
}

func completeEmailSettings() settings.EmailSettings {
	return settings.EmailSettings{
		ID:          1,
		SenderName:  "Heizöl Service",
		SenderEmail: "info@heizoel.de",
		APIKey:      "re_test_key",
		NotifyEmail: "team@heizoel.de",
	}
}

func activeChat(chatID string, categories ...settings.Category) settings.TelegramChat {
	types := make([]string, 0, len(categories))
	for _, category := range categories {
		types = append(types, string(category))
	}
	return settings.TelegramChat{ID: "row-" + chatID, ChatID: chatID, IsActive: true, NotificationTypes: types}
}
