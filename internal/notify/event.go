// Package notify delivers submission notifications by email and Telegram.
package notify

import (
	"errors"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
)

var (
	// ErrEmailNotConfigured means no complete email settings are stored.
	ErrEmailNotConfigured = errors.New("notify: email settings not configured")
	// ErrTelegramNotConfigured means no active bot settings are stored.
	ErrTelegramNotConfigured = errors.New("notify: telegram settings not configured")
	// ErrEmailDelivery wraps a provider rejection or transport failure.
	ErrEmailDelivery = errors.New("notify: email delivery failed")
	// ErrNoRecipient means a test mail has nowhere to go.
	ErrNoRecipient = errors.New("notify: no recipient address")
)

// EventKind names what is being announced.
type EventKind string

const (
	EventContact EventKind = "contact"
	EventOrder   EventKind = "order"
	EventTest    EventKind = "test"
)

// Event is one notification-worthy occurrence.
type Event struct {
	Kind    EventKind
	Contact *inquiries.ContactRequest
	Order   *inquiries.Order
}

// ContactEvent wraps a stored contact request.
func ContactEvent(contact inquiries.ContactRequest) Event {
	return Event{Kind: EventContact, Contact: &contact}
}

// OrderEvent wraps a stored order.
func OrderEvent(order inquiries.Order) Event {
	return Event{Kind: EventOrder, Order: &order}
}

// TestEvent is the admin connectivity ping.
func TestEvent() Event {
	return Event{Kind: EventTest}
}

// Category maps the event onto the Telegram subscription category.
func (e Event) Category() settings.Category {
	if e.Kind == EventOrder {
		return settings.CategoryOrders
	}
	return settings.CategoryInquiries
}

// RecordID returns the id of the wrapped record, if any.
func (e Event) RecordID() string {
	switch {
	case e.Contact != nil:
		return e.Contact.ID
	case e.Order != nil:
		return e.Order.ID
	default:
		return ""
	}
}

func (e Event) submitterEmail() string {
	switch {
	case e.Contact != nil:
		return e.Contact.Email
	case e.Order != nil:
		return e.Order.Email
	default:
		return ""
	}
}

func (e Event) valid() bool {
	switch e.Kind {
	case EventContact:
		return e.Contact != nil
	case EventOrder:
		return e.Order != nil
	case EventTest:
		return true
	default:
		return false
	}
}
