package notify

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
)

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// escapeMarkdown neutralizes the legacy Markdown control characters in user input.
func escapeMarkdown(value string) string {
	return markdownEscaper.Replace(value)
}

// FormatTelegram renders the event as a legacy Markdown message.
func FormatTelegram(event Event, siteName string) string {
	var builder strings.Builder
	switch {
	case event.Kind == EventContact && event.Contact != nil:
		contact := event.Contact
		builder.WriteString("📩 *Neue Kontaktanfrage*\n\n")
		line(&builder, "Name", inquiries.SalutationLabel(contact.Salutation)+" "+contact.FullName())
		if contact.Company != "" {
			line(&builder, "Firma", contact.Company)
		}
		line(&builder, "E-Mail", contact.Email)
		line(&builder, "Telefon", contact.Phone)
		if contact.Message != "" {
			builder.WriteString("\n*Nachricht:*\n")
			builder.WriteString(escapeMarkdown(contact.Message))
			builder.WriteString("\n")
		}
	case event.Kind == EventOrder && event.Order != nil:
		order := event.Order
		builder.WriteString("🛢 *Neue Bestellanfrage*\n\n")
		line(&builder, "Name", inquiries.SalutationLabel(order.Salutation)+" "+order.FullName())
		if order.Company != "" {
			line(&builder, "Firma", order.Company)
		}
		line(&builder, "E-Mail", order.Email)
		line(&builder, "Telefon", order.Phone)
		line(&builder, "Adresse", fmt.Sprintf("%s, %s %s", order.Street, order.PostalCode, order.City))
		line(&builder, "Produkt", inquiries.ProductLabel(order.Product))
		line(&builder, "Menge", fmt.Sprintf("%d Liter", order.Quantity))
		line(&builder, "Abladestellen", fmt.Sprintf("%d", order.DeliveryPoints))
		line(&builder, "Lieferzeit", inquiries.DeliveryTimeLabel(order.DeliveryTime))
		if order.Message != "" {
			builder.WriteString("\n*Nachricht:*\n")
			builder.WriteString(escapeMarkdown(order.Message))
			builder.WriteString("\n")
		}
	default:
		builder.WriteString("✅ *Testnachricht*\n\n")
		builder.WriteString("Die Telegram-Benachrichtigungen sind eingerichtet.\n")
	}
	// Legacy Markdown has no escapes inside an entity, so the footer stays plain text.
	if siteName != "" {
		builder.WriteString("\n")
		builder.WriteString(escapeMarkdown(siteName))
	}
	return builder.String()
}

func line(builder *strings.Builder, label, value string) {
	builder.WriteString("*")
	builder.WriteString(label)
	builder.WriteString(":* ")
	builder.WriteString(escapeMarkdown(strings.TrimSpace(value)))
	builder.WriteString("\n")
}
