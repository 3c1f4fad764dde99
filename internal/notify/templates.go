package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
)

const emailLayout = `<!DOCTYPE html>
<html lang="de">
<body style="font-family: Arial, sans-serif; color: #1f2933;">
<h2>{{.Heading}}</h2>
{{template "body" .}}
<p style="color:#6b7280;font-size:12px;">{{.SiteName}}</p>
</body>
</html>`

const contactBody = `{{define "body"}}
<p>Guten Tag {{salutation .Contact.Salutation}} {{.Contact.LastName}},</p>
<p>vielen Dank für Ihre Nachricht. Wir melden uns schnellstmöglich bei Ihnen.</p>
<table cellpadding="4">
<tr><td><strong>Name</strong></td><td>{{.Contact.FirstName}} {{.Contact.LastName}}</td></tr>
{{if .Contact.Company}}<tr><td><strong>Firma</strong></td><td>{{.Contact.Company}}</td></tr>{{end}}
<tr><td><strong>E-Mail</strong></td><td>{{.Contact.Email}}</td></tr>
<tr><td><strong>Telefon</strong></td><td>{{.Contact.Phone}}</td></tr>
</table>
{{if .Contact.Message}}<p><strong>Ihre Nachricht:</strong><br>{{nl2br .Contact.Message}}</p>{{end}}
{{end}}`

const orderBody = `{{define "body"}}
<p>Guten Tag {{salutation .Order.Salutation}} {{.Order.LastName}},</p>
<p>vielen Dank für Ihre Bestellanfrage. Wir prüfen die Angaben und melden uns mit einem Angebot.</p>
<table cellpadding="4">
<tr><td><strong>Produkt</strong></td><td>{{product .Order.Product}}</td></tr>
<tr><td><strong>Menge</strong></td><td>{{.Order.Quantity}} Liter</td></tr>
<tr><td><strong>Abladestellen</strong></td><td>{{.Order.DeliveryPoints}}</td></tr>
<tr><td><strong>Lieferzeit</strong></td><td>{{deliveryTime .Order.DeliveryTime}}</td></tr>
<tr><td><strong>Lieferadresse</strong></td><td>{{.Order.Street}}, {{.Order.PostalCode}} {{.Order.City}}</td></tr>
<tr><td><strong>Telefon</strong></td><td>{{.Order.Phone}}</td></tr>
</table>
{{if .Order.Message}}<p><strong>Ihre Nachricht:</strong><br>{{nl2br .Order.Message}}</p>{{end}}
{{end}}`

const testBody = `{{define "body"}}
<p>Dies ist eine Test-E-Mail. Der E-Mail-Versand ist korrekt eingerichtet.</p>
{{end}}`

var templateFuncs = template.FuncMap{
	"nl2br":        nl2br,
	"salutation":   inquiries.SalutationLabel,
	"product":      inquiries.ProductLabel,
	"deliveryTime": inquiries.DeliveryTimeLabel,
}

var emailTemplates = map[EventKind]*template.Template{
	EventContact: template.Must(template.Must(template.New("layout").Funcs(templateFuncs).Parse(emailLayout)).Parse(contactBody)),
	EventOrder:   template.Must(template.Must(template.New("layout").Funcs(templateFuncs).Parse(emailLayout)).Parse(orderBody)),
	EventTest:    template.Must(template.Must(template.New("layout").Funcs(templateFuncs).Parse(emailLayout)).Parse(testBody)),
}

type emailView struct {
	Heading  string
	SiteName string
	Contact  *inquiries.ContactRequest
	Order    *inquiries.Order
}

// renderEmail returns the subject and escaped HTML body for the event.
func renderEmail(event Event, siteName string) (string, string, error) {
	tmpl, ok := emailTemplates[event.Kind]
	if !ok {
		return "", "", fmt.Errorf("notify: no email template for %q", event.Kind)
	}
	subject := subjectFor(event, siteName)
	view := emailView{
		Heading:  subject,
		SiteName: siteName,
		Contact:  event.Contact,
		Order:    event.Order,
	}
	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, view); err != nil {
		return "", "", err
	}
	return subject, buffer.String(), nil
}

func subjectFor(event Event, siteName string) string {
	switch event.Kind {
	case EventContact:
		return fmt.Sprintf("Ihre Anfrage bei %s", siteName)
	case EventOrder:
		return fmt.Sprintf("Ihre Bestellanfrage bei %s", siteName)
	default:
		return fmt.Sprintf("Test-E-Mail von %s", siteName)
	}
}

// nl2br escapes text and turns line breaks into <br> tags.
func nl2br(text string) template.HTML {
	escaped := template.HTMLEscapeString(strings.ReplaceAll(text, "\r\n", "\n"))
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}
