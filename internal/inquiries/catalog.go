package inquiries

import (
	"fmt"
	"strings"
)

// OrderStatus tracks an order through fulfilment. Any status may follow any other.
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "pending"
	OrderStatusProcessing   OrderStatus = "processing"
	OrderStatusWantsInvoice OrderStatus = "wants_invoice"
	OrderStatusInvoiceSent  OrderStatus = "invoice_sent"
	OrderStatusPaid         OrderStatus = "paid"
)

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusPending:      "Offen",
	OrderStatusProcessing:   "In Bearbeitung",
	OrderStatusWantsInvoice: "Rechnung gewünscht",
	OrderStatusInvoiceSent:  "Rechnung versendet",
	OrderStatusPaid:         "Bezahlt",
}

// OrderStatuses lists every status in workflow order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusWantsInvoice,
		OrderStatusInvoiceSent,
		OrderStatusPaid,
	}
}

// ParseOrderStatus validates a raw status value.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := orderStatusLabels[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// Label returns the German display name.
func (s OrderStatus) Label() string {
	if label, ok := orderStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Option is a selectable form value with its German label.
type Option struct {
	Key   string
	Label string
}

var (
	salutations = []Option{
		{Key: "herr", Label: "Herr"},
		{Key: "frau", Label: "Frau"},
		{Key: "divers", Label: "Divers"},
	}
	products = []Option{
		{Key: "heizoel_standard", Label: "Heizöl EL Standard"},
		{Key: "heizoel_premium", Label: "Heizöl EL Premium"},
		{Key: "heizoel_bio", Label: "Bio-Heizöl (schwefelarm)"},
		{Key: "hvo", Label: "HVO (paraffinischer Brennstoff)"},
		{Key: "diesel", Label: "Diesel"},
	}
	deliveryTimes = []Option{
		{Key: "asap", Label: "So schnell wie möglich"},
		{Key: "two_weeks", Label: "Innerhalb von 2 Wochen"},
		{Key: "four_weeks", Label: "Innerhalb von 4 Wochen"},
		{Key: "flexible", Label: "Flexibel"},
	}
)

// Salutations lists the accepted salutations.
func Salutations() []Option { return append([]Option(nil), salutations...) }

// Products lists the product catalog.
func Products() []Option { return append([]Option(nil), products...) }

// DeliveryTimes lists the accepted delivery windows.
func DeliveryTimes() []Option { return append([]Option(nil), deliveryTimes...) }

// SalutationLabel resolves a salutation key.
func SalutationLabel(key string) string { return lookup(salutations, key) }

// ProductLabel resolves a product key.
func ProductLabel(key string) string { return lookup(products, key) }

// DeliveryTimeLabel resolves a delivery window key.
func DeliveryTimeLabel(key string) string { return lookup(deliveryTimes, key) }

// IsProduct reports whether key names a catalog product.
func IsProduct(key string) bool {
	for _, option := range products {
		if option.Key == key {
			return true
		}
	}
	return false
}

func lookup(options []Option, key string) string {
	for _, option := range options {
		if option.Key == key {
			return option.Label
		}
	}
	return key
}
