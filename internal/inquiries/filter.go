package inquiries

import (
	"strings"
	"time"
)

// ContactFilter narrows a contact request listing.
type ContactFilter struct {
	Search string
	Since  time.Time
}

// Matches applies a case-insensitive substring match over name, email and company.
func (f ContactFilter) Matches(request ContactRequest) bool {
	if !f.Since.IsZero() && request.CreatedAt.Before(f.Since) {
		return false
	}
	return containsFold(f.Search, request.FullName(), request.Email, request.Company)
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	Search string
	Status OrderStatus
}

// Matches applies status equality and a case-insensitive substring match over
// name, email, company and product.
func (f OrderFilter) Matches(order Order) bool {
	if f.Status != "" && order.Status != f.Status {
		return false
	}
	return containsFold(f.Search, order.FullName(), order.Email, order.Company, order.Product, ProductLabel(order.Product))
}

func containsFold(needle string, haystacks ...string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return true
	}
	for _, haystack := range haystacks {
		if strings.Contains(strings.ToLower(haystack), needle) {
			return true
		}
	}
	return false
}
