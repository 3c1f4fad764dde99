// Package ids issues record identifiers.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Provider issues unique record identifiers.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers, which sort by creation time.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Sequence is a deterministic Provider for tests and fixtures.
type Sequence struct {
	Prefix string

	mu   sync.Mutex
	next int
}

// NewID returns Prefix followed by a zero padded counter so ids sort in issue order.
func (s *Sequence) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("%s%06d", s.Prefix, s.next), nil
}
