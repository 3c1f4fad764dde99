package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDProviderIssuesVersion7(t *testing.T) {
	provider := NewUUIDProvider()
	first, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected id error: %v", err)
	}
	parsed, err := uuid.Parse(first)
	if err != nil {
		t.Fatalf("expected uuid, got %q: %v", first, err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
	second, _ := provider.NewID()
	if second == first {
		t.Fatalf("expected distinct ids")
	}
}

func TestSequenceSortsInIssueOrder(t *testing.T) {
	sequence := &Sequence{Prefix: "order-"}
	first, _ := sequence.NewID()
	second, _ := sequence.NewID()
	if first != "order-000001" {
		t.Fatalf("unexpected first id %q", first)
	}
	if !(first < second) {
		t.Fatalf("expected %q < %q", first, second)
	}
}
