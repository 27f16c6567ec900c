package uid

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewIsHexAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if len(id) != 32 {
			t.Fatalf("len(New()) = %d, want 32", len(id))
		}
		for _, c := range id {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				t.Fatalf("New() = %q contains non-hex %q", id, c)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestRunIDParses(t *testing.T) {
	if _, err := uuid.Parse(RunID()); err != nil {
		t.Errorf("RunID() not a UUID: %v", err)
	}
}
