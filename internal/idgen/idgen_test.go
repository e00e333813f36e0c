package idgen

import (
	"strings"
	"testing"
)

func TestGenerateWithPrefix(t *testing.T) {
	id, err := GenerateWithPrefix(PrefixEntry)
	if err != nil {
		t.Fatalf("GenerateWithPrefix: %v", err)
	}
	if !strings.HasPrefix(id, PrefixEntry) {
		t.Errorf("id %q missing prefix %q", id, PrefixEntry)
	}
	if len(id) != len(PrefixEntry)+Length {
		t.Errorf("id %q length %d, want %d", id, len(id), len(PrefixEntry)+Length)
	}
}

func TestGenerateWithPrefix_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := GenerateWithPrefix(PrefixSOS)
		if err != nil {
			t.Fatalf("GenerateWithPrefix: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
