package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantLength int
	}{
		{"timer ID format", "timer_", 16, 22},
		{"no prefix", "", 8, 8},
		{"zero length", "x_", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := GenerateRandomID(tt.prefix, tt.hexLength)
			if !strings.HasPrefix(id, tt.prefix) {
				t.Errorf("GenerateRandomID() = %q, want prefix %q", id, tt.prefix)
			}
			if len(id) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %d, want %d", len(id), tt.wantLength)
			}
			for _, c := range strings.TrimPrefix(id, tt.prefix) {
				if !strings.ContainsRune("0123456789abcdef", c) {
					t.Errorf("GenerateRandomID() = %q contains non-hex %q", id, c)
				}
			}
		})
	}
}

func TestGenerateRandomHex_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		h := GenerateRandomHex(16)
		if seen[h] {
			t.Fatalf("duplicate hex %q after %d draws", h, i)
		}
		seen[h] = true
	}
}
