package auth

import "testing"

func TestParseToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "TOKEN key-123", "key-123", true},
		{"empty header", "", "", false},
		{"missing key", "TOKEN ", "", false},
		{"missing scheme", "key-123", "", false},
		{"wrong scheme", "Bearer key-123", "", false},
		{"lowercase scheme", "token key-123", "", false},
		{"key with spaces kept whole", "TOKEN key with spaces", "key with spaces", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseToken(tt.header)
			if ok != tt.ok {
				t.Fatalf("ParseToken(%q) ok = %v, want %v", tt.header, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParseToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
