package resolver

import (
	"bytes"
	"testing"
)

func TestNamehash(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "0x0000000000000000000000000000000000000000000000000000000000000000"},
		{"eth", "0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae"},
		{"foo.eth", "0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Namehash(tt.name).Hex(); got != tt.want {
				t.Errorf("Namehash(%q) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestDNSEncode(t *testing.T) {
	got, err := DNSEncode("foo.eth")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{3, 'f', 'o', 'o', 3, 'e', 't', 'h', 0}
	if !bytes.Equal(got, want) {
		t.Errorf("DNSEncode = %v, want %v", got, want)
	}

	if _, err := DNSEncode("foo..eth"); err == nil {
		t.Error("expected error for empty label")
	}
}
