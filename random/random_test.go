package random

import (
	"strings"
	"testing"
)

func TestToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := Token()
		if err != nil {
			t.Fatal(err)
		}
		if len(tok) != TokenLength {
			t.Fatalf("token %q: expected length %d, got %d", tok, TokenLength, len(tok))
		}
		for _, r := range tok {
			if !strings.ContainsRune(urlset, r) {
				t.Fatalf("token %q contains %q", tok, r)
			}
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestStringLength(t *testing.T) {
	if got := String(12); len(got) != 12 {
		t.Fatalf("expected 12 chars, got %q", got)
	}
	s, err := StringSecure(8)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 8 {
		t.Fatalf("expected 8 chars, got %q", s)
	}
}
