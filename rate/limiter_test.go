package rate

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	interval := 50 * time.Millisecond
	r := NewLimiter(1, interval, time.Hour)
	defer r.Close()

	tooshort := 1 * time.Millisecond

	client := "test@test.com"
	expected := []bool{true, false, true, false}
	waits := []time.Duration{tooshort, 2 * interval, tooshort, tooshort}
	for i, exp := range expected {
		if got := r.Allow(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterWithBurst(t *testing.T) {
	client := "test@test.com"
	burst := 5

	rr := NewLimiter(burst, time.Hour, time.Hour)
	defer rr.Close()

	for i := 0; i < burst; i++ {
		if !rr.Allow(client) {
			t.Fatalf("iteration %d: expected attempt within burst to be allowed", i)
		}
	}
	if rr.Allow(client) {
		t.Fatal("expected attempt past the burst to be rejected")
	}
}

func TestLimiterKeysAreNormalized(t *testing.T) {
	rr := NewLimiter(1, time.Hour, time.Hour)
	defer rr.Close()

	if !rr.Allow("Test@Test.com ") {
		t.Fatal("expected first attempt to be allowed")
	}
	if rr.Allow("test@test.com") {
		t.Fatal("expected the same key in a different case to share the budget")
	}
	if !rr.Allow("other@test.com") {
		t.Fatal("expected other keys to be independent")
	}
	if n := rr.size(); n != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", n)
	}
}

func TestLimiterForgetsIdleKeys(t *testing.T) {
	rr := NewLimiter(1, time.Hour, 20*time.Millisecond)
	defer rr.Close()

	rr.Allow("idle@test.com")

	deadline := time.Now().Add(2 * time.Second)
	for rr.size() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle key was never forgotten")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
