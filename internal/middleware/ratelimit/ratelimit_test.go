package ratelimit

import (
	"testing"
	"time"
)

func TestAllowUpToLimit(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 3, WindowDuration: time.Minute})

	for i := 0; i < 3; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d blocked below the limit", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request over the limit was allowed")
	}
}

func TestSeparateKeysDoNotShareWindows(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1, WindowDuration: time.Minute})

	if !rl.allow("10.0.0.1") {
		t.Fatal("first key blocked")
	}
	if rl.allow("10.0.0.1") {
		t.Error("first key allowed past its limit")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("second key blocked by the first key's window")
	}
}

func TestWindowResets(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1, WindowDuration: 20 * time.Millisecond})

	if !rl.allow("10.0.0.1") {
		t.Fatal("first request blocked")
	}
	if rl.allow("10.0.0.1") {
		t.Error("second request allowed inside the window")
	}

	time.Sleep(30 * time.Millisecond)

	if !rl.allow("10.0.0.1") {
		t.Error("request blocked after the window expired")
	}
}

func TestDefaults(t *testing.T) {
	rl := New(Config{})

	if rl.maxRequests != 60 {
		t.Errorf("maxRequests = %d, want 60", rl.maxRequests)
	}
	if rl.duration != time.Minute {
		t.Errorf("duration = %v, want 1m", rl.duration)
	}
	if rl.logger == nil {
		t.Error("logger not defaulted")
	}
}
