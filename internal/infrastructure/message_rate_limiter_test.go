package infrastructure

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewMessageRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow(1) {
			t.Fatalf("send %d denied within burst", i+1)
		}
	}
	if rl.Allow(1) {
		t.Error("send allowed beyond burst capacity")
	}
}

func TestRateLimiterIsolatesTenants(t *testing.T) {
	rl := NewMessageRateLimiter(1, 1)

	if !rl.Allow(1) {
		t.Fatal("tenant 1 first send denied")
	}
	if rl.Allow(1) {
		t.Error("tenant 1 second send allowed")
	}
	if !rl.Allow(2) {
		t.Error("tenant 2 throttled by tenant 1's bucket")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewMessageRateLimiter(1, 1)

	rl.Allow(1)
	if rl.Allow(1) {
		t.Fatal("expected bucket exhausted")
	}

	rl.Reset(1)
	if !rl.Allow(1) {
		t.Error("send denied after reset")
	}
}

func TestRateLimiterWaitTime(t *testing.T) {
	rl := NewMessageRateLimiter(10, 1)

	rl.Allow(1)
	wait := rl.WaitTime(1)
	if wait <= 0 || wait > 200*time.Millisecond {
		t.Errorf("wait = %v, want between 0 and 100ms-ish", wait)
	}

	if rl.WaitTime(99) != 0 {
		t.Error("unknown tenant should have zero wait")
	}
}
