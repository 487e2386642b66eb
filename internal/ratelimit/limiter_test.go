package ratelimit

import (
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

func clientKeyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)
}

// =============================================================================
// Property: attempts within the burst succeed
// =============================================================================

func testAttemptLimiter_WithinBurstAllowed(t *rapid.T) {
	config := Config{
		AttemptsPerSecond: 100,
		Burst:             50,
		CleanupInterval:   time.Hour,
	}

	l := NewAttemptLimiter(config)
	defer l.Stop()

	clientKey := clientKeyGenerator().Draw(t, "clientKey")
	numAttempts := rapid.IntRange(1, config.Burst/2).Draw(t, "numAttempts")

	for i := 0; i < numAttempts; i++ {
		if !l.Allow(clientKey) {
			t.Fatalf("attempt %d of %d should have been allowed (burst %d)", i+1, numAttempts, config.Burst)
		}
	}
}

func TestAttemptLimiter_WithinBurstAllowed(t *testing.T) {
	rapid.Check(t, testAttemptLimiter_WithinBurstAllowed)
}

func FuzzAttemptLimiter_WithinBurstAllowed(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testAttemptLimiter_WithinBurstAllowed))
}

// =============================================================================
// Property: attempts beyond the burst are blocked
// =============================================================================

func testAttemptLimiter_BeyondBurstBlocked(t *rapid.T) {
	config := Config{
		AttemptsPerSecond: 0.001,
		Burst:             rapid.IntRange(1, 10).Draw(t, "burst"),
		CleanupInterval:   time.Hour,
	}

	l := NewAttemptLimiter(config)
	defer l.Stop()

	clientKey := clientKeyGenerator().Draw(t, "clientKey")

	for i := 0; i < config.Burst; i++ {
		l.Allow(clientKey)
	}

	if l.Allow(clientKey) {
		t.Fatalf("attempt beyond burst of %d should have been blocked", config.Burst)
	}
}

func TestAttemptLimiter_BeyondBurstBlocked(t *testing.T) {
	rapid.Check(t, testAttemptLimiter_BeyondBurstBlocked)
}

func FuzzAttemptLimiter_BeyondBurstBlocked(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testAttemptLimiter_BeyondBurstBlocked))
}

// =============================================================================
// Property: clients are throttled independently
// =============================================================================

func testAttemptLimiter_ClientIndependence(t *rapid.T) {
	config := Config{
		AttemptsPerSecond: 0.001,
		Burst:             5,
		CleanupInterval:   time.Hour,
	}

	l := NewAttemptLimiter(config)
	defer l.Stop()

	clientA := clientKeyGenerator().Draw(t, "clientA")
	clientB := clientKeyGenerator().Filter(func(s string) bool {
		return s != clientA
	}).Draw(t, "clientB")

	for i := 0; i < config.Burst; i++ {
		l.Allow(clientA)
	}
	if l.Allow(clientA) {
		t.Fatal("clientA should be blocked after exhausting burst")
	}

	if !l.Allow(clientB) {
		t.Fatal("clientB should be unaffected by clientA's throttling")
	}
}

func TestAttemptLimiter_ClientIndependence(t *testing.T) {
	rapid.Check(t, testAttemptLimiter_ClientIndependence)
}

func FuzzAttemptLimiter_ClientIndependence(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testAttemptLimiter_ClientIndependence))
}

// =============================================================================
// Idle limiters are cleaned up; Stop shuts down cleanly
// =============================================================================

func TestAttemptLimiter_ConcurrentSameClient(t *testing.T) {
	config := Config{
		AttemptsPerSecond: 100000,
		Burst:             100000,
		CleanupInterval:   time.Hour,
	}

	l := NewAttemptLimiter(config)
	defer l.Stop()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if !l.Allow("203.0.113.10") {
					panic("attempt within a huge burst was blocked")
				}
			}
		}()
	}
	wg.Wait()

	if l.Len() != 1 {
		t.Fatalf("expected a single limiter for one client, got %d", l.Len())
	}
}

func TestAttemptLimiter_IdleCleanup(t *testing.T) {
	config := Config{
		AttemptsPerSecond: 100,
		Burst:             50,
		CleanupInterval:   10 * time.Millisecond,
	}

	l := NewAttemptLimiter(config)
	defer l.Stop()

	l.Allow("203.0.113.7")
	l.Allow("203.0.113.8")
	if l.Len() != 2 {
		t.Fatalf("expected 2 limiters, got %d", l.Len())
	}

	time.Sleep(15 * time.Millisecond)
	l.Cleanup()

	if l.Len() != 0 {
		t.Fatalf("expected idle limiters to be dropped, got %d", l.Len())
	}
}

func TestAttemptLimiter_StopGracefulShutdown(t *testing.T) {
	l := NewAttemptLimiter(DefaultConfig)
	l.Allow("203.0.113.9")

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return within timeout - possible goroutine leak")
	}
}
