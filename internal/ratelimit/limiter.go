// Package ratelimit throttles login submissions per client.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the submission throttling configuration.
type Config struct {
	AttemptsPerSecond float64       // Sustained login attempts per second per client
	Burst             int           // Burst size per client
	CleanupInterval   time.Duration // How often to drop idle limiters
}

// DefaultConfig provides sensible defaults for login throttling.
var DefaultConfig = Config{
	AttemptsPerSecond: 1,
	Burst:             5,
	CleanupInterval:   time.Hour,
}

type limiterEntry struct {
	limiter *rate.Limiter
	// lastUsed holds unix nanoseconds; atomic so concurrent attempts from
	// the same client can touch it from the read-locked fast path.
	lastUsed atomic.Int64
}

func (e *limiterEntry) touch() {
	e.lastUsed.Store(time.Now().UnixNano())
}

// AttemptLimiter manages per-client token buckets for login attempts.
type AttemptLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	config   Config

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewAttemptLimiter creates a limiter with the given configuration and
// starts a background goroutine for cleanup.
func NewAttemptLimiter(config Config) *AttemptLimiter {
	l := &AttemptLimiter{
		limiters: make(map[string]*limiterEntry),
		config:   config,
		stopCh:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop()

	return l
}

// Allow reports whether a login attempt from the given client is within
// limits. The client key is typically the remote address.
func (l *AttemptLimiter) Allow(clientKey string) bool {
	return l.getLimiter(clientKey).Allow()
}

func (l *AttemptLimiter) getLimiter(clientKey string) *rate.Limiter {
	l.mu.RLock()
	entry, exists := l.limiters[clientKey]
	l.mu.RUnlock()
	if exists {
		entry.touch()
		return entry.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists = l.limiters[clientKey]
	if exists {
		entry.touch()
		return entry.limiter
	}

	entry = &limiterEntry{
		limiter: rate.NewLimiter(rate.Limit(l.config.AttemptsPerSecond), l.config.Burst),
	}
	entry.touch()
	l.limiters[clientKey] = entry

	return entry.limiter
}

// Cleanup removes limiters idle for longer than the cleanup interval.
func (l *AttemptLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.config.CleanupInterval).UnixNano()
	for clientKey, entry := range l.limiters {
		if entry.lastUsed.Load() < cutoff {
			delete(l.limiters, clientKey)
		}
	}
}

func (l *AttemptLimiter) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to finish.
func (l *AttemptLimiter) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

// Len returns the number of active limiters. Useful for tests.
func (l *AttemptLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}
