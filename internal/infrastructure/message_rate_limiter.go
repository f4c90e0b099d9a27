package infrastructure

import (
	"sync"
	"time"
)

// MessageRateLimiter throttles outbound WhatsApp sends per tenant with a
// token bucket. Keeps auto-replies from hammering the WhatsApp connection.
type MessageRateLimiter struct {
	mu          sync.RWMutex
	buckets     map[int]*tokenBucket
	rate        float64 // tokens per second
	maxTokens   float64 // burst capacity
	cleanupTick time.Duration
}

type tokenBucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewMessageRateLimiter creates a limiter allowing `rate` sends per second
// with the given burst capacity.
func NewMessageRateLimiter(rate float64, burst int) *MessageRateLimiter {
	rl := &MessageRateLimiter{
		buckets:     make(map[int]*tokenBucket),
		rate:        rate,
		maxTokens:   float64(burst),
		cleanupTick: 5 * time.Minute,
	}

	go rl.cleanup()

	return rl
}

// Allow checks if the tenant can send a message (consumes 1 token if allowed)
func (rl *MessageRateLimiter) Allow(userID int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[userID]
	now := time.Now()

	if !exists {
		rl.buckets[userID] = &tokenBucket{
			tokens:     rl.maxTokens - 1,
			lastUpdate: now,
		}
		return true
	}

	// Refill tokens based on time elapsed
	elapsed := now.Sub(bucket.lastUpdate).Seconds()
	bucket.tokens += elapsed * rl.rate
	if bucket.tokens > rl.maxTokens {
		bucket.tokens = rl.maxTokens
	}
	bucket.lastUpdate = now

	if bucket.tokens >= 1 {
		bucket.tokens -= 1
		return true
	}

	return false
}

// WaitTime returns how long to wait before the next send is allowed
func (rl *MessageRateLimiter) WaitTime(userID int) time.Duration {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	bucket, exists := rl.buckets[userID]
	if !exists {
		return 0
	}

	now := time.Now()
	elapsed := now.Sub(bucket.lastUpdate).Seconds()
	currentTokens := bucket.tokens + elapsed*rl.rate

	if currentTokens >= 1 {
		return 0
	}

	needed := 1 - currentTokens
	waitSeconds := needed / rl.rate
	return time.Duration(waitSeconds * float64(time.Second))
}

// Reset removes rate limit state for a tenant
func (rl *MessageRateLimiter) Reset(userID int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, userID)
}

// cleanup removes stale buckets periodically
func (rl *MessageRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupTick)
	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for userID, bucket := range rl.buckets {
			if now.Sub(bucket.lastUpdate) > 10*time.Minute {
				delete(rl.buckets, userID)
			}
		}
		rl.mu.Unlock()
	}
}

// GetStats returns rate limiter statistics
func (rl *MessageRateLimiter) GetStats() map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return map[string]interface{}{
		"active_tenants": len(rl.buckets),
		"rate":           rl.rate,
		"burst":          rl.maxTokens,
	}
}
