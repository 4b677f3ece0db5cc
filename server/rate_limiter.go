package server

import (
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig configures the toggle endpoint limiter
type RateLimitConfig struct {
	MaxRequestsPerSecond int
	BurstSize            int
}

// DefaultRateLimitConfig returns a sensible default rate limiting configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MaxRequestsPerSecond: 10,
		BurstSize:            5,
	}
}

// RateLimiter implements a token bucket rate limiter for session toggles.
// Rapid start/stop churn would otherwise thrash bluetoothd registrations.
type RateLimiter struct {
	mu         sync.Mutex
	config     *RateLimitConfig
	tokens     int
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if config.MaxRequestsPerSecond <= 0 {
		config.MaxRequestsPerSecond = 1
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}

	return &RateLimiter{
		config:     config,
		tokens:     config.BurstSize,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow consumes a token if one is available
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillTokens(rl.now())

	if rl.tokens <= 0 {
		return false
	}
	rl.tokens--
	return true
}

// refillTokens adds tokens to the bucket based on elapsed time
// Must be called with mutex locked
func (rl *RateLimiter) refillTokens(now time.Time) {
	elapsed := now.Sub(rl.lastRefill)
	if elapsed <= 0 {
		return
	}

	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.MaxRequestsPerSecond))
	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.config.BurstSize {
			rl.tokens = rl.config.BurstSize
		}
		rl.lastRefill = now
	}
}

// Tokens returns the number of tokens currently available
func (rl *RateLimiter) Tokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillTokens(rl.now())
	return rl.tokens
}

// rateLimited rejects requests once the limiter runs dry
func (s *Server) rateLimited(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeErrorResponse(w, http.StatusTooManyRequests, "Too many requests", nil)
			return
		}
		handler(w, r)
	}
}
