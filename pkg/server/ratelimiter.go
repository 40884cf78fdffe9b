package server

import (
	"sync"
	"time"
)

// RateLimitState tracks request timestamps for one client IP
type RateLimitState struct {
	Requests []int64
}

// RateLimiter implements per-IP rate limiting with a sliding window
type RateLimiter struct {
	limits            map[string]*RateLimitState
	maxRequestsPerMin int
	mu                sync.Mutex
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxRequestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		limits:            make(map[string]*RateLimitState),
		maxRequestsPerMin: maxRequestsPerMinute,
		cleanupInterval:   5 * time.Minute,
		stopCleanup:       make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.startCleanup()

	return rl
}

// CheckLimit checks if a request from the given IP is allowed
func (rl *RateLimiter) CheckLimit(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now().UnixMilli()

	state, exists := rl.limits[ip]
	if !exists {
		state = &RateLimitState{}
		rl.limits[ip] = state
	}

	// Remove requests older than 1 minute (sliding window)
	valid := state.Requests[:0]
	for _, reqTime := range state.Requests {
		if now-reqTime < 60000 {
			valid = append(valid, reqTime)
		}
	}
	state.Requests = valid

	if len(state.Requests) >= rl.maxRequestsPerMin {
		return false
	}

	state.Requests = append(state.Requests, now)
	return true
}

// GetRetryAfter returns the number of seconds until the limit resets
func (rl *RateLimiter) GetRetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, exists := rl.limits[ip]
	if !exists || len(state.Requests) == 0 {
		return 0
	}

	now := time.Now().UnixMilli()
	oldest := state.Requests[0]
	remainingMs := 60000 - (now - oldest)
	if remainingMs <= 0 {
		return 0
	}
	return int((remainingMs + 999) / 1000)
}

// startCleanup drops idle IP entries periodically
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now().UnixMilli()
	for ip, state := range rl.limits {
		if len(state.Requests) == 0 || now-state.Requests[len(state.Requests)-1] > 60000 {
			delete(rl.limits, ip)
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
