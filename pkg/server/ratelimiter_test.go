package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.CheckLimit("1.2.3.4"), "request %d should pass", i)
	}
	assert.False(t, rl.CheckLimit("1.2.3.4"))
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	assert.True(t, rl.CheckLimit("1.1.1.1"))
	assert.False(t, rl.CheckLimit("1.1.1.1"))
	assert.True(t, rl.CheckLimit("2.2.2.2"), "a different client has its own window")
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	assert.Equal(t, 0, rl.GetRetryAfter("1.2.3.4"), "unknown client needs no wait")

	rl.CheckLimit("1.2.3.4")
	retry := rl.GetRetryAfter("1.2.3.4")
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, 60)
}

func TestRateLimiterStopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.Stop()
	rl.Stop()
}
