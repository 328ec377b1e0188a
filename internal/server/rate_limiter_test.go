package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurst(t *testing.T) {
	limiter := newRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(), "token %d", i)
	}
	assert.False(t, limiter.Allow())
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := newRateLimiter(0, 0)
	assert.Equal(t, 1, limiter.Burst())
	assert.True(t, limiter.Allow())
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := newRateLimiter(2, 100*time.Millisecond)
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	assert.Eventually(t, limiter.Allow, time.Second, 10*time.Millisecond)
}
