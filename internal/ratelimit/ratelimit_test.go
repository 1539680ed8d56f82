package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_Wait(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first call must not wait")

	start = time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSimpleRateLimiter_Cancelled(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestSimpleRateLimiter_Jitter(t *testing.T) {
	r := NewSimpleRateLimiter(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 50; i++ {
		d := r.calculateDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
}

func TestAdaptiveRateLimiter(t *testing.T) {
	a := NewAdaptiveRateLimiter(time.Second, 2*time.Second)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	minDelay, maxDelay := a.Delays()
	assert.Equal(t, 1500*time.Millisecond, minDelay)
	assert.Equal(t, 3*time.Second, maxDelay)

	for i := 0; i < 6; i++ {
		a.RecordSuccess()
	}
	minDelay, _ = a.Delays()
	assert.Equal(t, 1350*time.Millisecond, minDelay)

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}
	minDelay, _ = a.Delays()
	assert.Equal(t, time.Second, minDelay, "never faster than the configured floor")
}
