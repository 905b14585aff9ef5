package httpserver

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestGlobalConnectionLimiter_AcquireRelease(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(2)

	assert.True(t, limiter.Acquire())
	assert.True(t, limiter.Acquire())
	assert.False(t, limiter.Acquire())
	assert.Equal(t, int64(2), limiter.Current())
	assert.Equal(t, 100.0, limiter.CapacityPct())

	limiter.Release()
	assert.True(t, limiter.Acquire())
}

func TestGlobalConnectionLimiter_Concurrent(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(50)
	var granted atomic.Int64

	start := make(chan struct{})
	var wg sync.WaitGroup
	for range 120 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.Acquire() {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(50), granted.Load())
	assert.Equal(t, int64(50), limiter.Current())
}

func TestGlobalConnectionLimiter_ZeroMax(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(0)
	assert.False(t, limiter.Acquire())
	assert.Equal(t, 0.0, limiter.CapacityPct())
}

func TestIPConnectionLimiter(t *testing.T) {
	limiter := NewIPConnectionLimiter(2)

	assert.True(t, limiter.Acquire("10.0.0.1"))
	assert.True(t, limiter.Acquire("10.0.0.1"))
	assert.False(t, limiter.Acquire("10.0.0.1"))
	assert.True(t, limiter.Acquire("10.0.0.2"))
	assert.Equal(t, 2, limiter.UniqueIPs())

	limiter.Release("10.0.0.1")
	limiter.Release("10.0.0.1")
	assert.Equal(t, 0, limiter.Count("10.0.0.1"))
	assert.Equal(t, 1, limiter.UniqueIPs(), "released IPs are forgotten")
}

func TestConnectionRateLimiter_BurstAndRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewConnectionRateLimiter(clock, 1, 2)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "buckets are per IP")

	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
}

func TestConnectionRateLimiter_DropsIdleBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewConnectionRateLimiter(clock, 1, 1)

	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.2")
	assert.Equal(t, 2, limiter.ActiveLimiters())

	clock.Advance(rateLimiterIdle + rateLimiterCleanup)
	limiter.Allow("10.0.0.3")

	assert.Equal(t, 1, limiter.ActiveLimiters())
}

func TestConnectionLimits_Reasons(t *testing.T) {
	clock := clockwork.NewFakeClock()

	t.Run("global", func(t *testing.T) {
		limits := newConnectionLimits(clock, 1, 5, 100, 100)
		ok, _ := limits.Acquire("10.0.0.1")
		assert.True(t, ok)
		ok, reason := limits.Acquire("10.0.0.2")
		assert.False(t, ok)
		assert.Equal(t, LimitReasonGlobal, reason)
	})

	t.Run("per ip rolls back the global slot", func(t *testing.T) {
		limits := newConnectionLimits(clock, 10, 1, 100, 100)
		ok, _ := limits.Acquire("10.0.0.1")
		assert.True(t, ok)
		ok, reason := limits.Acquire("10.0.0.1")
		assert.False(t, ok)
		assert.Equal(t, LimitReasonPerIP, reason)
		assert.Equal(t, int64(1), limits.Global().Current())
	})

	t.Run("rate", func(t *testing.T) {
		limits := newConnectionLimits(clock, 10, 10, 1, 1)
		ok, _ := limits.Acquire("10.0.0.1")
		assert.True(t, ok)
		ok, reason := limits.Acquire("10.0.0.1")
		assert.False(t, ok)
		assert.Equal(t, LimitReasonRate, reason)
		assert.Equal(t, int64(1), limits.Global().Current())
	})
}

func TestConnectionLimits_Release(t *testing.T) {
	limits := newConnectionLimits(clockwork.NewFakeClock(), 10, 10, 100, 100)

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)
	assert.Equal(t, 1, limits.PerIP().UniqueIPs())

	limits.Release("10.0.0.1")
	assert.Equal(t, int64(0), limits.Global().Current())
	assert.Equal(t, 0, limits.PerIP().UniqueIPs())
}
