package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter(t *testing.T) {
	t.Run("allows burst then denies", func(t *testing.T) {
		rl := NewRateLimiter(3, 3)

		require.NotNil(t, rl)
		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow(), "request %d should be within burst", i+1)
		}
		assert.False(t, rl.Allow())
	})

	t.Run("fractional rate", func(t *testing.T) {
		// 0.5 requests per second, one request every 2 seconds.
		rl := NewRateLimiter(0.5, 1)

		assert.True(t, rl.Allow())
		assert.False(t, rl.Allow())
	})
}

func TestNewIntervalLimiter(t *testing.T) {
	t.Run("single token, no burst", func(t *testing.T) {
		rl := NewIntervalLimiter(2 * time.Second)

		assert.True(t, rl.Allow())
		assert.False(t, rl.Allow(), "second request inside the interval must be denied")
	})

	t.Run("non-positive interval means unlimited", func(t *testing.T) {
		rl := NewIntervalLimiter(0)

		for i := 0; i < 100; i++ {
			require.True(t, rl.Allow())
		}
	})

	t.Run("enforces minimum spacing across sequential calls", func(t *testing.T) {
		// Scaled-down version of the scholar gateway gap: with a 200ms
		// interval, three sequential calls must span at least two gaps.
		rl := NewIntervalLimiter(200 * time.Millisecond)

		ctx := context.Background()
		start := time.Now()
		for i := 0; i < 3; i++ {
			require.NoError(t, rl.Wait(ctx))
		}
		elapsed := time.Since(start)

		assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond,
			"three calls with a 200ms gap must take at least 400ms, took %v", elapsed)
	})
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("burst requests are nearly instant", func(t *testing.T) {
		rl := NewRateLimiter(100, 5)

		ctx := context.Background()
		start := time.Now()
		for i := 0; i < 5; i++ {
			require.NoError(t, rl.Wait(ctx))
		}

		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("returns error when context is canceled", func(t *testing.T) {
		rl := NewIntervalLimiter(time.Hour)
		require.NoError(t, rl.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := rl.Wait(ctx)
		assert.Error(t, err)
	})
}

func TestRateLimiter_SetRate(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	rl.SetRate(1000)
	time.Sleep(10 * time.Millisecond)
	assert.True(t, rl.Allow())
}
