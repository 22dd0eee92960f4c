package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_NoDelayOnFirstRequest(t *testing.T) {
	rl := NewRateLimiter(5*time.Second, testLogger())

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background(), "fresh-host.com"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_SpacesRequestsPerHost(t *testing.T) {
	rl := NewRateLimiter(100*time.Millisecond, testLogger())
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx, "example.com"))
	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "example.com"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestRateLimiter_HostsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(5*time.Second, testLogger())
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx, "a.example.com"))
	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "b.example.com"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_RespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(5*time.Second, testLogger())
	require.NoError(t, rl.Wait(context.Background(), "example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rl.Wait(ctx, "example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimiter_ZeroIntervalDisables(t *testing.T) {
	rl := NewRateLimiter(0, testLogger())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, rl.Wait(ctx, "example.com"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_SetHostIntervalOnlyRaises(t *testing.T) {
	rl := NewRateLimiter(time.Second, testLogger())

	rl.SetHostInterval("example.com", 10*time.Millisecond)
	assert.Equal(t, limitFor(time.Second), rl.limiter("example.com").Limit())

	rl.SetHostInterval("example.com", 3*time.Second)
	assert.Equal(t, limitFor(3*time.Second), rl.limiter("example.com").Limit())
}
