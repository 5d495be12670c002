package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slack absorbs float rounding inside rate.Limiter's token arithmetic.
const slack = 2 * time.Millisecond

// TestAcquire_Spacing verifies N sequential acquires take (N-1) intervals
func TestAcquire_Spacing(t *testing.T) {
	lim := New(600) // one permit every 100ms
	require.Equal(t, 100*time.Millisecond, lim.Interval())

	start := time.Now()
	for range 4 {
		require.NoError(t, lim.Acquire(context.Background(), "leibal.com"))
	}

	assert.GreaterOrEqual(t, time.Since(start), 3*lim.Interval()-slack)
}

// TestAcquire_FirstIsImmediate verifies a fresh key does not wait
func TestAcquire_FirstIsImmediate(t *testing.T) {
	lim := New(1)

	start := time.Now()
	require.NoError(t, lim.Acquire(context.Background(), "example.com"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestAcquire_KeysAreIndependent verifies one host does not delay another
func TestAcquire_KeysAreIndependent(t *testing.T) {
	lim := New(1) // one per minute

	ctx := context.Background()
	require.NoError(t, lim.Acquire(ctx, "a.example"))

	start := time.Now()
	require.NoError(t, lim.Acquire(ctx, "b.example"))
	require.NoError(t, lim.Acquire(ctx, ""))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestAcquire_Concurrent verifies concurrent callers never share a window
func TestAcquire_Concurrent(t *testing.T) {
	lim := New(1200) // 50ms
	const callers = 5

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lim.Acquire(context.Background(), "host"); err == nil {
				mu.Lock()
				times = append(times, time.Now())
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, times, callers)
	first, last := times[0], times[0]
	for _, ts := range times {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), (callers-1)*lim.Interval()-slack)
}

// TestAcquire_ContextCancelled verifies waiting stops with the context
func TestAcquire_ContextCancelled(t *testing.T) {
	lim := New(1)
	require.NoError(t, lim.Acquire(context.Background(), "host"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, lim.Acquire(ctx, "host"))
}

// TestNew_Unlimited verifies a zero rate never blocks
func TestNew_Unlimited(t *testing.T) {
	lim := New(0)
	assert.Zero(t, lim.Interval())

	start := time.Now()
	for range 100 {
		require.NoError(t, lim.Acquire(context.Background(), "host"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
