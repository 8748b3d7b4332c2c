package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newLimiter(win time.Duration, max int) (*FixedWindow, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewFixedWindow("test", win, max)
	l.now = clock.Now
	return l, clock
}

func TestAllowUpToMax(t *testing.T) {
	l, _ := newLimiter(time.Minute, 10)
	for i := 1; i <= 10; i++ {
		d, err := l.Allow("10.0.0.1")
		require.NoError(t, err, "request %d", i)
		assert.Equal(t, 10-i, d.Remaining)
		assert.Equal(t, 10, d.Limit)
	}

	d, err := l.Allow("10.0.0.1")
	assert.ErrorIs(t, err, ErrRateExceeded)
	assert.Equal(t, 0, d.Remaining)
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestClientsAreIndependent(t *testing.T) {
	l, _ := newLimiter(time.Minute, 1)
	_, err := l.Allow("a")
	require.NoError(t, err)
	_, err = l.Allow("a")
	assert.ErrorIs(t, err, ErrRateExceeded)
	_, err = l.Allow("b")
	assert.NoError(t, err)
}

func TestRetryAfterCountsDownToWindowEnd(t *testing.T) {
	l, clock := newLimiter(time.Minute, 1)
	_, _ = l.Allow("a")
	clock.Advance(20 * time.Second)
	d, err := l.Allow("a")
	assert.ErrorIs(t, err, ErrRateExceeded)
	assert.Equal(t, 40*time.Second, d.RetryAfter)
}

func TestWindowResetsAfterElapsed(t *testing.T) {
	l, clock := newLimiter(time.Minute, 2)
	_, _ = l.Allow("a")
	_, _ = l.Allow("a")
	_, err := l.Allow("a")
	require.ErrorIs(t, err, ErrRateExceeded)

	// exactly at the boundary the old window still applies
	clock.Advance(time.Minute)
	_, err = l.Allow("a")
	assert.ErrorIs(t, err, ErrRateExceeded)

	clock.Advance(time.Millisecond)
	d, err := l.Allow("a")
	assert.NoError(t, err)
	assert.Equal(t, 1, d.Remaining)
}

func TestSweepEvictsElapsedWindows(t *testing.T) {
	l, clock := newLimiter(time.Minute, 5)
	_, _ = l.Allow("old")
	clock.Advance(45 * time.Second)
	_, _ = l.Allow("fresh")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	// evicted client starts over with a full window
	d, err := l.Allow("old")
	require.NoError(t, err)
	assert.Equal(t, 4, d.Remaining)
}

func TestConcurrentAllowNeverExceedsMax(t *testing.T) {
	l, _ := newLimiter(time.Minute, 50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Allow("shared"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, admitted)
}
