package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, limit int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	l := New(limit, time.Minute, zaptest.NewLogger(t))
	l.now = clock.Now
	return l, clock
}

func TestAdmit_DeniesExactlyTheRequestPastTheLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 10)

	for i := 1; i <= 10; i++ {
		require.True(t, l.Admit("10.0.0.1"), "request %d should be admitted", i)
	}
	require.False(t, l.Admit("10.0.0.1"), "request 11 should be denied")
	require.False(t, l.Admit("10.0.0.1"), "denials do not reopen the window")
}

func TestAdmit_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 1)

	require.True(t, l.Admit("10.0.0.1"))
	require.False(t, l.Admit("10.0.0.1"))
	require.True(t, l.Admit("10.0.0.2"))
}

func TestAdmit_ResetsAfterWindowExpiry(t *testing.T) {
	l, clock := newTestLimiter(t, 2)

	require.True(t, l.Admit("c"))
	require.True(t, l.Admit("c"))
	require.False(t, l.Admit("c"))

	// the window is inclusive of its reset instant
	clock.Advance(time.Minute)
	require.False(t, l.Admit("c"))

	clock.Advance(time.Millisecond)
	require.True(t, l.Admit("c"))
	assert.Equal(t, 1, l.entries["c"].count, "a new window starts at count 1")
	require.True(t, l.Admit("c"))
	require.False(t, l.Admit("c"))
}

func TestPrune_RemovesOnlyExpiredWindows(t *testing.T) {
	l, clock := newTestLimiter(t, 5)

	l.Admit("old")
	clock.Advance(30 * time.Second)
	l.Admit("new")
	clock.Advance(31 * time.Second)

	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 1, l.Len())
	_, ok := l.entries["new"]
	assert.True(t, ok)
}

func TestStartStop_SweepsInBackground(t *testing.T) {
	l, clock := newTestLimiter(t, 5)
	for i := 0; i < 20; i++ {
		l.Admit(fmt.Sprintf("client-%d", i))
	}
	clock.Advance(2 * time.Minute)

	l.Start(5 * time.Millisecond)
	defer l.Stop()

	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStop_IsIdempotent(t *testing.T) {
	l, _ := newTestLimiter(t, 5)
	l.Stop()
	l.Start(time.Hour)
	l.Start(time.Hour)
	l.Stop()
	l.Stop()
}

func TestAdmit_ConcurrentClientsNeverExceedLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestNew_Defaults(t *testing.T) {
	l := New(0, 0, zaptest.NewLogger(t))
	assert.Equal(t, DefaultLimit, l.limit)
	assert.Equal(t, DefaultWindow, l.window)
}
