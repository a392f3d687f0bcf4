// ABOUTME: Tests for the failure limiter used by the admin login.
// ABOUTME: Validates window expiry, key eviction, cleanup, and concurrency safety.

package throttle

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(t *testing.T, window time.Duration, maxFailures, maxKeys int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(window, maxFailures, maxKeys)
	l.now = clock.now
	t.Cleanup(l.Close)
	return l, clock
}

func TestLimiter_UnknownKeyAllowed(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 3, 100)
	assert.True(t, l.Allowed("never-failed"))
}

func TestLimiter_BlocksAtMaxFailures(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 3, 100)

	assert.Equal(t, 1, l.Fail("ceo"))
	assert.Equal(t, 2, l.Fail("ceo"))
	assert.True(t, l.Allowed("ceo"))

	assert.Equal(t, 3, l.Fail("ceo"))
	assert.False(t, l.Allowed("ceo"))

	// Other keys are unaffected
	assert.True(t, l.Allowed("jane"))
}

func TestLimiter_WindowExpires(t *testing.T) {
	l, clock := newTestLimiter(t, time.Minute, 2, 100)

	l.Fail("ceo")
	l.Fail("ceo")
	assert.False(t, l.Allowed("ceo"))

	clock.advance(time.Minute)
	assert.True(t, l.Allowed("ceo"))

	// A failure after expiry opens a fresh window
	assert.Equal(t, 1, l.Fail("ceo"))
	assert.True(t, l.Allowed("ceo"))
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 1, 100)

	l.Fail("ceo")
	assert.False(t, l.Allowed("ceo"))

	l.Reset("ceo")
	assert.True(t, l.Allowed("ceo"))
	l.Reset("unknown")
}

func TestLimiter_EvictsOldest(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 1, 3)

	l.Fail("a")
	l.Fail("b")
	l.Fail("c")
	l.Fail("d") // evicts "a"

	assert.True(t, l.Allowed("a"))
	assert.False(t, l.Allowed("b"))
	assert.False(t, l.Allowed("d"))
	assert.Len(t, l.keys, 3)
	assert.Equal(t, 3, l.order.Len())
}

func TestLimiter_Cleanup(t *testing.T) {
	l, clock := newTestLimiter(t, time.Minute, 3, 100)

	l.Fail("old-1")
	l.Fail("old-2")
	clock.advance(45 * time.Second)
	l.Fail("new")
	clock.advance(30 * time.Second)

	l.runCleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.keys, 1, "cleanup should remove expired keys")
	assert.Contains(t, l.keys, "new")
	assert.Equal(t, 1, l.order.Len())
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New(time.Minute, 1_000_000, 1000)
	defer l.Close()

	const numGoroutines = 50
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				key := fmt.Sprintf("user-%d", id%10)
				l.Fail(key)
				l.Allowed(key)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 10; i++ {
		total += l.keys[fmt.Sprintf("user-%d", i)].failures
	}
	assert.Equal(t, numGoroutines*opsPerGoroutine, total)
}

func TestLimiter_Close(t *testing.T) {
	l := New(time.Minute, 3, 100)

	// Multiple closes should not panic
	l.Close()
	l.Close()
}
