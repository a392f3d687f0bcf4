// ABOUTME: Thread-safe, size-bounded failure counter with a time window
// ABOUTME: Used by the admin login to slow down password guessing

package throttle

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used by the admin login.
const (
	DefaultWindow      = 15 * time.Minute
	DefaultMaxFailures = 5
	DefaultMaxKeys     = 10_000
)

// entry tracks failures for one key since the window opened.
type entry struct {
	first    time.Time
	failures int
	element  *list.Element
}

// Limiter counts failures per key. A key is blocked once it reaches
// maxFailures inside the window; the window starts at the first failure.
// The oldest key is evicted when maxKeys is reached.
type Limiter struct {
	mu          sync.Mutex
	keys        map[string]*entry
	order       *list.List // keys by first failure (oldest at front)
	window      time.Duration
	maxFailures int
	maxKeys     int
	now         func() time.Time
	done        chan struct{}
	closed      bool
}

// New creates a limiter. A background goroutine drops expired keys.
func New(window time.Duration, maxFailures, maxKeys int) *Limiter {
	l := &Limiter{
		keys:        make(map[string]*entry),
		order:       list.New(),
		window:      window,
		maxFailures: maxFailures,
		maxKeys:     maxKeys,
		now:         time.Now,
		done:        make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allowed reports whether key may attempt again.
func (l *Limiter) Allowed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.keys[key]
	if !ok || l.expired(e) {
		return true
	}
	return e.failures < l.maxFailures
}

// Fail records a failure for key and returns the failure count in the
// current window.
func (l *Limiter) Fail(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.keys[key]; ok {
		if !l.expired(e) {
			e.failures++
			return e.failures
		}
		l.removeLocked(key, e)
	}

	if len(l.keys) >= l.maxKeys {
		l.evictOldest()
	}
	l.keys[key] = &entry{
		first:    l.now(),
		failures: 1,
		element:  l.order.PushBack(key),
	}
	return 1
}

// Reset forgets key, typically after a successful attempt.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.keys[key]; ok {
		l.removeLocked(key, e)
	}
}

// expired must be called with mu held.
func (l *Limiter) expired(e *entry) bool {
	return l.now().Sub(e.first) >= l.window
}

func (l *Limiter) removeLocked(key string, e *entry) {
	l.order.Remove(e.element)
	delete(l.keys, key)
}

// evictOldest must be called with mu held.
func (l *Limiter) evictOldest() {
	front := l.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	l.order.Remove(front)
	delete(l.keys, key)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.runCleanup()
		case <-l.done:
			return
		}
	}
}

// runCleanup removes expired keys. Keys are ordered by first failure, so
// it stops at the first live one.
func (l *Limiter) runCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for front := l.order.Front(); front != nil; front = l.order.Front() {
		key, _ := front.Value.(string)
		e := l.keys[key]
		if !l.expired(e) {
			return
		}
		l.removeLocked(key, e)
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
