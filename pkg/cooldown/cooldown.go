// Package cooldown provides per-operation-key admission control: a new
// expensive job is rejected while one is still warm for the same key. The
// guard is advisory per-entity, not a lock; racing callers both proceed and
// rely on storage-level dedup for consistency.
package cooldown

import (
	"sync"
	"time"
)

// Guard tracks last-success timestamps per (operation class, entity key).
type Guard struct {
	mu      sync.Mutex
	windows map[string]time.Duration
	last    map[string]time.Time
	now     func() time.Time
}

// NewGuard creates a Guard with the given cooldown window per operation
// class. Operations without a configured window are always allowed.
func NewGuard(windows map[string]time.Duration) *Guard {
	w := make(map[string]time.Duration, len(windows))
	for op, d := range windows {
		w[op] = d
	}
	return &Guard{
		windows: w,
		last:    make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

func key(op, entity string) string {
	return op + "\x00" + entity
}

// Allow reports whether a job for (op, entityKey) may run now. When rejected,
// remaining is the wait until the cooldown elapses, for caller feedback.
func (g *Guard) Allow(op, entityKey string) (allowed bool, remaining time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	window, ok := g.windows[op]
	if !ok {
		return true, 0
	}

	last, ok := g.last[key(op, entityKey)]
	if !ok {
		return true, 0
	}

	elapsed := g.now().Sub(last)
	if elapsed >= window {
		return true, 0
	}
	return false, window - elapsed
}

// Touch records a successful run for (op, entityKey), starting its cooldown.
func (g *Guard) Touch(op, entityKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[key(op, entityKey)] = g.now()
}

// Reset clears all recorded timestamps. Intended for tests.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = make(map[string]time.Time)
}
