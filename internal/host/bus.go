// ABOUTME: Priority-ordered hook bus shared by actions and filters
// ABOUTME: Handlers are tagged by owner so a plugin can be unhooked wholesale

package host

import (
	"sort"
	"sync"
)

// Hook names
const (
	HookReady        = "ready"
	HookAdminInit    = "admin_init"
	HookAdminNotices = "admin_notices"
	HookProfileField = "profile_fields"
	HookProfileSaved = "profile_saved"
	HookDisplayName  = "display_name"
	HookActivate     = "activate"
	HookDeactivate   = "deactivate"
)

type hook struct {
	owner    string
	priority int
	seq      uint64
	fn       any
}

// Bus stores hook handlers. Safe for concurrent use.
type Bus struct {
	mu    sync.RWMutex
	hooks map[string][]hook
	seq   uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{hooks: make(map[string][]hook)}
}

// Add registers fn under name. Lower priorities run first; equal priorities
// run in registration order.
func (b *Bus) Add(name, owner string, priority int, fn any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	hs := append(b.hooks[name], hook{owner: owner, priority: priority, seq: b.seq, fn: fn})
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].priority != hs[j].priority {
			return hs[i].priority < hs[j].priority
		}
		return hs[i].seq < hs[j].seq
	})
	b.hooks[name] = hs
}

// RemoveOwner drops every handler registered by owner and returns how many
// were removed.
func (b *Bus) RemoveOwner(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for name, hs := range b.hooks {
		kept := hs[:0]
		for _, h := range hs {
			if h.owner == owner {
				removed++
				continue
			}
			kept = append(kept, h)
		}
		if len(kept) == 0 {
			delete(b.hooks, name)
		} else {
			b.hooks[name] = kept
		}
	}
	return removed
}

// Count returns the number of handlers registered under name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hooks[name])
}

// snapshot copies the handler list so callers can run it without the lock.
// An empty owner selects every owner.
func (b *Bus) snapshot(name, owner string) []hook {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]hook, 0, len(b.hooks[name]))
	for _, h := range b.hooks[name] {
		if owner == "" || h.owner == owner {
			out = append(out, h)
		}
	}
	return out
}

// handlersOf returns the handlers under name with type T, in run order.
// Handlers of another type are skipped.
func handlersOf[T any](b *Bus, name, owner string) []T {
	hs := b.snapshot(name, owner)
	out := make([]T, 0, len(hs))
	for _, h := range hs {
		if fn, ok := h.fn.(T); ok {
			out = append(out, fn)
		}
	}
	return out
}
