// Package editlock tracks which entity fields the user is actively editing.
// While a field is locked, incoming remote values for that field are held
// back so a pull can never clobber half-typed input. Locks expire on their
// own (the editor refreshes them on every keystroke) and linger for a short
// grace period after blur, covering the save that follows.
package editlock

import (
	"sync"
	"time"
)

const (
	DefaultTTL   = 30 * time.Second
	DefaultGrace = 5 * time.Second
)

type lockKey struct {
	entityID string
	field    string
}

type Guard struct {
	mu    sync.Mutex
	locks map[lockKey]time.Time // expiry instants
	now   func() time.Time
	ttl   time.Duration
	grace time.Duration
}

func New(ttl, grace time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Guard{
		locks: map[lockKey]time.Time{},
		now:   time.Now,
		ttl:   ttl,
		grace: grace,
	}
}

// SetClock swaps the time source. Tests only.
func (g *Guard) SetClock(now func() time.Time) { g.now = now }

// Begin acquires or refreshes the lock on one field. Called when the field
// gains focus and again on every edit.
func (g *Guard) Begin(entityID, field string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locks[lockKey{entityID, field}] = g.now().Add(g.ttl)
}

// End marks the field blurred. The lock survives for the grace period so the
// save triggered by the blur still wins over a concurrent pull.
func (g *Guard) End(entityID, field string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := lockKey{entityID, field}
	if _, ok := g.locks[k]; ok {
		g.locks[k] = g.now().Add(g.grace)
	}
}

// Locked reports whether the field is still guarded.
func (g *Guard) Locked(entityID, field string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()
	_, ok := g.locks[lockKey{entityID, field}]
	return ok
}

// Fields returns the guarded fields of an entity.
func (g *Guard) Fields(entityID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()
	var out []string
	for k := range g.locks {
		if k.entityID == entityID {
			out = append(out, k.field)
		}
	}
	return out
}

// sweep drops expired locks. Caller holds mu.
func (g *Guard) sweep() {
	now := g.now()
	for k, exp := range g.locks {
		if !exp.After(now) {
			delete(g.locks, k)
		}
	}
}
