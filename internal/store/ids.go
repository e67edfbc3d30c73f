package store

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"driftboard/internal/model"

	"github.com/google/uuid"
)

// NewID returns a fresh UUID string for entity primary keys (remote rows are
// keyed by these).
func NewID() string { return uuid.NewString() }

// NewShortID returns prefix-<suffix> where suffix is 5 chars of base32
// (lowercase, no padding) — a human-pasteable handle for CLI addressing.
// Collision space is small on purpose; callers retry against the store.
func NewShortID(prefix string) string {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failure: fall back to a uuid fragment.
		return prefix + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return prefix + "-" + strings.ToLower(enc.EncodeToString(b[:]))
}

// UniqueShortID retries NewShortID until it misses the taken set.
func UniqueShortID(prefix string, taken map[string]bool) string {
	for i := 0; i < 50; i++ {
		id := NewShortID(prefix)
		if !taken[id] {
			return id
		}
	}
	return prefix + "-" + uuid.NewString()
}

// ShortIDsInUse collects the short ids currently assigned to tasks.
func (s *Store) ShortIDsInUse() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]bool{}
	for _, t := range s.tasks {
		if t.ShortID != "" {
			out[t.ShortID] = true
		}
	}
	return out
}

// TaskByShortID resolves a task by its short handle.
func (s *Store) TaskByShortID(shortID string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, x := range s.tasks {
		if x.ShortID == shortID {
			return x.Clone(), true
		}
	}
	return model.Task{}, false
}
