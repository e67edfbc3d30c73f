// Package sync pushes local mutations to the remote store and pulls remote
// changes back in, merging last-write-wins by updated_at. Pushes are
// optimistic: the local store is already mutated by the time a push runs, so
// a failed push parks the mutation in the retry queue instead of erroring.
package sync

import (
	stdsync "sync"
	"time"
)

// Snapshot is a point-in-time copy of the sync engine's status, safe to
// render without holding any lock.
type Snapshot struct {
	Syncing    bool
	Online     bool
	LastSyncAt time.Time
	Pending    int
	LastError  string
}

// State tracks sync status for the status line and the drain guard.
type State struct {
	mu         stdsync.Mutex
	syncing    bool
	online     bool
	lastSyncAt time.Time
	lastError  string

	pending func() int
}

func NewState(pending func() int) *State {
	return &State{online: true, pending: pending}
}

// BeginSync flips the syncing flag on; it reports false when a sync pass is
// already running so concurrent triggers collapse into one.
func (s *State) BeginSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return false
	}
	s.syncing = true
	return true
}

func (s *State) EndSync(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = false
	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastSyncAt = at
	s.lastError = ""
}

func (s *State) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = online
}

func (s *State) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Syncing:    s.syncing,
		Online:     s.online,
		LastSyncAt: s.lastSyncAt,
		LastError:  s.lastError,
	}
	if s.pending != nil {
		snap.Pending = s.pending()
	}
	return snap
}
