// Package history implements per-project undo/redo over task and connection
// snapshots. Entries store deep copies only — never live references into the
// store — and cascading operations undo atomically as one entry.
package history

import (
	"encoding/json"
	"sync"
	"time"

	"driftboard/internal/model"

	"github.com/google/uuid"
)

const (
	DefaultLimit          = 200
	DefaultCoalesceWindow = 2 * time.Second
)

// Entry captures one undoable transition. Undo restores the Before set,
// redo restores the After set; tasks/connections present on only one side
// are created or removed accordingly.
type Entry struct {
	ID    string    `json:"id"`
	Label string    `json:"label,omitempty"`
	At    time.Time `json:"at"`

	TasksBefore []model.Task       `json:"tasksBefore,omitempty"`
	TasksAfter  []model.Task       `json:"tasksAfter,omitempty"`
	ConnsBefore []model.Connection `json:"connsBefore,omitempty"`
	ConnsAfter  []model.Connection `json:"connsAfter,omitempty"`
}

func cloneTasks(in []model.Task) []model.Task {
	out := make([]model.Task, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneConns(in []model.Connection) []model.Connection {
	out := make([]model.Connection, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func (e Entry) clone() Entry {
	out := e
	out.TasksBefore = cloneTasks(e.TasksBefore)
	out.TasksAfter = cloneTasks(e.TasksAfter)
	out.ConnsBefore = cloneConns(e.ConnsBefore)
	out.ConnsAfter = cloneConns(e.ConnsAfter)
	return out
}

// Persister stores history as one opaque blob per project. The store
// implements it; history must survive reloads.
type Persister interface {
	SaveHistoryState(projectID string, blob []byte) error
	LoadHistoryState(projectID string) ([]byte, error)
}

type persisted struct {
	Undo []Entry `json:"undo"`
	Redo []Entry `json:"redo"`
}

// History is the undo/redo stack pair for a single project.
type History struct {
	mu        sync.Mutex
	projectID string
	undo      []Entry
	redo      []Entry
	limit     int

	window     time.Duration
	lastKey    string
	lastRecord time.Time

	persist Persister
	now     func() time.Time
}

func newHistory(projectID string, persist Persister, limit int, window time.Duration, now func() time.Time) (*History, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultCoalesceWindow
	}
	if now == nil {
		now = time.Now
	}
	h := &History{projectID: projectID, limit: limit, window: window, persist: persist, now: now}
	if persist != nil {
		blob, err := persist.LoadHistoryState(projectID)
		if err != nil {
			return nil, err
		}
		if len(blob) > 0 {
			var p persisted
			if err := json.Unmarshal(blob, &p); err == nil {
				h.undo, h.redo = p.Undo, p.Redo
			}
			// A corrupt blob starts history fresh rather than failing open.
		}
	}
	return h, nil
}

// Record pushes a new entry and clears the redo stack.
func (h *History) Record(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.push(e, "")
}

// RecordDebounced coalesces rapid same-key records (keystroke-level edits)
// into a single entry: the original Before is kept, the After is replaced.
// A different key, or a pause past the window, seals the previous entry.
func (h *History) RecordDebounced(key string, e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	if key != "" && key == h.lastKey && len(h.undo) > 0 && now.Sub(h.lastRecord) < h.window {
		top := &h.undo[len(h.undo)-1]
		top.TasksAfter = cloneTasks(e.TasksAfter)
		top.ConnsAfter = cloneConns(e.ConnsAfter)
		top.At = now
		h.lastRecord = now
		h.redo = nil
		h.save()
		return
	}
	h.push(e, key)
}

func (h *History) push(e Entry, key string) {
	e = e.clone()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = h.now()
	}
	h.undo = append(h.undo, e)
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = nil
	h.lastKey = key
	h.lastRecord = h.now()
	h.save()
}

// Undo pops the newest entry onto the redo stack and returns a copy for the
// caller to apply. Exhausted history is a nil no-op, never an error.
func (h *History) Undo() *Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undo) == 0 {
		return nil
	}
	e := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, e)
	h.lastKey = ""
	h.save()
	out := e.clone()
	return &out
}

// Redo pops the newest redone entry back onto the undo stack.
func (h *History) Redo() *Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.redo) == 0 {
		return nil
	}
	e := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, e)
	h.lastKey = ""
	h.save()
	out := e.clone()
	return &out
}

func (h *History) Depth() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}

// ClearOutdated drops entries older than maxAge from both stacks.
func (h *History) ClearOutdated(maxAge time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := h.now().Add(-maxAge)
	keep := func(in []Entry) []Entry {
		out := in[:0]
		for _, e := range in {
			if e.At.After(cutoff) {
				out = append(out, e)
			}
		}
		return out
	}
	h.undo = keep(h.undo)
	h.redo = keep(h.redo)
	h.save()
}

// seal ends any in-flight coalescing run so the next record starts a fresh
// entry.
func (h *History) seal() {
	h.mu.Lock()
	h.lastKey = ""
	h.mu.Unlock()
}

func (h *History) save() {
	if h.persist == nil {
		return
	}
	blob, err := json.Marshal(persisted{Undo: h.undo, Redo: h.redo})
	if err != nil {
		return
	}
	_ = h.persist.SaveHistoryState(h.projectID, blob)
}

// Manager scopes history per project. Undo never reaches across a project
// switch: each project keeps its own stacks and switching seals the
// previous project's coalescing run.
type Manager struct {
	mu        sync.Mutex
	persist   Persister
	limit     int
	window    time.Duration
	now       func() time.Time
	byProject map[string]*History
}

func NewManager(persist Persister, limit int, window time.Duration) *Manager {
	return &Manager{
		persist:   persist,
		limit:     limit,
		window:    window,
		byProject: map[string]*History{},
	}
}

// SetClock injects a deterministic clock for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Project returns (lazily loading) the history for a project.
func (m *Manager) Project(projectID string) *History {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.byProject[projectID]; ok {
		return h
	}
	h, err := newHistory(projectID, m.persist, m.limit, m.window, m.now)
	if err != nil {
		h, _ = newHistory(projectID, nil, m.limit, m.window, m.now)
	}
	m.byProject[projectID] = h
	return h
}

// OnProjectSwitch seals the previous project's coalescing run.
func (m *Manager) OnProjectSwitch(prevProjectID string) {
	m.mu.Lock()
	h := m.byProject[prevProjectID]
	m.mu.Unlock()
	if h != nil {
		h.seal()
	}
}
