package history

import (
	"testing"
	"time"

	"driftboard/internal/model"
)

type memPersist struct {
	blobs map[string][]byte
}

func newMemPersist() *memPersist { return &memPersist{blobs: map[string][]byte{}} }

func (m *memPersist) SaveHistoryState(projectID string, blob []byte) error {
	m.blobs[projectID] = append([]byte{}, blob...)
	return nil
}

func (m *memPersist) LoadHistoryState(projectID string) ([]byte, error) {
	return m.blobs[projectID], nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTask(id, title string) model.Task {
	return model.Task{ID: id, ProjectID: "proj-1", Title: title, Status: model.TaskStatusActive}
}

func entry(label string, before, after []model.Task) Entry {
	return Entry{Label: label, TasksBefore: before, TasksAfter: after}
}

func managerWithClock(persist Persister, c *fakeClock) *Manager {
	m := NewManager(persist, 0, 0)
	m.SetClock(c.now)
	return m
}

func TestUndoRedoRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	h := managerWithClock(newMemPersist(), clock).Project("proj-1")

	before := newTask("t1", "old")
	after := newTask("t1", "new")
	h.Record(entry("edit title", []model.Task{before}, []model.Task{after}))

	e := h.Undo()
	if e == nil {
		t.Fatal("Undo returned nil with history present")
	}
	if e.TasksBefore[0].Title != "old" {
		t.Fatalf("undo entry Before title = %q, want %q", e.TasksBefore[0].Title, "old")
	}

	e = h.Redo()
	if e == nil {
		t.Fatal("Redo returned nil after undo")
	}
	if e.TasksAfter[0].Title != "new" {
		t.Fatalf("redo entry After title = %q, want %q", e.TasksAfter[0].Title, "new")
	}
}

func TestExhaustedHistoryIsNoOp(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	h := managerWithClock(newMemPersist(), clock).Project("proj-1")

	// Rapid-fire undo/redo on an empty and then exhausted history must stay
	// nil and never corrupt the stacks.
	for i := 0; i < 20; i++ {
		if e := h.Undo(); e != nil {
			t.Fatalf("Undo on empty history returned entry %v", e)
		}
	}
	h.Record(entry("edit", nil, []model.Task{newTask("t1", "a")}))
	if h.Undo() == nil {
		t.Fatal("expected one undo")
	}
	for i := 0; i < 20; i++ {
		if e := h.Undo(); e != nil {
			t.Fatalf("Undo past exhaustion returned entry %v", e)
		}
	}
	for i := 0; i < 3; i++ {
		if h.Redo() == nil && i == 0 {
			t.Fatal("expected one redo")
		}
	}
}

func TestRecordDebouncedCoalesces(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	h := managerWithClock(newMemPersist(), clock).Project("proj-1")

	h.RecordDebounced("t1:title", entry("typing", []model.Task{newTask("t1", "h")}, []model.Task{newTask("t1", "he")}))
	clock.advance(100 * time.Millisecond)
	h.RecordDebounced("t1:title", entry("typing", []model.Task{newTask("t1", "he")}, []model.Task{newTask("t1", "hel")}))
	clock.advance(100 * time.Millisecond)
	h.RecordDebounced("t1:title", entry("typing", []model.Task{newTask("t1", "hel")}, []model.Task{newTask("t1", "hello")}))

	undo, _ := h.Depth()
	if undo != 1 {
		t.Fatalf("coalesced depth = %d, want 1", undo)
	}
	e := h.Undo()
	if e.TasksBefore[0].Title != "h" || e.TasksAfter[0].Title != "hello" {
		t.Fatalf("coalesced entry spans %q -> %q, want h -> hello", e.TasksBefore[0].Title, e.TasksAfter[0].Title)
	}
}

func TestRecordDebouncedSealsAfterWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	h := managerWithClock(newMemPersist(), clock).Project("proj-1")

	h.RecordDebounced("t1:title", entry("typing", nil, []model.Task{newTask("t1", "a")}))
	clock.advance(DefaultCoalesceWindow + time.Second)
	h.RecordDebounced("t1:title", entry("typing", []model.Task{newTask("t1", "a")}, []model.Task{newTask("t1", "ab")}))

	if undo, _ := h.Depth(); undo != 2 {
		t.Fatalf("depth = %d, want 2 separate entries after window expiry", undo)
	}
}

func TestHistoryScopedPerProject(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	m := managerWithClock(newMemPersist(), clock)

	m.Project("proj-1").Record(entry("edit", nil, []model.Task{newTask("t1", "a")}))
	m.OnProjectSwitch("proj-1")

	if e := m.Project("proj-2").Undo(); e != nil {
		t.Fatalf("undo in proj-2 reached proj-1 history: %v", e)
	}
	if e := m.Project("proj-1").Undo(); e == nil {
		t.Fatal("proj-1 history lost across switch")
	}
}

func TestHistorySurvivesReload(t *testing.T) {
	persist := newMemPersist()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}

	m1 := managerWithClock(persist, clock)
	m1.Project("proj-1").Record(entry("edit", nil, []model.Task{newTask("t1", "a")}))

	m2 := managerWithClock(persist, clock)
	if undo, _ := m2.Project("proj-1").Depth(); undo != 1 {
		t.Fatalf("reloaded history depth = %d, want 1", undo)
	}
}

func TestEntriesHoldCopiesNotReferences(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	h := managerWithClock(newMemPersist(), clock).Project("proj-1")

	after := newTask("t1", "original")
	h.Record(entry("edit", nil, []model.Task{after}))
	after.Title = "mutated by caller"

	e := h.Undo()
	if e.TasksAfter[0].Title != "original" {
		t.Fatalf("history entry aliased caller state: %q", e.TasksAfter[0].Title)
	}
}

type memApplier struct {
	tasks map[string]model.Task
	conns map[string]model.Connection
}

func newMemApplier() *memApplier {
	return &memApplier{tasks: map[string]model.Task{}, conns: map[string]model.Connection{}}
}

func (a *memApplier) PutTasks(ts []model.Task) error {
	for _, t := range ts {
		a.tasks[t.ID] = t
	}
	return nil
}
func (a *memApplier) RemoveTask(id string) error { delete(a.tasks, id); return nil }
func (a *memApplier) PutConnection(c model.Connection) error {
	a.conns[c.ID] = c
	return nil
}
func (a *memApplier) RemoveConnection(id string) error { delete(a.conns, id); return nil }

func TestApplyUndoOfCascadeRestoresSubtreeAtomically(t *testing.T) {
	now := time.Unix(1700000000, 0)
	parent := newTask("p", "parent")
	child := newTask("c", "child")
	delParent, delChild := parent, child
	delParent.DeletedAt = &now
	delChild.DeletedAt = &now

	e := entry("delete cascade",
		[]model.Task{parent, child},
		[]model.Task{delParent, delChild})

	a := newMemApplier()
	a.tasks["p"], a.tasks["c"] = delParent, delChild

	if err := Apply(a, e, true); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"p", "c"} {
		got := a.tasks[id]
		if got.DeletedAt != nil {
			t.Fatalf("%s still soft-deleted after cascade undo", id)
		}
	}
}

func TestApplyUndoOfCreateRemovesTask(t *testing.T) {
	created := newTask("t1", "fresh")
	e := entry("create", nil, []model.Task{created})

	a := newMemApplier()
	a.tasks["t1"] = created
	if err := Apply(a, e, true); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.tasks["t1"]; ok {
		t.Fatal("undo of create left the task in place")
	}
}
