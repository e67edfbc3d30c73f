package store

import (
	"testing"
	"time"

	"driftboard/internal/model"
)

func open(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func sampleTask(id, projectID string) model.Task {
	stage := 1
	return model.Task{
		ID:        id,
		ProjectID: projectID,
		Title:     "task " + id,
		Stage:     &stage,
		Rank:      1000,
		Status:    model.TaskStatusActive,
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestTasksSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	s := open(t, dir)
	if err := s.PutTask(sampleTask("t1", "p1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = open(t, dir)
	defer s.Close()
	got, ok := s.Task("t1")
	if !ok {
		t.Fatal("task lost across reopen")
	}
	if got.Title != "task t1" || got.Stage == nil || *got.Stage != 1 {
		t.Fatalf("reloaded task mangled: %+v", got)
	}
	if len(s.TasksByProject("p1")) != 1 {
		t.Fatal("project index not rebuilt on load")
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	if err := s.PutTask(sampleTask("t1", "p1")); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Task("t1")
	got.Title = "mutated"
	*got.Stage = 9

	again, _ := s.Task("t1")
	if again.Title != "task t1" || *again.Stage != 1 {
		t.Fatal("reader mutation leaked into the store")
	}
}

func TestVersionBumpsAndObserversFire(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	var events []Change
	unsub := s.Subscribe(func(ch Change) { events = append(events, ch) })
	defer unsub()

	v0 := s.Version()
	if err := s.PutTask(sampleTask("t1", "p1")); err != nil {
		t.Fatal(err)
	}
	if s.Version() <= v0 {
		t.Fatal("version did not advance on write")
	}
	if len(events) != 1 || events[0].ID != "t1" || events[0].Removed {
		t.Fatalf("observer events = %+v", events)
	}

	if err := s.RemoveTask("t1"); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || !events[1].Removed {
		t.Fatalf("remove event = %+v", events)
	}
}

func TestProjectIndexFollowsMoves(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	task := sampleTask("t1", "p1")
	if err := s.PutTask(task); err != nil {
		t.Fatal(err)
	}
	task.ProjectID = "p2"
	if err := s.PutTask(task); err != nil {
		t.Fatal(err)
	}
	if len(s.TasksByProject("p1")) != 0 {
		t.Fatal("task lingers in old project index")
	}
	if len(s.TasksByProject("p2")) != 1 {
		t.Fatal("task missing from new project index")
	}
}

func TestClearProjectDropsEverything(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	if err := s.PutTask(sampleTask("t1", "p1")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutTask(sampleTask("t2", "p1")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutConnection(model.Connection{
		ID: "c1", ProjectID: "p1", Source: "t1", Target: "t2",
		UpdatedAt: time.Unix(1700000000, 0),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearProject("p1"); err != nil {
		t.Fatal(err)
	}
	if n := len(s.TasksByProject("p1")); n != 0 {
		t.Fatalf("%d tasks left after clear", n)
	}
	if n := len(s.ConnectionsByProject("p1")); n != 0 {
		t.Fatalf("%d connections left after clear", n)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	if got := s.Meta("watermark:p1"); got != "" {
		t.Fatalf("missing meta key returned %q", got)
	}
	if err := s.SetMeta("watermark:p1", "2026-01-02T03:04:05Z"); err != nil {
		t.Fatal(err)
	}
	if got := s.Meta("watermark:p1"); got != "2026-01-02T03:04:05Z" {
		t.Fatalf("meta = %q", got)
	}
}

func TestRetryItemsSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	s := open(t, dir)
	it := model.RetryItem{
		ID:         NewID(),
		EntityType: model.EntityTask,
		Operation:  model.OpUpsert,
		Payload:    []byte(`{"id":"t1"}`),
		ProjectID:  "p1",
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
	}
	if err := s.AppendRetryItem(it); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s = open(t, dir)
	defer s.Close()
	items, err := s.LoadRetryItems()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != it.ID {
		t.Fatalf("retry items after reopen = %+v", items)
	}
}

func TestShortIDsAreUniqueAndResolvable(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	task := sampleTask("t1", "p1")
	task.ShortID = UniqueShortID("task", s.ShortIDsInUse())
	if err := s.PutTask(task); err != nil {
		t.Fatal(err)
	}
	if task.ShortID == "" {
		t.Fatal("empty short id")
	}
	got, ok := s.TaskByShortID(task.ShortID)
	if !ok || got.ID != "t1" {
		t.Fatalf("TaskByShortID(%q) = %+v, %v", task.ShortID, got, ok)
	}

	taken := s.ShortIDsInUse()
	if !taken[task.ShortID] {
		t.Fatal("short id not reported as taken")
	}
	if next := UniqueShortID("task", taken); next == task.ShortID {
		t.Fatal("UniqueShortID returned a taken id")
	}
}

func TestReloadPicksUpOutsideWrites(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)
	defer s.Close()

	// A second handle simulates another process writing the same db.
	other := open(t, dir)
	if err := other.PutTask(sampleTask("t1", "p1")); err != nil {
		t.Fatal(err)
	}
	other.Close()

	if _, ok := s.Task("t1"); ok {
		t.Fatal("write visible before reload; fixture broken")
	}
	if err := s.Reload(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Task("t1"); !ok {
		t.Fatal("reload missed the outside write")
	}
}
