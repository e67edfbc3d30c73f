package queue

import (
	"testing"

	"driftboard/internal/model"
)

type memPersist struct {
	rows map[string]model.RetryItem
}

func newMemPersist() *memPersist { return &memPersist{rows: map[string]model.RetryItem{}} }

func (m *memPersist) AppendRetryItem(it model.RetryItem) error { m.rows[it.ID] = it; return nil }
func (m *memPersist) UpdateRetryItem(it model.RetryItem) error { m.rows[it.ID] = it; return nil }
func (m *memPersist) DeleteRetryItem(id string) error          { delete(m.rows, id); return nil }
func (m *memPersist) LoadRetryItems() ([]model.RetryItem, error) {
	var out []model.RetryItem
	for _, it := range m.rows {
		out = append(out, it)
	}
	return out, nil
}

func TestEnqueueAndDrainSnapshotClears(t *testing.T) {
	q, err := New(newMemPersist(), 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(model.EntityTask, model.OpUpsert, "proj-1", map[string]string{"id": "t1"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(model.EntityTask, model.OpDelete, "proj-1", map[string]string{"id": "t2"}); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}

	snap := q.BeginDrain()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}
	if q.Len() != 0 {
		t.Fatalf("live queue not cleared by BeginDrain: %d", q.Len())
	}
}

func TestRetryExhaustionDropsItem(t *testing.T) {
	persist := newMemPersist()
	var dropped []model.RetryItem
	q, err := New(persist, 2, func(it model.RetryItem) { dropped = append(dropped, it) })
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(model.EntityConnection, model.OpUpsert, "proj-1", nil); err != nil {
		t.Fatal(err)
	}

	it := q.BeginDrain()[0]
	requeued, err := q.Retry(it)
	if err != nil || !requeued {
		t.Fatalf("first retry: requeued=%v err=%v, want true", requeued, err)
	}

	it = q.BeginDrain()[0]
	requeued, err = q.Retry(it)
	if err != nil {
		t.Fatal(err)
	}
	if requeued {
		t.Fatalf("item past max retries was requeued")
	}
	if len(dropped) != 1 {
		t.Fatalf("drop callback fired %d times, want 1", len(dropped))
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after drop: %d", q.Len())
	}
	if len(persist.rows) != 0 {
		t.Fatalf("dropped item still persisted")
	}
}

func TestQueueSurvivesReload(t *testing.T) {
	persist := newMemPersist()
	q1, err := New(persist, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := q1.Enqueue(model.EntityTask, model.OpUpsert, "proj-1", map[string]string{"id": "t1"}); err != nil {
		t.Fatal(err)
	}

	q2, err := New(persist, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if q2.Len() != 1 {
		t.Fatalf("reloaded queue Len = %d, want 1", q2.Len())
	}
}

func TestResolveRemovesDurableRow(t *testing.T) {
	persist := newMemPersist()
	q, err := New(persist, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(model.EntityProject, model.OpUpsert, "", nil); err != nil {
		t.Fatal(err)
	}
	it := q.BeginDrain()[0]
	if err := q.Resolve(it); err != nil {
		t.Fatal(err)
	}
	if len(persist.rows) != 0 {
		t.Fatalf("resolved item still persisted")
	}
}
