package mutate

import (
	"testing"
	"time"

	"driftboard/internal/model"
	"driftboard/internal/store"
)

func intp(v int) *int { return &v }

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedProject(t *testing.T, st *store.Store) string {
	t.Helper()
	p := model.Project{ID: store.NewID(), Name: "board", UpdatedAt: time.Unix(1700000000, 0)}
	if err := st.PutProject(p); err != nil {
		t.Fatal(err)
	}
	return p.ID
}

func mustCreate(t *testing.T, st *store.Store, projectID, title string, stage *int, parentID *string) model.Task {
	t.Helper()
	_, task, err := CreateTask(st, projectID, title, "", stage, parentID, "", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if task.ID == "" {
		t.Fatalf("CreateTask(%s) produced no task", title)
	}
	return task
}

func TestCreateTask_SiblingOrdering(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)

	a := mustCreate(t, st, pid, "a", intp(1), nil)
	b := mustCreate(t, st, pid, "b", intp(1), nil)
	c := mustCreate(t, st, pid, "c", intp(1), nil)

	ta, _ := st.Task(a.ID)
	tb, _ := st.Task(b.ID)
	tc, _ := st.Task(c.ID)
	if ta.Order != 1 || tb.Order != 2 || tc.Order != 3 {
		t.Fatalf("orders = %d,%d,%d, want 1,2,3", ta.Order, tb.Order, tc.Order)
	}
	if !(ta.Rank < tb.Rank && tb.Rank < tc.Rank) {
		t.Fatalf("ranks not ascending: %v %v %v", ta.Rank, tb.Rank, tc.Rank)
	}
	if ta.DisplayID != "1" || tb.DisplayID != "2" || tc.DisplayID != "3" {
		t.Fatalf("displayIds = %q,%q,%q", ta.DisplayID, tb.DisplayID, tc.DisplayID)
	}
}

func TestMoveTask_InsertBefore(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)

	a := mustCreate(t, st, pid, "a", intp(1), nil)
	b := mustCreate(t, st, pid, "b", intp(1), nil)
	c := mustCreate(t, st, pid, "c", intp(1), nil)

	eff, err := MoveTask(st, c.ID, intp(1), nil, a.ID, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if eff.Refused || !eff.Changed {
		t.Fatalf("move refused=%v changed=%v, want applied", eff.Refused, eff.Changed)
	}
	ta, _ := st.Task(a.ID)
	tb, _ := st.Task(b.ID)
	tc, _ := st.Task(c.ID)
	if !(tc.Rank < ta.Rank && ta.Rank < tb.Rank) {
		t.Fatalf("move-before failed: ranks c=%v a=%v b=%v", tc.Rank, ta.Rank, tb.Rank)
	}
	if tc.Order != 1 {
		t.Fatalf("moved task order = %d, want 1", tc.Order)
	}
}

func TestMoveTask_ReparentForcesDeeperStage(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)

	p := mustCreate(t, st, pid, "parent", intp(1), nil)
	c := mustCreate(t, st, pid, "child", intp(1), nil)

	eff, err := MoveTask(st, c.ID, intp(2), &p.ID, "", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if eff.Refused {
		t.Fatal("reparent unexpectedly refused")
	}
	got, _ := st.Task(c.ID)
	gp, _ := st.Task(p.ID)
	if got.Stage == nil || *got.Stage <= *gp.Stage {
		t.Fatalf("child stage %v not past parent stage %v", got.Stage, *gp.Stage)
	}
	if got.Rank <= gp.Rank {
		t.Fatalf("child rank %v not past parent rank %v", got.Rank, gp.Rank)
	}
	if got.DisplayID != "1,a" {
		t.Fatalf("child displayId = %q, want %q", got.DisplayID, "1,a")
	}
}

func TestMoveTask_RefusesCycle(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)

	p := mustCreate(t, st, pid, "parent", intp(1), nil)
	c := mustCreate(t, st, pid, "child", intp(2), &p.ID)

	before, _ := st.Task(p.ID)
	eff, err := MoveTask(st, p.ID, intp(3), &c.ID, "", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if !eff.Refused {
		t.Fatal("reparenting under own descendant was not refused")
	}
	after, _ := st.Task(p.ID)
	if after.Rank != before.Rank || *after.Stage != *before.Stage {
		t.Fatalf("refused move changed state: rank %v->%v stage %d->%d",
			before.Rank, after.Rank, *before.Stage, *after.Stage)
	}
}

func TestMoveTask_RefusalLeavesRankUnchanged(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)

	p := mustCreate(t, st, pid, "parent", intp(1), nil)
	c := mustCreate(t, st, pid, "child", intp(2), &p.ID)
	g := mustCreate(t, st, pid, "grandchild", intp(3), &c.ID)

	// Invert the corridor: pin the new parent's rank above the moving task's
	// own child, so no rank can sit strictly between the two bounds.
	gg, _ := st.Task(g.ID)
	edited, _ := st.Task(p.ID)
	edited.Rank = gg.Rank + 1
	if err := st.PutTask(edited); err != nil {
		t.Fatal(err)
	}

	before, _ := st.Task(c.ID)
	eff, err := MoveTask(st, c.ID, intp(2), &p.ID, "", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if !eff.Refused {
		t.Fatal("move with inverted parent/child rank bounds was not refused")
	}
	after, _ := st.Task(c.ID)
	if after.Rank != before.Rank {
		t.Fatalf("refused move changed rank %v -> %v", before.Rank, after.Rank)
	}
}

func TestDetachReparentsChildren(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)

	top := mustCreate(t, st, pid, "top", intp(1), nil)
	mid := mustCreate(t, st, pid, "mid", intp(2), &top.ID)
	kid := mustCreate(t, st, pid, "kid", intp(3), &mid.ID)

	eff, err := MoveTask(st, mid.ID, nil, nil, "", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if eff.Refused || !eff.Changed {
		t.Fatalf("detach refused=%v changed=%v", eff.Refused, eff.Changed)
	}

	gotMid, _ := st.Task(mid.ID)
	if gotMid.Stage != nil || gotMid.ParentID != nil {
		t.Fatalf("detached task not unassigned: stage=%v parent=%v", gotMid.Stage, gotMid.ParentID)
	}
	if gotMid.DisplayID != "?" {
		t.Fatalf("detached displayId = %q, want %q", gotMid.DisplayID, "?")
	}

	gotKid, _ := st.Task(kid.ID)
	if gotKid.ParentID == nil || *gotKid.ParentID != top.ID {
		t.Fatalf("orphaned child not re-parented to former grandparent: %v", gotKid.ParentID)
	}
}

func TestDetachRootMakesChildrenRoots(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)

	root := mustCreate(t, st, pid, "root", intp(1), nil)
	kid := mustCreate(t, st, pid, "kid", intp(2), &root.ID)

	if _, err := MoveTask(st, root.ID, nil, nil, "", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	gotKid, _ := st.Task(kid.ID)
	if gotKid.ParentID != nil {
		t.Fatalf("child of detached root still has parent %v", *gotKid.ParentID)
	}
}

func TestDeleteTaskCascade(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)

	root := mustCreate(t, st, pid, "root", intp(1), nil)
	kid := mustCreate(t, st, pid, "kid", intp(2), &root.ID)
	grand := mustCreate(t, st, pid, "grand", intp(3), &kid.ID)
	bystander := mustCreate(t, st, pid, "bystander", intp(1), nil)

	_, deleted, err := DeleteTaskCascade(st, root.ID, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 3 {
		t.Fatalf("cascade deleted %d tasks, want 3", len(deleted))
	}
	for _, id := range []string{root.ID, kid.ID, grand.ID} {
		got, _ := st.Task(id)
		if !got.Deleted() {
			t.Fatalf("subtree task %s not soft-deleted", got.Title)
		}
	}
	got, _ := st.Task(bystander.ID)
	if got.Deleted() {
		t.Fatal("cascade deleted an unrelated task")
	}
}

func TestAddConnection_SelfLoopIsNoOp(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)
	a := mustCreate(t, st, pid, "a", intp(1), nil)

	eff, _, err := AddConnection(st, pid, a.ID, a.ID, "", "", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if eff.Changed {
		t.Fatal("self-loop connection was created")
	}
	if len(st.ConnectionsByProject(pid)) != 0 {
		t.Fatal("self-loop left a connection row")
	}
}

func TestAddConnection_DuplicateIsNoOp(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)
	a := mustCreate(t, st, pid, "a", intp(1), nil)
	b := mustCreate(t, st, pid, "b", intp(1), nil)

	if _, _, err := AddConnection(st, pid, a.ID, b.ID, "", "", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	eff, _, err := AddConnection(st, pid, a.ID, b.ID, "", "", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if eff.Changed {
		t.Fatal("duplicate (source,target) connection was created")
	}
	// Reverse direction is a distinct pair and allowed.
	eff, _, err = AddConnection(st, pid, b.ID, a.ID, "", "", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if !eff.Changed {
		t.Fatal("reverse-direction connection was rejected")
	}
}

func TestDeleteProjectCascade(t *testing.T) {
	st := openStore(t)
	pid := seedProject(t, st)
	a := mustCreate(t, st, pid, "a", intp(1), nil)
	b := mustCreate(t, st, pid, "b", intp(1), nil)
	if _, _, err := AddConnection(st, pid, a.ID, b.ID, "", "", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	taskIDs, connIDs, err := DeleteProjectCascade(st, pid)
	if err != nil {
		t.Fatal(err)
	}
	if len(taskIDs) != 2 || len(connIDs) != 1 {
		t.Fatalf("cascade reported %d tasks / %d connections, want 2 / 1", len(taskIDs), len(connIDs))
	}
	if _, ok := st.Project(pid); ok {
		t.Fatal("project survived cascade")
	}
	if n := len(st.TasksByProject(pid)); n != 0 {
		t.Fatalf("%d tasks survived cascade", n)
	}
}
