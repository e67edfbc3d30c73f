package rank

import (
	"testing"
	"time"

	"driftboard/internal/model"
)

func intp(v int) *int          { return &v }
func strp(s string) *string    { return &s }
func f64p(v float64) *float64  { return &v }
func task(id string, stage *int, parent *string, r float64) model.Task {
	return model.Task{
		ID:        id,
		ProjectID: "proj-1",
		Title:     id,
		Stage:     stage,
		ParentID:  parent,
		Rank:      r,
		Status:    model.TaskStatusActive,
		UpdatedAt: time.Unix(1700000000, 0),
	}
}

func byID(tasks []model.Task) map[string]model.Task {
	out := map[string]model.Task{}
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out
}

func TestRebalance_ParentChildDisplayIDs(t *testing.T) {
	in := []model.Task{
		task("t1", intp(1), nil, 1010),
		task("t2", intp(2), strp("t1"), 2010),
	}
	got := byID(Rebalance(in))
	if got["t1"].DisplayID != "1" {
		t.Fatalf("t1.DisplayID = %q, want %q", got["t1"].DisplayID, "1")
	}
	if got["t2"].DisplayID != "1,a" {
		t.Fatalf("t2.DisplayID = %q, want %q", got["t2"].DisplayID, "1,a")
	}
}

func TestRebalance_SiblingsWithoutRanksGetSequentialOrder(t *testing.T) {
	in := []model.Task{
		task("ta", intp(1), nil, 0),
		task("tb", intp(1), nil, 0),
		task("tc", intp(1), nil, 0),
	}
	out := Rebalance(in)
	got := byID(out)
	if got["ta"].Order != 1 || got["tb"].Order != 2 || got["tc"].Order != 3 {
		t.Fatalf("orders = %d,%d,%d, want 1,2,3", got["ta"].Order, got["tb"].Order, got["tc"].Order)
	}
	if !(got["ta"].Rank < got["tb"].Rank && got["tb"].Rank < got["tc"].Rank) {
		t.Fatalf("ranks not ascending: %v %v %v", got["ta"].Rank, got["tb"].Rank, got["tc"].Rank)
	}
}

func TestRebalance_StageAndRankMonotonicity(t *testing.T) {
	// Child deliberately placed at the parent's stage with a lower rank.
	in := []model.Task{
		task("p", intp(2), nil, 2050),
		task("c", intp(2), strp("p"), 1000),
		task("g", intp(2), strp("c"), 900),
	}
	got := byID(Rebalance(in))
	if *got["c"].Stage <= *got["p"].Stage {
		t.Fatalf("child stage %d not past parent stage %d", *got["c"].Stage, *got["p"].Stage)
	}
	if got["c"].Rank <= got["p"].Rank {
		t.Fatalf("child rank %v not past parent rank %v", got["c"].Rank, got["p"].Rank)
	}
	if *got["g"].Stage <= *got["c"].Stage {
		t.Fatalf("grandchild stage %d not past child stage %d", *got["g"].Stage, *got["c"].Stage)
	}
	if got["g"].Rank <= got["c"].Rank {
		t.Fatalf("grandchild rank %v not past child rank %v", got["g"].Rank, got["c"].Rank)
	}
}

func TestRebalance_GravityHandlesRankCollisions(t *testing.T) {
	// Every node at the same rank: the gravity pass must still terminate and
	// produce strictly increasing ranks down the chain.
	in := []model.Task{
		task("r", intp(1), nil, 1000),
		task("a", intp(2), strp("r"), 1000),
		task("b", intp(3), strp("a"), 1000),
		task("c", intp(4), strp("b"), 1000),
	}
	got := byID(Rebalance(in))
	chain := []string{"r", "a", "b", "c"}
	for i := 1; i < len(chain); i++ {
		if got[chain[i]].Rank <= got[chain[i-1]].Rank {
			t.Fatalf("rank not monotonic at %s: %v <= %v", chain[i], got[chain[i]].Rank, got[chain[i-1]].Rank)
		}
	}
}

func TestRebalance_UnassignedTasks(t *testing.T) {
	in := []model.Task{
		task("u1", nil, nil, 0),
		task("u2", nil, nil, 0),
	}
	got := byID(Rebalance(in))
	for _, id := range []string{"u1", "u2"} {
		if got[id].DisplayID != "?" {
			t.Fatalf("%s.DisplayID = %q, want %q", id, got[id].DisplayID, "?")
		}
	}
	if got["u1"].Order == got["u2"].Order {
		t.Fatalf("unassigned order not normalized: both %d", got["u1"].Order)
	}
}

func TestRebalance_DisplayIDUniqueness(t *testing.T) {
	in := []model.Task{
		task("r1", intp(1), nil, 1010),
		task("r2", intp(1), nil, 1020),
		task("c1", intp(2), strp("r1"), 2010),
		task("c2", intp(2), strp("r1"), 2020),
		task("c3", intp(2), strp("r2"), 2030),
		task("gc", intp(3), strp("c1"), 3010),
		task("u", nil, nil, 0),
	}
	out := Rebalance(in)
	seen := map[string]string{}
	for _, x := range out {
		if x.DisplayID == "?" || x.DisplayID == "" {
			continue
		}
		if prev, dup := seen[x.DisplayID]; dup {
			t.Fatalf("duplicate displayId %q on %s and %s", x.DisplayID, prev, x.ID)
		}
		seen[x.DisplayID] = x.ID
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 labeled tasks, got %d: %v", len(seen), seen)
	}
}

func TestRebalance_LetterWraparoundPast26Siblings(t *testing.T) {
	in := []model.Task{task("root", intp(1), nil, 1000)}
	for i := 0; i < 28; i++ {
		c := task("c"+string(rune('a'+i/26))+string(rune('a'+i%26)), intp(2), strp("root"), 2000+float64(i)*Step)
		in = append(in, c)
	}
	out := Rebalance(in)
	got := byID(out)
	// The 27th and 28th children reuse letters a and b. This wraparound is
	// accepted behavior, not something rebalance corrects.
	if got["cba"].DisplayID != "1,a" {
		t.Fatalf("27th child displayId = %q, want wrapped %q", got["cba"].DisplayID, "1,a")
	}
	if got["cbb"].DisplayID != "1,b" {
		t.Fatalf("28th child displayId = %q, want wrapped %q", got["cbb"].DisplayID, "1,b")
	}
}

func TestRebalance_Idempotent(t *testing.T) {
	in := []model.Task{
		task("r1", intp(1), nil, 0),
		task("r2", intp(1), nil, 0),
		task("c1", intp(1), strp("r1"), 0),
		task("c2", intp(2), strp("c1"), 5),
		task("u", nil, nil, 0),
	}
	once := Rebalance(in)
	twice := Rebalance(once)
	a := byID(once)
	b := byID(twice)
	for id := range a {
		x, y := a[id], b[id]
		if x.Rank != y.Rank || x.Order != y.Order || x.DisplayID != y.DisplayID {
			t.Fatalf("not a fixed point for %s: (%v,%d,%q) vs (%v,%d,%q)",
				id, x.Rank, x.Order, x.DisplayID, y.Rank, y.Order, y.DisplayID)
		}
		if (x.Stage == nil) != (y.Stage == nil) || (x.Stage != nil && *x.Stage != *y.Stage) {
			t.Fatalf("stage changed on second rebalance for %s", id)
		}
	}
}

func TestRebalance_DoesNotClobberPlacedPositions(t *testing.T) {
	placed := task("p", intp(1), nil, 1010)
	placed.X, placed.Y = f64p(42), f64p(-7)
	in := []model.Task{placed, task("fresh", intp(1), nil, 1020)}
	got := byID(Rebalance(in))
	if *got["p"].X != 42 || *got["p"].Y != -7 {
		t.Fatalf("user position clobbered: (%v,%v)", *got["p"].X, *got["p"].Y)
	}
	if got["fresh"].X == nil || got["fresh"].Y == nil {
		t.Fatalf("fresh task did not receive a grid position")
	}
}

func TestRebalance_SkipsDeletedTasks(t *testing.T) {
	now := time.Unix(1700000100, 0)
	dead := task("dead", intp(1), nil, 1005)
	dead.DeletedAt = &now
	dead.DisplayID = "stale"
	in := []model.Task{dead, task("alive", intp(1), nil, 1010)}
	got := byID(Rebalance(in))
	if got["dead"].DisplayID != "stale" {
		t.Fatalf("deleted task was touched: displayId %q", got["dead"].DisplayID)
	}
	if got["alive"].DisplayID != "1" {
		t.Fatalf("alive.DisplayID = %q, want %q", got["alive"].DisplayID, "1")
	}
}

func TestRebalance_ChecklistScan(t *testing.T) {
	open := task("open", intp(1), nil, 1010)
	open.Content = "notes\n- [ ] ship it\n- [x] done bit"
	closed := task("closed", intp(1), nil, 1020)
	closed.Content = "- [x] all done"
	got := byID(Rebalance([]model.Task{open, closed}))
	if !got["open"].HasIncompleteItem {
		t.Fatalf("open checklist not detected")
	}
	if got["closed"].HasIncompleteItem {
		t.Fatalf("completed checklist flagged as incomplete")
	}
}
