package rank

import (
	"testing"

	"driftboard/internal/model"
)

func TestInsertRank_Midpoint(t *testing.T) {
	sibs := []model.Task{
		task("a", intp(1), nil, 1010),
		task("b", intp(1), nil, 1030),
	}
	r := InsertRank(intp(1), sibs, "b")
	if r != 1020 {
		t.Fatalf("InsertRank = %v, want midpoint 1020", r)
	}
}

func TestInsertRank_Append(t *testing.T) {
	sibs := []model.Task{task("a", intp(1), nil, 1010)}
	r := InsertRank(intp(1), sibs, "")
	if r != 1010+Step {
		t.Fatalf("InsertRank = %v, want %v", r, 1010+Step)
	}
}

func TestInsertRank_BeforeFirst(t *testing.T) {
	sibs := []model.Task{task("a", intp(1), nil, 1010)}
	r := InsertRank(intp(1), sibs, "a")
	if r != 1010-Step {
		t.Fatalf("InsertRank = %v, want %v", r, 1010-Step)
	}
}

func TestInsertRank_EmptySiblings(t *testing.T) {
	if r := InsertRank(intp(3), nil, ""); r != StageBase(intp(3)) {
		t.Fatalf("InsertRank = %v, want stage base %v", r, StageBase(intp(3)))
	}
}

func TestInsertRank_IgnoresDeletedSiblings(t *testing.T) {
	dead := task("dead", intp(1), nil, 1050)
	ts := dead.UpdatedAt
	dead.DeletedAt = &ts
	sibs := []model.Task{task("a", intp(1), nil, 1010), dead}
	if r := InsertRank(intp(1), sibs, ""); r != 1010+Step {
		t.Fatalf("InsertRank = %v, want %v (deleted sibling must not anchor)", r, 1010+Step)
	}
}

func TestClampRank_WithinBounds(t *testing.T) {
	parent, child := 1000.0, 1100.0
	r, ok := ClampRank(1050, &parent, &child)
	if !ok || r != 1050 {
		t.Fatalf("ClampRank = (%v,%v), want (1050,true)", r, ok)
	}
}

func TestClampRank_PushesPastParent(t *testing.T) {
	parent := 1000.0
	r, ok := ClampRank(990, &parent, nil)
	if !ok || r <= parent {
		t.Fatalf("ClampRank = (%v,%v), want rank above parent", r, ok)
	}
}

func TestClampRank_PullsBelowChild(t *testing.T) {
	child := 1000.0
	r, ok := ClampRank(1200, nil, &child)
	if !ok || r >= child {
		t.Fatalf("ClampRank = (%v,%v), want rank below min child", r, ok)
	}
}

func TestClampRank_RefusesInvertedBounds(t *testing.T) {
	parent, child := 1100.0, 1000.0
	r, ok := ClampRank(1050, &parent, &child)
	if ok {
		t.Fatalf("ClampRank accepted inverted bounds, got %v", r)
	}
	if r != 1050 {
		t.Fatalf("refused clamp must echo the candidate unchanged, got %v", r)
	}
}
