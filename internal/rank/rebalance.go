package rank

import (
	"regexp"
	"sort"
	"strconv"

	"driftboard/internal/model"
)

// Grid slot size used when a task has never been placed in the graph view.
const (
	gridColWidth  = 260.0
	gridRowHeight = 120.0
)

var incompleteChecklist = regexp.MustCompile(`(?m)^\s*[-*] \[ \]`)

// Rebalance normalizes a project's task set: missing ranks are filled in,
// parent/stage and parent/rank violations are corrected (never refused here —
// rebalance repairs, moves refuse), per-stage order fields are recomputed,
// display ids are assigned, and a gravity pass restores strict rank
// monotonicity down every parent chain. Soft-deleted tasks pass through
// untouched. The input is not mutated; Rebalance is idempotent.
func Rebalance(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	live := make([]*model.Task, 0, len(tasks))
	byID := make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
		if out[i].Deleted() {
			continue
		}
		live = append(live, &out[i])
		byID[out[i].ID] = &out[i]
	}

	assignMissingRanks(live)

	for _, t := range live {
		t.HasIncompleteItem = incompleteChecklist.MatchString(t.Content)
	}

	alignToParents(live, byID)

	stages := groupByStage(live)
	for stage, group := range stages {
		SortByRank(group)
		for i, t := range group {
			t.Order = i + 1
			if t.X == nil && t.Y == nil {
				x := float64(stage-1) * gridColWidth
				y := float64(i) * gridRowHeight
				t.X, t.Y = &x, &y
			}
		}
	}

	unassigned := unassignedOf(live)
	SortByRank(unassigned)
	for i, t := range unassigned {
		t.Order = i + 1
		t.DisplayID = "?"
	}

	children := childrenByParent(live, byID)
	roots := rootsOf(live, byID)

	for i, root := range roots {
		assignDisplayIDs(root, strconv.Itoa(i+1), children)
	}

	for _, root := range roots {
		seen := map[string]bool{}
		applyGravity(root, root.Rank-Step, children, seen)
	}

	for _, group := range groupByStage(live) {
		SortByRank(group)
		for i, t := range group {
			t.Order = i + 1
		}
	}
	unassigned = unassignedOf(live)
	SortByRank(unassigned)
	for i, t := range unassigned {
		t.Order = i + 1
	}

	return out
}

// assignMissingRanks fills rank zero (never assigned) tasks with
// stageBase + n*Step, walking each stage's unranked tasks in (order, id)
// sequence past the stage's current maximum slot.
func assignMissingRanks(live []*model.Task) {
	type group struct {
		missing []*model.Task
		maxSlot int
	}
	groups := map[int]*group{} // key: stage value, -1 for unassigned
	key := func(t *model.Task) int {
		if t.Stage == nil {
			return -1
		}
		return *t.Stage
	}
	for _, t := range live {
		g := groups[key(t)]
		if g == nil {
			g = &group{}
			groups[key(t)] = g
		}
		if t.Rank == 0 {
			g.missing = append(g.missing, t)
		}
		if t.Order > g.maxSlot {
			g.maxSlot = t.Order
		}
	}
	for _, g := range groups {
		sort.SliceStable(g.missing, func(i, j int) bool {
			a, b := g.missing[i], g.missing[j]
			if a.Order != b.Order {
				return a.Order < b.Order
			}
			return a.ID < b.ID
		})
		slot := g.maxSlot
		for _, t := range g.missing {
			slot++
			t.Rank = StageBase(t.Stage) + float64(slot)*Step
		}
	}
}

// alignToParents forces child.stage > parent.stage and child.rank >
// parent.rank for direct edges. Deeper chains are left to the gravity pass.
func alignToParents(live []*model.Task, byID map[string]*model.Task) {
	for _, t := range live {
		if t.ParentID == nil {
			continue
		}
		parent, ok := byID[*t.ParentID]
		if !ok {
			continue
		}
		if parent.Stage != nil {
			if t.Stage == nil || *t.Stage <= *parent.Stage {
				s := *parent.Stage + 1
				t.Stage = &s
			}
		}
		if t.Rank <= parent.Rank {
			t.Rank = parent.Rank + Step
		}
	}
}

func groupByStage(live []*model.Task) map[int][]*model.Task {
	out := map[int][]*model.Task{}
	for _, t := range live {
		if t.Stage == nil {
			continue
		}
		out[*t.Stage] = append(out[*t.Stage], t)
	}
	return out
}

func unassignedOf(live []*model.Task) []*model.Task {
	var out []*model.Task
	for _, t := range live {
		if t.Stage == nil {
			out = append(out, t)
		}
	}
	return out
}

// rootsOf collects the staged tasks that head a subtree: no parent, or a
// parent pointer at a deleted/unknown task. Ordered by stage, then rank, so
// root numbering reads left to right across the board.
func rootsOf(live []*model.Task, byID map[string]*model.Task) []*model.Task {
	var out []*model.Task
	for _, t := range live {
		if t.Stage == nil {
			continue
		}
		if t.ParentID != nil {
			if _, ok := byID[*t.ParentID]; ok {
				continue
			}
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if *a.Stage != *b.Stage {
			return *a.Stage < *b.Stage
		}
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.ID < b.ID
	})
	return out
}

// childrenByParent indexes live children under live parents only. A child
// whose parent id points at a deleted or unknown task is treated as detached.
func childrenByParent(live []*model.Task, byID map[string]*model.Task) map[string][]*model.Task {
	out := map[string][]*model.Task{}
	for _, t := range live {
		if t.ParentID == nil {
			continue
		}
		if _, ok := byID[*t.ParentID]; !ok {
			continue
		}
		out[*t.ParentID] = append(out[*t.ParentID], t)
	}
	return out
}

// assignDisplayIDs labels a subtree: children get parentLabel + "," + letter
// in rank order. Past 26 siblings the letters wrap; duplicate labels beyond
// that point are a known limitation, not corrected.
func assignDisplayIDs(t *model.Task, label string, children map[string][]*model.Task) {
	t.DisplayID = label
	kids := children[t.ID]
	SortByRank(kids)
	for i, c := range kids {
		letter := string(rune('a' + i%26))
		assignDisplayIDs(c, label+","+letter, children)
	}
}

// applyGravity pushes ranks down a subtree so that every node sits strictly
// above the running floor. Children are visited in rank order, which keeps
// sibling ordering stable. The seen guard bounds the walk even if a parent
// chain is malformed into a cycle.
func applyGravity(t *model.Task, floor float64, children map[string][]*model.Task, seen map[string]bool) float64 {
	if seen[t.ID] {
		return floor
	}
	seen[t.ID] = true
	if t.Rank <= floor {
		t.Rank = floor + Step
	}
	floor = t.Rank
	kids := children[t.ID]
	SortByRank(kids)
	for _, c := range kids {
		floor = applyGravity(c, floor, children, seen)
	}
	return floor
}
