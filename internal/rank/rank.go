package rank

import (
	"sort"

	"driftboard/internal/model"
)

// Rank spacing constants. Ranks are floats; siblings are ordered by rank and
// a child's rank must stay strictly above its parent's.
const (
	Step     = 10.0
	RootBase = 1000.0
)

// StageBase is the anchor rank for a stage column. Unassigned (nil stage)
// anchors at zero.
func StageBase(stage *int) float64 {
	if stage == nil {
		return 0
	}
	return RootBase * float64(*stage)
}

// SortByRank orders tasks the way every view does: rank, then order, then ID
// as the final tiebreak so the result is deterministic under rank collisions.
func SortByRank(tasks []*model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
}

// InsertRank computes the rank for inserting a task into a sibling set.
// beforeID targets the slot in front of that sibling; empty means append.
// Boundary slots fall back to prev+Step / next-Step / StageBase.
func InsertRank(stage *int, siblings []model.Task, beforeID string) float64 {
	live := make([]*model.Task, 0, len(siblings))
	for i := range siblings {
		if siblings[i].Deleted() {
			continue
		}
		live = append(live, &siblings[i])
	}
	SortByRank(live)

	at := len(live)
	if beforeID != "" {
		for i, t := range live {
			if t.ID == beforeID {
				at = i
				break
			}
		}
	}

	var prev, next *model.Task
	if at > 0 {
		prev = live[at-1]
	}
	if at < len(live) {
		next = live[at]
	}

	switch {
	case prev != nil && next != nil:
		return (prev.Rank + next.Rank) / 2
	case prev != nil:
		return prev.Rank + Step
	case next != nil:
		return next.Rank - Step
	default:
		return StageBase(stage)
	}
}

// ClampRank applies the refusal strategy to a candidate rank: the result must
// stay strictly above parentRank and strictly below minChildRank (either bound
// may be nil). When no rank satisfies both bounds the move is refused and the
// caller must leave state untouched.
func ClampRank(candidate float64, parentRank, minChildRank *float64) (float64, bool) {
	r := candidate
	if parentRank != nil && r <= *parentRank {
		r = *parentRank + Step
	}
	if minChildRank != nil && r >= *minChildRank {
		if parentRank != nil {
			r = (*parentRank + *minChildRank) / 2
		} else {
			r = *minChildRank - Step
		}
	}
	if parentRank != nil && r <= *parentRank {
		return candidate, false
	}
	if minChildRank != nil && r >= *minChildRank {
		return candidate, false
	}
	return r, true
}
