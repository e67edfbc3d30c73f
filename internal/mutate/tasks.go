// Package mutate implements the semantic operations over the entity store:
// create/move/detach/delete for tasks, connection edits, project teardown.
// Every operation applies optimistically to the local store, re-runs the
// rank engine, and reports the before/after diff for history recording.
// Topology-violating moves are refused (Effect.Refused), never thrown.
package mutate

import (
	"time"

	"driftboard/internal/model"
	"driftboard/internal/rank"
	"driftboard/internal/store"
)

// Effect reports what an operation did. TasksBefore/TasksAfter hold only
// the tasks whose fields actually changed (snapshots, not live references),
// sized for a single history entry.
type Effect struct {
	Changed bool
	Refused bool

	TasksBefore []model.Task
	TasksAfter  []model.Task
	ConnsBefore []model.Connection
	ConnsAfter  []model.Connection
}

// CreateTask inserts a new task into a stage (or the unassigned pool when
// stage is nil), anchored before beforeID or appended, and rebalances.
func CreateTask(st *store.Store, projectID, title, content string, stage *int, parentID *string, beforeID string, now time.Time) (Effect, model.Task, error) {
	before := st.TasksByProject(projectID)

	t := model.Task{
		ID:        store.NewID(),
		ShortID:   store.UniqueShortID("task", st.ShortIDsInUse()),
		ProjectID: projectID,
		Title:     title,
		Content:   content,
		Status:    model.TaskStatusActive,
		UpdatedAt: now,
	}
	if stage != nil {
		s := *stage
		t.Stage = &s
		t.Rank = rank.InsertRank(stage, siblingsInStage(before, s), beforeID)
		if parentID != nil {
			parent, ok := findLive(before, *parentID)
			if !ok {
				return Effect{}, model.Task{}, NotFoundError{Kind: "task", ID: *parentID}
			}
			pid := parent.ID
			t.ParentID = &pid
			clamped, ok := rank.ClampRank(t.Rank, &parent.Rank, nil)
			if !ok {
				return Effect{Refused: true}, model.Task{}, nil
			}
			t.Rank = clamped
		}
	}

	if err := st.PutTask(t); err != nil {
		return Effect{}, model.Task{}, err
	}
	eff, err := rebalanceProject(st, projectID, before, now)
	if err != nil {
		return Effect{}, model.Task{}, err
	}
	created, _ := st.Task(t.ID)
	return eff, created, nil
}

// EditTask overwrites a task's mutable content fields and rebalances (the
// checklist scan feeds off content).
func EditTask(st *store.Store, t model.Task, now time.Time) (Effect, error) {
	cur, ok := st.Task(t.ID)
	if !ok || cur.Deleted() {
		return Effect{}, NotFoundError{Kind: "task", ID: t.ID}
	}
	before := st.TasksByProject(cur.ProjectID)
	t.UpdatedAt = now
	if err := st.PutTask(t); err != nil {
		return Effect{}, err
	}
	return rebalanceProject(st, cur.ProjectID, before, now)
}

// MoveTask re-anchors a task into a stage and (optionally) under a parent,
// in front of beforeID. A nil stage detaches the task into the unassigned
// pool; its children are re-parented to the task's former parent. Moves
// that would invert parent/child rank topology are refused: the effect
// reports Refused and no state changes.
func MoveTask(st *store.Store, taskID string, stage *int, parentID *string, beforeID string, now time.Time) (Effect, error) {
	t, ok := st.Task(taskID)
	if !ok || t.Deleted() {
		return Effect{}, NotFoundError{Kind: "task", ID: taskID}
	}
	before := st.TasksByProject(t.ProjectID)

	if stage == nil {
		return detach(st, t, before, now)
	}

	if parentID != nil {
		if *parentID == t.ID || isDescendant(before, t.ID, *parentID) {
			// Re-parenting under yourself or your own subtree would cycle the
			// hierarchy; fail closed.
			return Effect{Refused: true}, nil
		}
		if _, ok := findLive(before, *parentID); !ok {
			return Effect{}, NotFoundError{Kind: "task", ID: *parentID}
		}
	}

	sibs := siblingsInStage(before, *stage)
	candidate := rank.InsertRank(stage, withoutTask(sibs, t.ID), beforeID)

	var parentRank *float64
	if parentID != nil {
		parent, _ := findLive(before, *parentID)
		parentRank = &parent.Rank
	}
	minChild := minChildRank(before, t.ID)

	clamped, ok := rank.ClampRank(candidate, parentRank, minChild)
	if !ok {
		return Effect{Refused: true}, nil
	}

	s := *stage
	t.Stage = &s
	t.ParentID = nil
	if parentID != nil {
		pid := *parentID
		t.ParentID = &pid
	}
	t.Rank = clamped
	t.UpdatedAt = now
	if err := st.PutTask(t); err != nil {
		return Effect{}, err
	}
	return rebalanceProject(st, t.ProjectID, before, now)
}

// detach pulls a task out of the hierarchy into the unassigned pool. Its
// children hop to the task's former parent (or become parentless),
// preserving stage continuity.
func detach(st *store.Store, t model.Task, before []model.Task, now time.Time) (Effect, error) {
	formerParent := t.ParentID

	var updates []model.Task
	for _, c := range before {
		if c.Deleted() || c.ParentID == nil || *c.ParentID != t.ID {
			continue
		}
		c.ParentID = nil
		if formerParent != nil {
			pid := *formerParent
			c.ParentID = &pid
		}
		c.UpdatedAt = now
		updates = append(updates, c)
	}

	t.Stage = nil
	t.ParentID = nil
	t.Rank = 0
	t.Order = 0
	t.UpdatedAt = now
	updates = append(updates, t)

	if err := st.PutTasks(updates); err != nil {
		return Effect{}, err
	}
	return rebalanceProject(st, t.ProjectID, before, now)
}

// DeleteTaskCascade soft-deletes a task and its transitive descendants as
// one atomic effect (a single undo restores the whole subtree).
func DeleteTaskCascade(st *store.Store, taskID string, now time.Time) (Effect, []string, error) {
	t, ok := st.Task(taskID)
	if !ok || t.Deleted() {
		return Effect{}, nil, NotFoundError{Kind: "task", ID: taskID}
	}
	before := st.TasksByProject(t.ProjectID)

	ids := subtreeIDs(before, taskID)
	var updates []model.Task
	for _, x := range before {
		if !ids[x.ID] || x.Deleted() {
			continue
		}
		ts := now
		x.DeletedAt = &ts
		x.UpdatedAt = now
		updates = append(updates, x)
	}
	if err := st.PutTasks(updates); err != nil {
		return Effect{}, nil, err
	}
	eff, err := rebalanceProject(st, t.ProjectID, before, now)
	if err != nil {
		return Effect{}, nil, err
	}
	deleted := make([]string, 0, len(updates))
	for _, x := range updates {
		deleted = append(deleted, x.ID)
	}
	return eff, deleted, nil
}

// Rebalance re-derives ordering for a project without any primary mutation
// (used after pulls merge remote rows into the store).
func Rebalance(st *store.Store, projectID string, now time.Time) (Effect, error) {
	return rebalanceProject(st, projectID, st.TasksByProject(projectID), now)
}

func rebalanceProject(st *store.Store, projectID string, before []model.Task, now time.Time) (Effect, error) {
	cur := st.TasksByProject(projectID)
	next := rank.Rebalance(cur)

	beforeByID := map[string]model.Task{}
	for _, t := range before {
		beforeByID[t.ID] = t
	}
	curByID := map[string]model.Task{}
	for _, t := range cur {
		curByID[t.ID] = t
	}

	var persist []model.Task
	for _, t := range next {
		if c, ok := curByID[t.ID]; ok && !taskEqual(c, t) {
			t.UpdatedAt = now
			persist = append(persist, t)
		}
	}
	if err := st.PutTasks(persist); err != nil {
		return Effect{}, err
	}

	eff := Effect{}
	after := st.TasksByProject(projectID)
	for _, a := range after {
		b, existed := beforeByID[a.ID]
		if existed && taskEqual(a, b) && a.UpdatedAt.Equal(b.UpdatedAt) {
			continue
		}
		eff.Changed = true
		if existed {
			eff.TasksBefore = append(eff.TasksBefore, b)
		}
		eff.TasksAfter = append(eff.TasksAfter, a)
	}
	return eff, nil
}

// taskEqual compares the fields rebalance and moves may touch.
func taskEqual(a, b model.Task) bool {
	if a.Title != b.Title || a.Content != b.Content || a.Status != b.Status {
		return false
	}
	if a.Rank != b.Rank || a.Order != b.Order || a.DisplayID != b.DisplayID {
		return false
	}
	if a.HasIncompleteItem != b.HasIncompleteItem {
		return false
	}
	if (a.Stage == nil) != (b.Stage == nil) || (a.Stage != nil && *a.Stage != *b.Stage) {
		return false
	}
	if (a.ParentID == nil) != (b.ParentID == nil) || (a.ParentID != nil && *a.ParentID != *b.ParentID) {
		return false
	}
	if (a.X == nil) != (b.X == nil) || (a.X != nil && *a.X != *b.X) {
		return false
	}
	if (a.Y == nil) != (b.Y == nil) || (a.Y != nil && *a.Y != *b.Y) {
		return false
	}
	if (a.DeletedAt == nil) != (b.DeletedAt == nil) {
		return false
	}
	return true
}

func findLive(tasks []model.Task, id string) (model.Task, bool) {
	for _, t := range tasks {
		if t.ID == id && !t.Deleted() {
			return t, true
		}
	}
	return model.Task{}, false
}

func siblingsInStage(tasks []model.Task, stage int) []model.Task {
	var out []model.Task
	for _, t := range tasks {
		if t.Deleted() || t.Stage == nil || *t.Stage != stage {
			continue
		}
		out = append(out, t)
	}
	return out
}

func withoutTask(tasks []model.Task, id string) []model.Task {
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// minChildRank returns the smallest rank among a task's live children, or
// nil when it has none.
func minChildRank(tasks []model.Task, parentID string) *float64 {
	var min *float64
	for _, t := range tasks {
		if t.Deleted() || t.ParentID == nil || *t.ParentID != parentID {
			continue
		}
		r := t.Rank
		if min == nil || r < *min {
			min = &r
		}
	}
	return min
}

// isDescendant reports whether candidateID sits in rootID's subtree.
func isDescendant(tasks []model.Task, rootID, candidateID string) bool {
	return subtreeIDs(tasks, rootID)[candidateID]
}

// subtreeIDs collects rootID and all transitive live descendants.
func subtreeIDs(tasks []model.Task, rootID string) map[string]bool {
	children := map[string][]string{}
	for _, t := range tasks {
		if t.Deleted() || t.ParentID == nil {
			continue
		}
		children[*t.ParentID] = append(children[*t.ParentID], t.ID)
	}
	out := map[string]bool{}
	var walk func(id string)
	walk = func(id string) {
		if out[id] {
			return
		}
		out[id] = true
		for _, c := range children[id] {
			walk(c)
		}
	}
	walk(rootID)
	return out
}
