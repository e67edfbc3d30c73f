package mutate

import (
	"time"

	"driftboard/internal/model"
	"driftboard/internal/store"
)

// AddConnection creates a directed edge between two tasks. Self-loops and
// duplicate active (source,target) pairs are silent no-ops, matching the
// board's drag behavior.
func AddConnection(st *store.Store, projectID, source, target, title, description string, now time.Time) (Effect, model.Connection, error) {
	if source == target {
		return Effect{}, model.Connection{}, nil
	}
	for _, c := range st.ConnectionsByProject(projectID) {
		if !c.Deleted() && c.Source == source && c.Target == target {
			return Effect{}, model.Connection{}, nil
		}
	}
	for _, id := range []string{source, target} {
		if t, ok := st.Task(id); !ok || t.Deleted() {
			return Effect{}, model.Connection{}, NotFoundError{Kind: "task", ID: id}
		}
	}

	c := model.Connection{
		ID:          store.NewID(),
		ProjectID:   projectID,
		Source:      source,
		Target:      target,
		Title:       title,
		Description: description,
		UpdatedAt:   now,
	}
	if err := st.PutConnection(c); err != nil {
		return Effect{}, model.Connection{}, err
	}
	return Effect{Changed: true, ConnsAfter: []model.Connection{c}}, c, nil
}

// DeleteConnection soft-deletes an edge.
func DeleteConnection(st *store.Store, connID string, now time.Time) (Effect, error) {
	c, ok := st.Connection(connID)
	if !ok || c.Deleted() {
		return Effect{}, NotFoundError{Kind: "connection", ID: connID}
	}
	before := c.Clone()
	ts := now
	c.DeletedAt = &ts
	c.UpdatedAt = now
	if err := st.PutConnection(c); err != nil {
		return Effect{}, err
	}
	return Effect{
		Changed:     true,
		ConnsBefore: []model.Connection{before},
		ConnsAfter:  []model.Connection{c},
	}, nil
}

// DeleteProjectCascade tears down a project locally: every task and
// connection row is removed along with the project itself. The returned id
// lists let the caller issue the matching remote deletes.
func DeleteProjectCascade(st *store.Store, projectID string) (taskIDs, connIDs []string, err error) {
	if _, ok := st.Project(projectID); !ok {
		return nil, nil, NotFoundError{Kind: "project", ID: projectID}
	}
	for _, t := range st.TasksByProject(projectID) {
		taskIDs = append(taskIDs, t.ID)
	}
	for _, c := range st.ConnectionsByProject(projectID) {
		connIDs = append(connIDs, c.ID)
	}
	if err := st.ClearProject(projectID); err != nil {
		return nil, nil, err
	}
	if err := st.RemoveProject(projectID); err != nil {
		return nil, nil, err
	}
	return taskIDs, connIDs, nil
}
