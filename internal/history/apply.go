package history

import "driftboard/internal/model"

// Applier is the slice of the store history needs to replay an entry.
type Applier interface {
	PutTasks([]model.Task) error
	RemoveTask(id string) error
	PutConnection(model.Connection) error
	RemoveConnection(id string) error
}

// Apply replays one side of an entry against the store. inverse=true
// restores the Before state (undo), inverse=false the After state (redo).
// Entities present only on the discarded side are removed, so undoing a
// create deletes and undoing a cascade restores the whole subtree at once.
func Apply(a Applier, e Entry, inverse bool) error {
	keepTasks, dropTasks := e.TasksAfter, e.TasksBefore
	keepConns, dropConns := e.ConnsAfter, e.ConnsBefore
	if inverse {
		keepTasks, dropTasks = e.TasksBefore, e.TasksAfter
		keepConns, dropConns = e.ConnsBefore, e.ConnsAfter
	}

	keepTaskIDs := map[string]bool{}
	for _, t := range keepTasks {
		keepTaskIDs[t.ID] = true
	}
	for _, t := range dropTasks {
		if !keepTaskIDs[t.ID] {
			if err := a.RemoveTask(t.ID); err != nil {
				return err
			}
		}
	}
	if len(keepTasks) > 0 {
		if err := a.PutTasks(cloneTasks(keepTasks)); err != nil {
			return err
		}
	}

	keepConnIDs := map[string]bool{}
	for _, c := range keepConns {
		keepConnIDs[c.ID] = true
	}
	for _, c := range dropConns {
		if !keepConnIDs[c.ID] {
			if err := a.RemoveConnection(c.ID); err != nil {
				return err
			}
		}
	}
	for _, c := range keepConns {
		if err := a.PutConnection(c.Clone()); err != nil {
			return err
		}
	}
	return nil
}
