package cli

import (
	"time"

	"driftboard/internal/history"
	"driftboard/internal/model"
	"driftboard/internal/mutate"

	"github.com/spf13/cobra"
)

func newUndoCmd(app *App) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Undo the last operation in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryStep(cmd, app, projectID, true)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newRedoCmd(app *App) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "redo",
		Short: "Redo the last undone operation in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryStep(cmd, app, projectID, false)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func runHistoryStep(cmd *cobra.Command, app *App, projectID string, inverse bool) error {
	e, err := app.open()
	if err != nil {
		return writeErr(cmd, err)
	}
	defer e.close()

	h := e.hist.Project(projectID)
	var entry *history.Entry
	if inverse {
		entry = h.Undo()
	} else {
		entry = h.Redo()
	}
	if entry == nil {
		// Exhausted history is a quiet no-op.
		return writeOut(cmd, app, map[string]any{"data": nil})
	}

	if err := history.Apply(e.st, *entry, inverse); err != nil {
		return writeErr(cmd, err)
	}
	if _, err := mutate.Rebalance(e.st, projectID, time.Now().UTC()); err != nil {
		return writeErr(cmd, err)
	}

	// Push the restored rows; rows that exist only on the discarded side
	// were removed locally and need remote deletes.
	kept, discarded := entry.TasksBefore, entry.TasksAfter
	if !inverse {
		kept, discarded = discarded, kept
	}
	keptIDs := map[string]bool{}
	var push []model.Task
	for _, t := range kept {
		keptIDs[t.ID] = true
		if cur, ok := e.st.Task(t.ID); ok {
			push = append(push, cur)
		}
	}
	var deletes []string
	for _, t := range discarded {
		if !keptIDs[t.ID] {
			deletes = append(deletes, t.ID)
		}
	}
	keptConns, discardedConns := entry.ConnsBefore, entry.ConnsAfter
	if !inverse {
		keptConns, discardedConns = discardedConns, keptConns
	}
	keptConnIDs := map[string]bool{}
	var pushConns []model.Connection
	for _, c := range keptConns {
		keptConnIDs[c.ID] = true
		if cur, ok := e.st.Connection(c.ID); ok {
			pushConns = append(pushConns, cur)
		}
	}
	var connDeletes []string
	for _, c := range discardedConns {
		if !keptConnIDs[c.ID] {
			connDeletes = append(connDeletes, c.ID)
		}
	}

	ctx := cmd.Context()
	e.co.PushTasks(ctx, push)
	e.co.PushTaskDeletes(ctx, projectID, deletes)
	for _, c := range pushConns {
		e.co.PushConnection(ctx, c)
	}
	e.co.PushConnectionDeletes(ctx, projectID, connDeletes)
	return writeOut(cmd, app, map[string]any{"data": map[string]any{
		"label": entry.Label,
		"at":    entry.At,
	}})
}
