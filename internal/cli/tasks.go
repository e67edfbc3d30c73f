package cli

import (
	"time"

	"driftboard/internal/history"
	"driftboard/internal/model"
	"driftboard/internal/mutate"

	"github.com/spf13/cobra"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Task commands",
	}
	cmd.AddCommand(newTasksAddCmd(app))
	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksEditCmd(app))
	cmd.AddCommand(newTasksMoveCmd(app))
	cmd.AddCommand(newTasksDetachCmd(app))
	cmd.AddCommand(newTasksCompleteCmd(app))
	cmd.AddCommand(newTasksDeleteCmd(app))
	return cmd
}

// resolveTask accepts a full id or a short id.
func resolveTask(e *engine, ref string) (model.Task, bool) {
	if t, ok := e.st.Task(ref); ok {
		return t, true
	}
	return e.st.TaskByShortID(ref)
}

// commit records an operation's effect in the project history and marks the
// changed rows dirty on the debounced pusher; they go out as one batch when
// the window closes, or on engine close at the latest. debounceKey coalesces
// keystroke-level edits into one history entry.
func (e *engine) commit(projectID, label, debounceKey string, eff mutate.Effect) {
	if !eff.Changed {
		return
	}
	entry := history.Entry{
		Label:       label,
		TasksBefore: eff.TasksBefore,
		TasksAfter:  eff.TasksAfter,
		ConnsBefore: eff.ConnsBefore,
		ConnsAfter:  eff.ConnsAfter,
	}
	h := e.hist.Project(projectID)
	if debounceKey != "" {
		h.RecordDebounced(debounceKey, entry)
	} else {
		h.Record(entry)
	}
	// Deleted rows go out through the explicit delete path, not as upserts.
	for _, t := range eff.TasksAfter {
		if !t.Deleted() {
			e.pusher.Notify(model.EntityTask, t.ID)
		}
	}
	for _, c := range eff.ConnsAfter {
		if !c.Deleted() {
			e.pusher.Notify(model.EntityConnection, c.ID)
		}
	}
}

func newTasksAddCmd(app *App) *cobra.Command {
	var (
		projectID string
		title     string
		content   string
		stage     int
		parent    string
		before    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			var stagePtr *int
			if cmd.Flags().Changed("stage") {
				stagePtr = &stage
			}
			var parentPtr *string
			if parent != "" {
				p, ok := resolveTask(e, parent)
				if !ok {
					return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: parent})
				}
				parentPtr = &p.ID
			}

			eff, task, err := mutate.CreateTask(e.st, projectID, title, content, stagePtr, parentPtr, before, time.Now().UTC())
			if err != nil {
				return writeErr(cmd, err)
			}
			if eff.Refused {
				return writeOut(cmd, app, map[string]any{"refused": true})
			}
			e.commit(projectID, "add task", "", eff)
			return writeOut(cmd, app, map[string]any{"data": task})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id")
	cmd.Flags().StringVar(&title, "title", "", "Task title")
	cmd.Flags().StringVar(&content, "content", "", "Markdown content")
	cmd.Flags().IntVar(&stage, "stage", 0, "Stage column (omit for the unassigned pool)")
	cmd.Flags().StringVar(&parent, "parent", "", "Parent task id")
	cmd.Flags().StringVar(&before, "before", "", "Insert before this sibling id")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTasksListCmd(app *App) *cobra.Command {
	var (
		projectID   string
		showDeleted bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in board order",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			var out []model.Task
			for _, t := range e.st.TasksByProject(projectID) {
				if t.Deleted() && !showDeleted {
					continue
				}
				out = append(out, t)
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id")
	cmd.Flags().BoolVar(&showDeleted, "deleted", false, "Include soft-deleted tasks")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newTasksShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			t, ok := resolveTask(e, args[0])
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[0]})
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}
	return cmd
}

func newTasksEditCmd(app *App) *cobra.Command {
	var (
		title   string
		content string
	)

	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Edit a task's title or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			t, ok := resolveTask(e, args[0])
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[0]})
			}
			if cmd.Flags().Changed("title") {
				t.Title = title
			}
			if cmd.Flags().Changed("content") {
				t.Content = content
			}

			eff, err := mutate.EditTask(e.st, t, time.Now().UTC())
			if err != nil {
				return writeErr(cmd, err)
			}
			e.commit(t.ProjectID, "edit task", "task:"+t.ID+":edit", eff)
			updated, _ := e.st.Task(t.ID)
			return writeOut(cmd, app, map[string]any{"data": updated})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&content, "content", "", "New markdown content")
	return cmd
}

func newTasksMoveCmd(app *App) *cobra.Command {
	var (
		stage  int
		parent string
		before string
	)

	cmd := &cobra.Command{
		Use:   "move <task-id>",
		Short: "Move a task to a stage, parent, or slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			t, ok := resolveTask(e, args[0])
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[0]})
			}
			var stagePtr *int
			if cmd.Flags().Changed("stage") {
				stagePtr = &stage
			} else if t.Stage != nil {
				s := *t.Stage
				stagePtr = &s
			}
			var parentPtr *string
			if parent != "" {
				p, ok := resolveTask(e, parent)
				if !ok {
					return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: parent})
				}
				parentPtr = &p.ID
			}

			eff, err := mutate.MoveTask(e.st, t.ID, stagePtr, parentPtr, before, time.Now().UTC())
			if err != nil {
				return writeErr(cmd, err)
			}
			if eff.Refused {
				return writeOut(cmd, app, map[string]any{"refused": true})
			}
			e.commit(t.ProjectID, "move task", "", eff)
			moved, _ := e.st.Task(t.ID)
			return writeOut(cmd, app, map[string]any{"data": moved})
		},
	}

	cmd.Flags().IntVar(&stage, "stage", 0, "Target stage column")
	cmd.Flags().StringVar(&parent, "parent", "", "New parent task id")
	cmd.Flags().StringVar(&before, "before", "", "Insert before this sibling id")
	return cmd
}

func newTasksDetachCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detach <task-id>",
		Short: "Move a task to the unassigned pool; children hop to its parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			t, ok := resolveTask(e, args[0])
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[0]})
			}
			eff, err := mutate.MoveTask(e.st, t.ID, nil, nil, "", time.Now().UTC())
			if err != nil {
				return writeErr(cmd, err)
			}
			e.commit(t.ProjectID, "detach task", "", eff)
			detached, _ := e.st.Task(t.ID)
			return writeOut(cmd, app, map[string]any{"data": detached})
		},
	}
	return cmd
}

func newTasksCompleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			t, ok := resolveTask(e, args[0])
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[0]})
			}
			t.Status = model.TaskStatusCompleted
			eff, err := mutate.EditTask(e.st, t, time.Now().UTC())
			if err != nil {
				return writeErr(cmd, err)
			}
			e.commit(t.ProjectID, "complete task", "", eff)
			updated, _ := e.st.Task(t.ID)
			return writeOut(cmd, app, map[string]any{"data": updated})
		},
	}
	return cmd
}

func newTasksDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			t, ok := resolveTask(e, args[0])
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[0]})
			}
			eff, deleted, err := mutate.DeleteTaskCascade(e.st, t.ID, time.Now().UTC())
			if err != nil {
				return writeErr(cmd, err)
			}
			e.commit(t.ProjectID, "delete task", "", eff)
			e.co.PushTaskDeletes(cmd.Context(), t.ProjectID, deleted)
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"deleted": deleted}})
		},
	}
	return cmd
}
