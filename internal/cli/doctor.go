package cli

import (
	"fmt"

	"driftboard/internal/model"

	"github.com/spf13/cobra"
)

func newDoctorCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local database for ordering violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			var issues []string
			for _, p := range e.st.Projects() {
				issues = append(issues, checkProject(p.ID, e.st.TasksByProject(p.ID))...)
			}

			online := e.rc.Ping(cmd.Context()) == nil
			out := map[string]any{
				"issues":  issues,
				"healthy": len(issues) == 0,
				"online":  online,
				"pending": e.q.Len(),
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
	return cmd
}

// checkProject scans one project's tasks for hierarchy violations: a child
// behind its parent's stage or rank, duplicate display ids, or an assigned
// task with no rank.
func checkProject(projectID string, tasks []model.Task) []string {
	byID := map[string]model.Task{}
	for _, t := range tasks {
		if !t.Deleted() {
			byID[t.ID] = t
		}
	}

	var issues []string
	seen := map[string]string{}
	for _, t := range byID {
		if t.Stage == nil {
			if t.DisplayID != "?" && t.DisplayID != "" {
				issues = append(issues, fmt.Sprintf("project %s: unassigned task %s has display id %q", projectID, t.ID, t.DisplayID))
			}
			continue
		}
		if t.Rank == 0 {
			issues = append(issues, fmt.Sprintf("project %s: task %s in stage %d has no rank", projectID, t.ID, *t.Stage))
		}
		if t.DisplayID != "" {
			if other, dup := seen[t.DisplayID]; dup {
				issues = append(issues, fmt.Sprintf("project %s: display id %q shared by %s and %s", projectID, t.DisplayID, other, t.ID))
			}
			seen[t.DisplayID] = t.ID
		}
		if t.ParentID == nil {
			continue
		}
		parent, ok := byID[*t.ParentID]
		if !ok {
			issues = append(issues, fmt.Sprintf("project %s: task %s points at missing parent %s", projectID, t.ID, *t.ParentID))
			continue
		}
		if parent.Stage != nil && *t.Stage <= *parent.Stage {
			issues = append(issues, fmt.Sprintf("project %s: task %s (stage %d) not past parent %s (stage %d)", projectID, t.ID, *t.Stage, parent.ID, *parent.Stage))
		}
		if t.Rank <= parent.Rank {
			issues = append(issues, fmt.Sprintf("project %s: task %s rank %.2f not past parent %s rank %.2f", projectID, t.ID, t.Rank, parent.ID, parent.Rank))
		}
	}
	return issues
}
