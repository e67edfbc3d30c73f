package cli

import (
	"time"

	"driftboard/internal/model"
	"driftboard/internal/mutate"

	"github.com/spf13/cobra"
)

func newConnectionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Flow view edges",
	}
	cmd.AddCommand(newConnectionsAddCmd(app))
	cmd.AddCommand(newConnectionsListCmd(app))
	cmd.AddCommand(newConnectionsDeleteCmd(app))
	return cmd
}

func newConnectionsAddCmd(app *App) *cobra.Command {
	var (
		projectID   string
		title       string
		description string
	)

	cmd := &cobra.Command{
		Use:   "add <source-task> <target-task>",
		Short: "Connect two tasks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			src, ok := resolveTask(e, args[0])
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[0]})
			}
			dst, ok := resolveTask(e, args[1])
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "task", ID: args[1]})
			}
			if projectID == "" {
				projectID = src.ProjectID
			}

			eff, conn, err := mutate.AddConnection(e.st, projectID, src.ID, dst.ID, title, description, time.Now().UTC())
			if err != nil {
				return writeErr(cmd, err)
			}
			if !eff.Changed {
				return writeOut(cmd, app, map[string]any{"data": nil})
			}
			e.commit(projectID, "connect tasks", "", eff)
			return writeOut(cmd, app, map[string]any{"data": conn})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id (default: source task's project)")
	cmd.Flags().StringVar(&title, "title", "", "Edge label")
	cmd.Flags().StringVar(&description, "description", "", "Edge description")
	return cmd
}

func newConnectionsListCmd(app *App) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			var out []model.Connection
			for _, c := range e.st.ConnectionsByProject(projectID) {
				if !c.Deleted() {
					out = append(out, c)
				}
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newConnectionsDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <connection-id>",
		Short: "Remove a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			conn, ok := e.st.Connection(args[0])
			if !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "connection", ID: args[0]})
			}
			eff, err := mutate.DeleteConnection(e.st, conn.ID, time.Now().UTC())
			if err != nil {
				return writeErr(cmd, err)
			}
			e.commit(conn.ProjectID, "disconnect tasks", "", eff)
			e.co.PushConnectionDeletes(cmd.Context(), conn.ProjectID, []string{conn.ID})
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"deleted": conn.ID}})
		},
	}
	return cmd
}
