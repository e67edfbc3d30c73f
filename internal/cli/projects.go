package cli

import (
	"strings"
	"time"

	"driftboard/internal/model"
	"driftboard/internal/mutate"
	"driftboard/internal/store"

	"github.com/spf13/cobra"
)

func newProjectsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Project commands",
	}
	cmd.AddCommand(newProjectsCreateCmd(app))
	cmd.AddCommand(newProjectsListCmd(app))
	cmd.AddCommand(newProjectsDeleteCmd(app))
	cmd.AddCommand(newProjectsPrefsCmd(app))
	return cmd
}

func newProjectsCreateCmd(app *App) *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			p := model.Project{
				ID:          store.NewID(),
				Name:        strings.TrimSpace(name),
				Description: description,
				UpdatedAt:   time.Now().UTC(),
			}
			if err := e.st.PutProject(p); err != nil {
				return writeErr(cmd, err)
			}
			e.pusher.Notify(model.EntityProject, p.ID)
			return writeOut(cmd, app, map[string]any{"data": p})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Project name")
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newProjectsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()
			return writeOut(cmd, app, map[string]any{"data": e.st.Projects()})
		},
	}
	return cmd
}

func newProjectsPrefsCmd(app *App) *cobra.Command {
	var autoResolve bool

	cmd := &cobra.Command{
		Use:   "prefs <project-id>",
		Short: "Show or change project sync preferences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			if _, ok := e.st.Project(args[0]); !ok {
				return writeErr(cmd, mutate.NotFoundError{Kind: "project", ID: args[0]})
			}
			pref, ok := e.st.PreferenceByProject(args[0])
			if !ok {
				// No row yet: pulls auto-resolve by default.
				pref = model.Preference{ID: store.NewID(), ProjectID: args[0], AutoResolve: true}
			}
			if cmd.Flags().Changed("auto-resolve") {
				pref.AutoResolve = autoResolve
				pref.UpdatedAt = time.Now().UTC()
				if err := e.st.PutPreference(pref); err != nil {
					return writeErr(cmd, err)
				}
				e.pusher.Notify(model.EntityPreference, args[0])
			}
			return writeOut(cmd, app, map[string]any{"data": pref})
		},
	}

	cmd.Flags().BoolVar(&autoResolve, "auto-resolve", false, "Resolve pull conflicts automatically (last write wins)")
	return cmd
}

func newProjectsDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			taskIDs, connIDs, err := mutate.DeleteProjectCascade(e.st, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			e.co.PushTaskDeletes(ctx, args[0], taskIDs)
			e.co.PushConnectionDeletes(ctx, args[0], connIDs)
			e.co.PushProjectDelete(ctx, args[0])
			return writeOut(cmd, app, map[string]any{"data": map[string]any{
				"deletedTasks":       len(taskIDs),
				"deletedConnections": len(connIDs),
			}})
		},
	}
	return cmd
}
