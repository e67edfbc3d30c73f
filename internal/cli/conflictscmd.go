package cli

import (
	"github.com/spf13/cobra"
)

func newConflictsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Review and resolve parked sync conflicts",
	}
	cmd.AddCommand(newConflictsListCmd(app))
	cmd.AddCommand(newConflictsResolveCmd(app))
	return cmd
}

func newConflictsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parked conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			conflicts, err := e.co.Conflicts()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": conflicts})
		},
	}
	return cmd
}

func newConflictsResolveCmd(app *App) *cobra.Command {
	var useRemote bool

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve one conflict (local wins unless --remote)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			if err := e.co.ResolveConflict(cmd.Context(), args[0], useRemote); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{
				"resolved": args[0],
				"kept":     keptSide(useRemote),
			}})
		},
	}

	cmd.Flags().BoolVar(&useRemote, "remote", false, "Adopt the remote version")
	return cmd
}

func keptSide(useRemote bool) string {
	if useRemote {
		return "remote"
	}
	return "local"
}
