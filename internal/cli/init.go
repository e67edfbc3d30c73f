package cli

import (
	"github.com/spf13/cobra"
)

func newInitCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"dir": e.st.Dir(),
					"db":  e.st.DBPath(),
				},
			})
		},
	}
	return cmd
}
