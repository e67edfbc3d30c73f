package cli

import (
	"github.com/spf13/cobra"
)

func newStatusCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Sync status and pending work",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			snap := e.state.Snapshot()
			conflicts, err := e.co.Conflicts()
			if err != nil {
				return writeErr(cmd, err)
			}
			out := map[string]any{
				"online":    e.rc.Ping(cmd.Context()) == nil,
				"syncing":   snap.Syncing,
				"pending":   e.q.Len(),
				"conflicts": len(conflicts),
				"projects":  len(e.st.Projects()),
			}
			if !snap.LastSyncAt.IsZero() {
				out["lastSyncAt"] = snap.LastSyncAt
			}
			if snap.LastError != "" {
				out["lastError"] = snap.LastError
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
	return cmd
}
