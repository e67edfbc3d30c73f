package cli

import (
	"os/signal"
	"syscall"
	"time"

	"driftboard/internal/remote"
	"driftboard/internal/sync"
	"driftboard/internal/watch"

	"github.com/spf13/cobra"
)

func newSyncCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push, pull, and background sync",
	}
	cmd.AddCommand(newSyncPushCmd(app))
	cmd.AddCommand(newSyncPullCmd(app))
	cmd.AddCommand(newSyncWatchCmd(app))
	return cmd
}

func newSyncPushCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Drain the retry queue now",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			e.pusher.Flush(cmd.Context())
			before := e.q.Len()
			d := sync.NewDrainer(e.co, e.log)
			ok := d.DrainOnce(cmd.Context())
			return writeOut(cmd, app, map[string]any{"data": map[string]any{
				"queuedBefore": before,
				"queuedAfter":  e.q.Len(),
				"online":       ok,
			}})
		},
	}
	return cmd
}

func newSyncPullCmd(app *App) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull remote changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			ctx := cmd.Context()
			if err := e.co.PullProjects(ctx); err != nil {
				return writeErr(cmd, err)
			}
			pulled := map[string]bool{}
			if projectID != "" {
				changed, err := e.co.PullProject(ctx, projectID)
				if err != nil {
					return writeErr(cmd, err)
				}
				pulled[projectID] = changed
			} else {
				for _, p := range e.st.Projects() {
					changed, err := e.co.PullProject(ctx, p.ID)
					if err != nil {
						return writeErr(cmd, err)
					}
					pulled[p.ID] = changed
				}
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{
				"online":  e.state.Online(),
				"changed": pulled,
			}})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Pull a single project")
	return cmd
}

func newSyncWatchCmd(app *App) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run background sync until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := app.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer e.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			drainer := sync.NewDrainer(e.co, e.log)
			go drainer.Run(ctx)

			// Reload when another process (a second window, a script) writes
			// the database, then kick a drain in case it queued work.
			w := watch.New(e.st.DBPath(), func() {
				if err := e.st.Reload(); err != nil {
					e.log.Error("reload after external write", "err", err)
					return
				}
				drainer.Kick()
			}, e.log)
			go func() {
				if err := w.Run(ctx); err != nil && ctx.Err() == nil {
					e.log.Error("db watcher stopped", "err", err)
				}
			}()

			// Realtime change feed, when the backend offers one.
			if e.cfg.Remote.FeedURL != "" {
				feed := remote.NewFeed(e.cfg.Remote.FeedURL, e.cfg.Remote.APIKey, func(ch remote.Change) {
					e.co.ApplyChange(ctx, ch)
					drainer.Kick()
				}, e.log)
				go func() {
					if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
						e.log.Error("change feed stopped", "err", err)
					}
				}()
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					e.pusher.Flush(ctx)
					if err := e.co.PullProjects(ctx); err != nil {
						e.log.Warn("pull projects", "err", err)
					}
					for _, p := range e.st.Projects() {
						if _, err := e.co.PullProject(ctx, p.ID); err != nil {
							e.log.Warn("pull project", "project", p.ID, "err", err)
						}
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Pull interval")
	return cmd
}
