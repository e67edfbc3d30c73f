package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"driftboard/internal/config"
	"driftboard/internal/editlock"
	"driftboard/internal/history"
	"driftboard/internal/model"
	"driftboard/internal/queue"
	"driftboard/internal/remote"
	"driftboard/internal/store"
	"driftboard/internal/sync"

	"github.com/spf13/cobra"
)

type App struct {
	ConfigPath string
	Dir        string
	PrettyJSON bool
	Verbose    bool
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "driftboard",
		Short:        "Local-first flow board with background sync",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("DRIFTBOARD_CONFIG", ""), "Path to config file")
	cmd.PersistentFlags().StringVar(&app.Dir, "dir", envOr("DRIFTBOARD_DATA_DIR", ""), "Data dir (overrides config)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVar(&app.Verbose, "verbose", false, "Debug logging")

	cmd.AddCommand(newInitCmd(app))
	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newDoctorCmd(app))
	cmd.AddCommand(newProjectsCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newConnectionsCmd(app))
	cmd.AddCommand(newSyncCmd(app))
	cmd.AddCommand(newUndoCmd(app))
	cmd.AddCommand(newRedoCmd(app))
	cmd.AddCommand(newConflictsCmd(app))

	return cmd
}

// engine is everything a command needs, wired together: the store, the
// retry queue, the sync coordinator and per-project history.
type engine struct {
	cfg    config.Config
	st     *store.Store
	rc     remote.Client
	q      *queue.RetryQueue
	guard  *editlock.Guard
	state  *sync.State
	co     *sync.Coordinator
	pusher *sync.Pusher
	hist   *history.Manager
	log    *slog.Logger
}

func (a *App) open() (*engine, error) {
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return nil, err
	}
	if a.Dir != "" {
		cfg.DataDir = a.Dir
	}

	level := slog.LevelWarn
	if a.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	q, err := queue.New(st, cfg.Sync.MaxRetries, func(it model.RetryItem) {
		log.Error("mutation dropped after max retries", "entity", it.EntityType, "op", it.Operation)
		fmt.Fprintf(os.Stderr, "warning: a %s %s could not be synced and was dropped\n", it.EntityType, it.Operation)
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var rc remote.Client = remote.Unconfigured{}
	if cfg.Remote.URL != "" {
		rc = remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.APIKey)
	}

	guard := editlock.New(cfg.Lock.TTL, cfg.Lock.Grace)
	state := sync.NewState(q.Len)
	co := sync.New(st, rc, q, guard, state, log)
	pusher := sync.NewPusher(co, cfg.Sync.Debounce)
	hist := history.NewManager(st, cfg.History.Limit, cfg.History.CoalesceWindow)

	return &engine{
		cfg:    cfg,
		st:     st,
		rc:     rc,
		q:      q,
		guard:  guard,
		state:  state,
		co:     co,
		pusher: pusher,
		hist:   hist,
		log:    log,
	}, nil
}

func (e *engine) close() {
	// Dirty rows still waiting out the debounce window go now.
	e.pusher.Flush(context.Background())
	if err := e.st.Close(); err != nil {
		e.log.Error("close store", "err", err)
	}
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if app.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
