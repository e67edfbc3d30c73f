// Package watch notices when another process writes the local database
// (a second board window, a script) and nudges the owner to reload and
// rebalance. Events are debounced because sqlite commits arrive as bursts
// of writes to the db and its journal.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

type Watcher struct {
	dbPath   string
	onChange func()
	log      *slog.Logger
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func New(dbPath string, onChange func(), log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		dbPath:   dbPath,
		onChange: onChange,
		log:      log,
		debounce: defaultDebounce,
	}
}

// Run watches the database directory until ctx is canceled. The directory is
// watched rather than the file itself so journal swaps and atomic renames
// still produce events.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.dbPath)); err != nil {
		return err
	}
	base := filepath.Base(w.dbPath)
	w.log.Info("watching database for outside writes", "path", w.dbPath)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.trigger()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}
