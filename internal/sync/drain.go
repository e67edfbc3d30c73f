package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"driftboard/internal/model"
)

const (
	drainInterval   = 30 * time.Second
	drainBackoffMin = 5 * time.Second
	drainBackoffMax = 60 * time.Second
)

// Drainer replays the retry queue whenever the backend looks reachable. A
// drain pass snapshots the queue and works it oldest-first; items that still
// fail are re-enqueued with a bumped count until they exhaust their retries.
// Passes back off 5s doubling to 60s while the backend stays down.
type Drainer struct {
	co  *Coordinator
	log *slog.Logger

	trigger chan struct{}
}

func NewDrainer(co *Coordinator, log *slog.Logger) *Drainer {
	if log == nil {
		log = slog.Default()
	}
	return &Drainer{co: co, log: log, trigger: make(chan struct{}, 1)}
}

// Kick requests an immediate drain pass (reconnect, explicit sync command).
// Coalesces: a pending kick absorbs later ones.
func (d *Drainer) Kick() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Run drains on a fixed interval plus explicit kicks until ctx is canceled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	backoff := drainBackoffMin
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.trigger:
		}

		if d.co.queue.Len() == 0 {
			continue
		}
		if ok := d.DrainOnce(ctx); ok {
			backoff = drainBackoffMin
			continue
		}
		// Backend still down. Sleep out the backoff, but stay responsive
		// to cancellation.
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > drainBackoffMax {
			backoff = drainBackoffMax
		}
	}
}

// DrainOnce replays the current queue snapshot sequentially, oldest first.
// Returns false when any item failed, which callers read as "backend still
// unreachable".
func (d *Drainer) DrainOnce(ctx context.Context) bool {
	if !d.co.state.BeginSync() {
		return true
	}
	allOK := true
	defer func() {
		// A wholly failed pass must not advance lastSyncAt.
		var err error
		if !allOK {
			err = errors.New("retry queue not drained")
		}
		d.co.state.EndSync(d.co.now(), err)
	}()

	items := d.co.queue.BeginDrain()
	if len(items) == 0 {
		return true
	}
	d.log.Info("draining retry queue", "items", len(items))

	for _, it := range items {
		if err := d.replayOne(ctx, it); err != nil {
			allOK = false
			requeued, qerr := d.co.queue.Retry(it)
			if qerr != nil {
				d.log.Error("retry bookkeeping failed", "item", it.ID, "err", qerr)
			}
			if !requeued {
				d.log.Error("mutation dropped after max retries",
					"entity", it.EntityType, "op", it.Operation, "retries", it.RetryCount+1)
			}
			continue
		}
		if err := d.co.queue.Resolve(it); err != nil {
			d.log.Error("resolve queue item", "item", it.ID, "err", err)
		}
	}
	d.co.state.SetOnline(allOK)
	return allOK
}

func (d *Drainer) replayOne(ctx context.Context, it model.RetryItem) error {
	err := d.co.Replay(ctx, it)
	if err != nil {
		d.log.Warn("replay failed", "entity", it.EntityType, "op", it.Operation, "err", err)
	}
	return err
}
