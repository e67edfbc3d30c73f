package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"driftboard/internal/editlock"
	"driftboard/internal/model"
	"driftboard/internal/mutate"
	"driftboard/internal/queue"
	"driftboard/internal/remote"
	"driftboard/internal/store"
)

const (
	watermarkPrefix   = "watermark:"
	projectsWatermark = "watermark:projects"
)

// Coordinator owns the push and pull paths. Pushes never fail from the
// caller's point of view: a push that cannot reach the backend parks its
// mutation in the retry queue and reports false. Pulls merge remote rows
// last-write-wins by updated_at, gated by the editing locks.
type Coordinator struct {
	st    *store.Store
	rc    remote.Client
	queue *queue.RetryQueue
	guard *editlock.Guard
	state *State
	log   *slog.Logger
	now   func() time.Time
}

func New(st *store.Store, rc remote.Client, q *queue.RetryQueue, guard *editlock.Guard, state *State, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		st:    st,
		rc:    rc,
		queue: q,
		guard: guard,
		state: state,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock swaps the time source. Tests only.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Queue exposes the retry queue for status reporting.
func (c *Coordinator) Queue() *queue.RetryQueue { return c.queue }

// ---- push ----

// PushTasks sends local task rows to the backend. On failure every task is
// parked individually so a later drain replays the freshest local copy.
func (c *Coordinator) PushTasks(ctx context.Context, tasks []model.Task) bool {
	if len(tasks) == 0 {
		return true
	}
	if err := c.rc.UpsertTasks(ctx, tasks); err != nil {
		c.park(model.EntityTask, model.OpUpsert, tasks[0].ProjectID, tasks, err)
		return false
	}
	c.state.SetOnline(true)
	return true
}

func (c *Coordinator) PushTask(ctx context.Context, t model.Task) bool {
	return c.PushTasks(ctx, []model.Task{t})
}

// PushTaskDeletes issues remote hard deletes for locally soft-deleted tasks.
func (c *Coordinator) PushTaskDeletes(ctx context.Context, projectID string, ids []string) bool {
	ok := true
	for _, id := range ids {
		if err := c.rc.DeleteTask(ctx, id); err != nil {
			c.park(model.EntityTask, model.OpDelete, projectID, id, err)
			ok = false
		}
	}
	if ok {
		c.state.SetOnline(true)
	}
	return ok
}

func (c *Coordinator) PushConnection(ctx context.Context, conn model.Connection) bool {
	if err := c.rc.UpsertConnections(ctx, []model.Connection{conn}); err != nil {
		c.park(model.EntityConnection, model.OpUpsert, conn.ProjectID, []model.Connection{conn}, err)
		return false
	}
	c.state.SetOnline(true)
	return true
}

func (c *Coordinator) PushConnectionDeletes(ctx context.Context, projectID string, ids []string) bool {
	ok := true
	for _, id := range ids {
		if err := c.rc.DeleteConnection(ctx, id); err != nil {
			c.park(model.EntityConnection, model.OpDelete, projectID, id, err)
			ok = false
		}
	}
	return ok
}

func (c *Coordinator) PushProject(ctx context.Context, p model.Project) bool {
	if err := c.rc.UpsertProject(ctx, p); err != nil {
		c.park(model.EntityProject, model.OpUpsert, p.ID, p, err)
		return false
	}
	c.state.SetOnline(true)
	return true
}

func (c *Coordinator) PushProjectDelete(ctx context.Context, id string) bool {
	if err := c.rc.DeleteProject(ctx, id); err != nil {
		c.park(model.EntityProject, model.OpDelete, id, id, err)
		return false
	}
	return true
}

func (c *Coordinator) PushPreference(ctx context.Context, pref model.Preference) bool {
	if err := c.rc.UpsertPreference(ctx, pref); err != nil {
		c.park(model.EntityPreference, model.OpUpsert, pref.ProjectID, pref, err)
		return false
	}
	return true
}

// park queues a failed push for the next drain. Enqueue failures are logged
// and swallowed: the local mutation already happened and must not unwind.
func (c *Coordinator) park(entity model.EntityType, op model.Operation, projectID string, payload any, cause error) {
	c.state.SetOnline(false)
	if err := c.queue.Enqueue(entity, op, projectID, payload); err != nil {
		c.log.Error("failed to queue mutation for retry", "entity", entity, "op", op, "err", err)
		return
	}
	c.log.Warn("push failed, queued for retry", "entity", entity, "op", op, "err", cause)
}

// ---- pull ----

// PullProject fetches rows changed since the project's watermark and merges
// them into the local store. Offline is not an error: the pull simply
// reports no changes.
func (c *Coordinator) PullProject(ctx context.Context, projectID string) (changed bool, err error) {
	since := c.watermark(watermarkPrefix + projectID)

	tasks, err := c.rc.FetchTasks(ctx, projectID, since)
	if err != nil {
		c.state.SetOnline(false)
		if remoteOffline(err) {
			return false, nil
		}
		return false, err
	}
	conns, err := c.rc.FetchConnections(ctx, projectID, since)
	if err != nil {
		c.state.SetOnline(false)
		if remoteOffline(err) {
			return false, nil
		}
		return false, err
	}
	c.state.SetOnline(true)

	autoResolve := true
	if pref, ok := c.st.PreferenceByProject(projectID); ok {
		autoResolve = pref.AutoResolve
	}

	high := since
	for _, r := range tasks {
		if r.UpdatedAt.After(high) {
			high = r.UpdatedAt
		}
		if c.mergeTask(r, since, autoResolve) {
			changed = true
		}
	}
	for _, r := range conns {
		if r.UpdatedAt.After(high) {
			high = r.UpdatedAt
		}
		if c.mergeConnection(r, since, autoResolve) {
			changed = true
		}
	}

	if changed {
		if _, err := mutate.Rebalance(c.st, projectID, c.now()); err != nil {
			return changed, err
		}
	}
	if high.After(since) {
		if err := c.st.SetMeta(watermarkPrefix+projectID, high.UTC().Format(time.RFC3339Nano)); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// PullProjects refreshes the project list and per-project preferences.
func (c *Coordinator) PullProjects(ctx context.Context) error {
	since := c.watermark(projectsWatermark)

	projects, err := c.rc.FetchProjects(ctx, since)
	if err != nil {
		c.state.SetOnline(false)
		if remoteOffline(err) {
			return nil
		}
		return err
	}
	prefs, err := c.rc.FetchPreferences(ctx, since)
	if err != nil {
		c.state.SetOnline(false)
		if remoteOffline(err) {
			return nil
		}
		return err
	}
	c.state.SetOnline(true)

	high := since
	for _, p := range projects {
		if p.UpdatedAt.After(high) {
			high = p.UpdatedAt
		}
		local, ok := c.st.Project(p.ID)
		if !ok || p.UpdatedAt.After(local.UpdatedAt) {
			if err := c.st.PutProject(p); err != nil {
				return err
			}
		}
	}
	for _, pref := range prefs {
		if pref.UpdatedAt.After(high) {
			high = pref.UpdatedAt
		}
		local, ok := c.st.PreferenceByProject(pref.ProjectID)
		if !ok || pref.UpdatedAt.After(local.UpdatedAt) {
			if err := c.st.PutPreference(pref); err != nil {
				return err
			}
		}
	}
	if high.After(since) {
		return c.st.SetMeta(projectsWatermark, high.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// mergeTask folds one remote task row into the store. Returns true when the
// local row changed.
func (c *Coordinator) mergeTask(r model.Task, since time.Time, autoResolve bool) bool {
	local, ok := c.st.Task(r.ID)
	if !ok {
		if err := c.st.PutTask(r); err != nil {
			c.log.Error("merge: put task", "id", r.ID, "err", err)
		}
		return true
	}
	if !r.UpdatedAt.After(local.UpdatedAt) {
		// Local copy is newer or identical; the push path will carry it out.
		return false
	}
	if !autoResolve && local.UpdatedAt.After(since) {
		// Both sides changed since the last sync and the user asked to
		// review such collisions by hand. Keep the local row and park the
		// pair for the conflicts command.
		c.parkConflict(model.EntityTask, r.ID, r.ProjectID, local, r)
		return false
	}

	merged := r
	if c.guard != nil {
		// A field mid-edit keeps its local value. The save on blur bumps
		// updated_at past the remote row, so the kept value wins the next
		// round instead of silently reverting.
		for _, field := range c.guard.Fields(r.ID) {
			switch field {
			case "title":
				merged.Title = local.Title
			case "content":
				merged.Content = local.Content
				merged.HasIncompleteItem = local.HasIncompleteItem
			case "position":
				merged.X, merged.Y = local.X, local.Y
			}
		}
	}
	if err := c.st.PutTask(merged); err != nil {
		c.log.Error("merge: put task", "id", r.ID, "err", err)
		return false
	}
	return true
}

func (c *Coordinator) mergeConnection(r model.Connection, since time.Time, autoResolve bool) bool {
	local, ok := c.st.Connection(r.ID)
	if !ok {
		if err := c.st.PutConnection(r); err != nil {
			c.log.Error("merge: put connection", "id", r.ID, "err", err)
		}
		return true
	}
	if !r.UpdatedAt.After(local.UpdatedAt) {
		return false
	}
	if !autoResolve && local.UpdatedAt.After(since) {
		c.parkConflict(model.EntityConnection, r.ID, r.ProjectID, local, r)
		return false
	}
	if err := c.st.PutConnection(r); err != nil {
		c.log.Error("merge: put connection", "id", r.ID, "err", err)
		return false
	}
	return true
}

// ApplyChange reacts to one change-feed notification. Deletes are applied
// directly; upserts trigger a project pull so they flow through the same
// merge path as periodic sync.
func (c *Coordinator) ApplyChange(ctx context.Context, ch remote.Change) {
	switch ch.Op {
	case model.OpDelete:
		var err error
		switch ch.Entity {
		case model.EntityTask:
			err = c.st.RemoveTask(ch.EntityID)
		case model.EntityConnection:
			err = c.st.RemoveConnection(ch.EntityID)
		case model.EntityProject:
			err = c.st.RemoveProject(ch.EntityID)
		}
		if err != nil {
			c.log.Error("apply remote delete", "entity", ch.Entity, "id", ch.EntityID, "err", err)
		}
	default:
		if ch.ProjectID == "" {
			return
		}
		if _, err := c.PullProject(ctx, ch.ProjectID); err != nil {
			c.log.Error("pull after change notification", "project", ch.ProjectID, "err", err)
		}
	}
}

// ---- replay ----

// Replay re-issues one queued mutation against the backend. Used by the
// drainer; the error decides Resolve versus Retry.
func (c *Coordinator) Replay(ctx context.Context, it model.RetryItem) error {
	switch {
	case it.EntityType == model.EntityTask && it.Operation == model.OpUpsert:
		var tasks []model.Task
		if err := json.Unmarshal(it.Payload, &tasks); err != nil {
			return fmt.Errorf("sync: corrupt retry payload: %w", err)
		}
		// Push the freshest local copy, not the queued snapshot; later local
		// edits must not be rewound by a replay.
		fresh := tasks[:0]
		for _, t := range tasks {
			if cur, ok := c.st.Task(t.ID); ok {
				t = cur
			}
			fresh = append(fresh, t)
		}
		return c.rc.UpsertTasks(ctx, fresh)
	case it.EntityType == model.EntityTask && it.Operation == model.OpDelete:
		var id string
		if err := json.Unmarshal(it.Payload, &id); err != nil {
			return fmt.Errorf("sync: corrupt retry payload: %w", err)
		}
		return c.rc.DeleteTask(ctx, id)
	case it.EntityType == model.EntityConnection && it.Operation == model.OpUpsert:
		var conns []model.Connection
		if err := json.Unmarshal(it.Payload, &conns); err != nil {
			return fmt.Errorf("sync: corrupt retry payload: %w", err)
		}
		for i, cn := range conns {
			if cur, ok := c.st.Connection(cn.ID); ok {
				conns[i] = cur
			}
		}
		return c.rc.UpsertConnections(ctx, conns)
	case it.EntityType == model.EntityConnection && it.Operation == model.OpDelete:
		var id string
		if err := json.Unmarshal(it.Payload, &id); err != nil {
			return fmt.Errorf("sync: corrupt retry payload: %w", err)
		}
		return c.rc.DeleteConnection(ctx, id)
	case it.EntityType == model.EntityProject && it.Operation == model.OpUpsert:
		var p model.Project
		if err := json.Unmarshal(it.Payload, &p); err != nil {
			return fmt.Errorf("sync: corrupt retry payload: %w", err)
		}
		if cur, ok := c.st.Project(p.ID); ok {
			p = cur
		}
		return c.rc.UpsertProject(ctx, p)
	case it.EntityType == model.EntityProject && it.Operation == model.OpDelete:
		var id string
		if err := json.Unmarshal(it.Payload, &id); err != nil {
			return fmt.Errorf("sync: corrupt retry payload: %w", err)
		}
		return c.rc.DeleteProject(ctx, id)
	case it.EntityType == model.EntityPreference && it.Operation == model.OpUpsert:
		var pref model.Preference
		if err := json.Unmarshal(it.Payload, &pref); err != nil {
			return fmt.Errorf("sync: corrupt retry payload: %w", err)
		}
		if cur, ok := c.st.PreferenceByProject(pref.ProjectID); ok {
			pref = cur
		}
		return c.rc.UpsertPreference(ctx, pref)
	}
	return fmt.Errorf("sync: unknown retry item %s/%s", it.EntityType, it.Operation)
}

func (c *Coordinator) watermark(key string) time.Time {
	v := c.st.Meta(key)
	if v == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		c.log.Warn("bad watermark, resyncing from scratch", "key", key, "value", v)
		return time.Time{}
	}
	return ts
}
