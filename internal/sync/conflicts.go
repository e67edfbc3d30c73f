package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"driftboard/internal/model"
	"driftboard/internal/mutate"
	"driftboard/internal/remote"
	"driftboard/internal/store"
)

func remoteOffline(err error) bool { return errors.Is(err, remote.ErrOffline) }

// parkConflict stores a local/remote pair for manual resolution. One parked
// conflict per entity; a newer remote row replaces the parked one so the
// user always resolves against the latest remote state.
func (c *Coordinator) parkConflict(entity model.EntityType, entityID, projectID string, local, rem any) {
	existing, err := c.st.LoadConflicts()
	if err != nil {
		c.log.Error("load conflicts", "err", err)
		return
	}
	for _, cf := range existing {
		if cf.EntityID == entityID {
			if err := c.st.DeleteConflict(cf.ID); err != nil {
				c.log.Error("replace parked conflict", "entity_id", entityID, "err", err)
				return
			}
			break
		}
	}

	localRaw, err := json.Marshal(local)
	if err != nil {
		c.log.Error("marshal conflict local side", "entity_id", entityID, "err", err)
		return
	}
	remoteRaw, err := json.Marshal(rem)
	if err != nil {
		c.log.Error("marshal conflict remote side", "entity_id", entityID, "err", err)
		return
	}
	cf := model.Conflict{
		ID:         store.NewID(),
		EntityType: entity,
		EntityID:   entityID,
		ProjectID:  projectID,
		Local:      localRaw,
		Remote:     remoteRaw,
		CreatedAt:  c.now(),
	}
	if err := c.st.AppendConflict(cf); err != nil {
		c.log.Error("park conflict", "entity_id", entityID, "err", err)
		return
	}
	c.log.Warn("sync conflict parked for manual resolution", "entity", entity, "entity_id", entityID)
}

// Conflicts lists parked conflicts, oldest first.
func (c *Coordinator) Conflicts() ([]model.Conflict, error) {
	return c.st.LoadConflicts()
}

// ResolveConflict settles one parked conflict. useRemote adopts the remote
// row; otherwise the local row is stamped with a fresh updated_at and pushed
// so it wins on every replica.
func (c *Coordinator) ResolveConflict(ctx context.Context, conflictID string, useRemote bool) error {
	conflicts, err := c.st.LoadConflicts()
	if err != nil {
		return err
	}
	var cf model.Conflict
	found := false
	for _, x := range conflicts {
		if x.ID == conflictID {
			cf, found = x, true
			break
		}
	}
	if !found {
		return fmt.Errorf("sync: conflict not found: %s", conflictID)
	}

	raw := cf.Local
	if useRemote {
		raw = cf.Remote
	}

	switch cf.EntityType {
	case model.EntityTask:
		var t model.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("sync: corrupt conflict payload: %w", err)
		}
		if !useRemote {
			t.UpdatedAt = c.now()
		}
		if err := c.st.PutTask(t); err != nil {
			return err
		}
		if _, err := mutate.Rebalance(c.st, t.ProjectID, c.now()); err != nil {
			return err
		}
		if !useRemote {
			c.PushTask(ctx, t)
		}
	case model.EntityConnection:
		var cn model.Connection
		if err := json.Unmarshal(raw, &cn); err != nil {
			return fmt.Errorf("sync: corrupt conflict payload: %w", err)
		}
		if !useRemote {
			cn.UpdatedAt = c.now()
		}
		if err := c.st.PutConnection(cn); err != nil {
			return err
		}
		if !useRemote {
			c.PushConnection(ctx, cn)
		}
	default:
		return fmt.Errorf("sync: conflict entity %s not resolvable", cf.EntityType)
	}

	return c.st.DeleteConflict(cf.ID)
}
