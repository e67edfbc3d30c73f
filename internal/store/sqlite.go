package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"driftboard/internal/model"

	_ "modernc.org/sqlite"
)

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			stage INTEGER,
			rank REAL NOT NULL,
			sort_order INTEGER NOT NULL,
			status TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL,
			deleted_at_unixms INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);`,
		`CREATE TABLE IF NOT EXISTS connections (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL,
			deleted_at_unixms INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_connections_project ON connections(project_id);`,
		`CREATE TABLE IF NOT EXISTS preferences (
			project_id TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS retry_queue (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			op TEXT NOT NULL,
			project_id TEXT NOT NULL,
			retry_count INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			project_id TEXT PRIMARY KEY,
			blob TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conflicts (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			local_json TEXT NOT NULL,
			remote_json TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertTaskRow(ctx context.Context, db execer, t model.Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	parent := ""
	if t.ParentID != nil {
		parent = *t.ParentID
	}
	var stage any
	if t.Stage != nil {
		stage = *t.Stage
	}
	var deleted any
	if t.DeletedAt != nil {
		deleted = t.DeletedAt.UTC().UnixMilli()
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO tasks(
		id, project_id, parent_id, stage, rank, sort_order, status,
		json, updated_at_unixms, deleted_at_unixms
	) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, parent, stage, t.Rank, t.Order, string(t.Status),
		string(raw), t.UpdatedAt.UTC().UnixMilli(), deleted)
	return err
}

func upsertConnectionRow(ctx context.Context, db execer, c model.Connection) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var deleted any
	if c.DeletedAt != nil {
		deleted = c.DeletedAt.UTC().UnixMilli()
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO connections(
		id, project_id, source, target, json, updated_at_unixms, deleted_at_unixms
	) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Source, c.Target, string(raw), c.UpdatedAt.UTC().UnixMilli(), deleted)
	return err
}

func upsertProjectRow(ctx context.Context, db execer, p model.Project) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO projects(id, name, json, updated_at_unixms) VALUES(?, ?, ?, ?)`,
		p.ID, p.Name, string(raw), p.UpdatedAt.UTC().UnixMilli())
	return err
}

func upsertPreferenceRow(ctx context.Context, db execer, p model.Preference) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO preferences(project_id, json, updated_at_unixms) VALUES(?, ?, ?)`,
		p.ProjectID, string(raw), p.UpdatedAt.UTC().UnixMilli())
	return err
}

func (s *Store) loadAll(ctx context.Context) error {
	tasks, err := readJSONRows[model.Task](ctx, s.db, `SELECT json FROM tasks`)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
		s.addIndex(s.taskIDsByProject, t.ProjectID, t.ID)
	}
	conns, err := readJSONRows[model.Connection](ctx, s.db, `SELECT json FROM connections`)
	if err != nil {
		return err
	}
	for _, c := range conns {
		s.connections[c.ID] = c
		s.addIndex(s.connIDsByProject, c.ProjectID, c.ID)
	}
	projects, err := readJSONRows[model.Project](ctx, s.db, `SELECT json FROM projects`)
	if err != nil {
		return err
	}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	prefs, err := readJSONRows[model.Preference](ctx, s.db, `SELECT json FROM preferences`)
	if err != nil {
		return err
	}
	for _, p := range prefs {
		s.preferences[p.ProjectID] = p
	}
	return nil
}

func readJSONRows[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var js string
		if err := rows.Scan(&js); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(js), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Meta returns the value for a meta key, or "" when absent.
func (s *Store) Meta(k string) string {
	var v string
	_ = s.db.QueryRowContext(context.Background(), `SELECT v FROM meta WHERE k = ?`, k).Scan(&v)
	return v
}

func (s *Store) SetMeta(k, v string) error {
	_, err := s.db.ExecContext(context.Background(), `INSERT OR REPLACE INTO meta(k, v) VALUES(?, ?)`, k, v)
	return err
}

// Retry queue persistence. The queue package owns lifecycle and retry
// policy; these are its durable backing.

func (s *Store) AppendRetryItem(it model.RetryItem) error {
	_, err := s.db.ExecContext(context.Background(), `INSERT OR REPLACE INTO retry_queue(
		id, entity_type, op, project_id, retry_count, payload, created_at_unixms
	) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		it.ID, string(it.EntityType), string(it.Operation), it.ProjectID,
		it.RetryCount, string(it.Payload), it.CreatedAt.UTC().UnixMilli())
	return err
}

func (s *Store) UpdateRetryItem(it model.RetryItem) error {
	return s.AppendRetryItem(it)
}

func (s *Store) DeleteRetryItem(id string) error {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM retry_queue WHERE id = ?`, id)
	return err
}

func (s *Store) LoadRetryItems() ([]model.RetryItem, error) {
	rows, err := s.db.QueryContext(context.Background(), `SELECT
		id, entity_type, op, project_id, retry_count, payload, created_at_unixms
	FROM retry_queue ORDER BY created_at_unixms, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RetryItem
	for rows.Next() {
		var it model.RetryItem
		var et, op, payload string
		var createdMs int64
		if err := rows.Scan(&it.ID, &et, &op, &it.ProjectID, &it.RetryCount, &payload, &createdMs); err != nil {
			return nil, err
		}
		it.EntityType = model.EntityType(et)
		it.Operation = model.Operation(op)
		it.Payload = json.RawMessage(payload)
		it.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

// Undo history persistence: one opaque blob per project, replaced wholesale.
// The history package owns the format.

func (s *Store) SaveHistoryState(projectID string, blob []byte) error {
	_, err := s.db.ExecContext(context.Background(), `INSERT OR REPLACE INTO history(project_id, blob, updated_at_unixms) VALUES(?, ?, ?)`,
		projectID, string(blob), time.Now().UTC().UnixMilli())
	return err
}

func (s *Store) LoadHistoryState(projectID string) ([]byte, error) {
	var blob string
	err := s.db.QueryRowContext(context.Background(), `SELECT blob FROM history WHERE project_id = ?`, projectID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(blob), nil
}

// Manual-conflict parking lot (auto-resolve disabled).

func (s *Store) AppendConflict(c model.Conflict) error {
	_, err := s.db.ExecContext(context.Background(), `INSERT OR REPLACE INTO conflicts(
		id, entity_type, entity_id, project_id, local_json, remote_json, created_at_unixms
	) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.EntityType), c.EntityID, c.ProjectID,
		string(c.Local), string(c.Remote), c.CreatedAt.UTC().UnixMilli())
	return err
}

func (s *Store) DeleteConflict(id string) error {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM conflicts WHERE id = ?`, id)
	return err
}

func (s *Store) LoadConflicts() ([]model.Conflict, error) {
	rows, err := s.db.QueryContext(context.Background(), `SELECT
		id, entity_type, entity_id, project_id, local_json, remote_json, created_at_unixms
	FROM conflicts ORDER BY created_at_unixms, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Conflict
	for rows.Next() {
		var c model.Conflict
		var et, local, remote string
		var createdMs int64
		if err := rows.Scan(&c.ID, &et, &c.EntityID, &c.ProjectID, &local, &remote, &createdMs); err != nil {
			return nil, err
		}
		c.EntityType = model.EntityType(et)
		c.Local = json.RawMessage(local)
		c.Remote = json.RawMessage(remote)
		c.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
