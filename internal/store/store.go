package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"driftboard/internal/model"
)

const dbFileName = "driftboard.sqlite"

// Change describes one entity-level store mutation, delivered to observers
// after the new state is visible.
type Change struct {
	Entity    model.EntityType
	ID        string
	ProjectID string
	Removed   bool
	Version   uint64
}

// Store holds the in-memory entity maps plus their durable SQLite backing.
// Maps are mutated only behind the write lock and the version counter bumps
// on every mutation; readers get value copies, never live references. This
// is the single-writer substitute for the copy-on-write map replacement the
// reactive UI layer would otherwise rely on.
type Store struct {
	dir string
	db  *sql.DB

	mu          sync.RWMutex
	tasks       map[string]model.Task
	projects    map[string]model.Project
	connections map[string]model.Connection
	preferences map[string]model.Preference // keyed by project id

	taskIDsByProject map[string]map[string]bool
	connIDsByProject map[string]map[string]bool

	version uint64

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObsID int
}

// Open opens (creating if needed) the workspace store at dir and loads all
// persisted entities into memory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		dir:              dir,
		tasks:            map[string]model.Task{},
		projects:         map[string]model.Project{},
		connections:      map[string]model.Connection{},
		preferences:      map[string]model.Preference{},
		taskIDsByProject: map[string]map[string]bool{},
		connIDsByProject: map[string]map[string]bool{},
		observers:        map[int]func(Change){},
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, err
	}
	s.db = db
	ctx := context.Background()
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadAll(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Reload rebuilds the in-memory maps from the database. Called when another
// process wrote the db file underneath us.
func (s *Store) Reload() error {
	s.mu.Lock()
	s.tasks = map[string]model.Task{}
	s.projects = map[string]model.Project{}
	s.connections = map[string]model.Connection{}
	s.preferences = map[string]model.Preference{}
	s.taskIDsByProject = map[string]map[string]bool{}
	s.connIDsByProject = map[string]map[string]bool{}
	err := s.loadAll(context.Background())
	s.version++
	v := s.version
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(Change{Version: v})
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dir returns the workspace directory backing this store.
func (s *Store) Dir() string { return s.dir }

// DBPath returns the SQLite file path (watched for external writes).
func (s *Store) DBPath() string { return filepath.Join(s.dir, dbFileName) }

// Version returns the current mutation counter. Derived views recompute only
// when this changes.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers an observer for store changes. The returned func
// removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.obsMu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers[id] = fn
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) notify(ch Change) {
	s.obsMu.Lock()
	fns := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()
	for _, fn := range fns {
		fn(ch)
	}
}

// Task returns a copy of the task by id.
func (s *Store) Task(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return t.Clone(), true
}

// TasksByProject returns copies of all tasks in a project, soft-deleted
// included. O(k) in project membership.
func (s *Store) TasksByProject(projectID string) []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.taskIDsByProject[projectID]
	out := make([]model.Task, 0, len(ids))
	for id := range ids {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// PutTask upserts a task in memory and in the durable backing.
func (s *Store) PutTask(t model.Task) error {
	return s.PutTasks([]model.Task{t})
}

// PutTasks upserts a batch of tasks in a single transaction.
func (s *Store) PutTasks(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, t := range tasks {
		if t.ID == "" {
			return errors.New("task missing id")
		}
		if err := upsertTaskRow(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.mu.Lock()
	var changes []Change
	for _, t := range tasks {
		if old, ok := s.tasks[t.ID]; ok && old.ProjectID != t.ProjectID {
			s.dropIndex(s.taskIDsByProject, old.ProjectID, t.ID)
		}
		s.tasks[t.ID] = t.Clone()
		s.addIndex(s.taskIDsByProject, t.ProjectID, t.ID)
		s.version++
		changes = append(changes, Change{Entity: model.EntityTask, ID: t.ID, ProjectID: t.ProjectID, Version: s.version})
	}
	s.mu.Unlock()
	for _, ch := range changes {
		s.notify(ch)
	}
	return nil
}

// RemoveTask hard-removes a task locally. Soft delete is a PutTask with
// DeletedAt set; this is for undo-of-create and post-sync purges.
func (s *Store) RemoveTask(id string) error {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return err
	}
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
		s.dropIndex(s.taskIDsByProject, t.ProjectID, id)
		s.version++
	}
	ver := s.version
	s.mu.Unlock()
	if ok {
		s.notify(Change{Entity: model.EntityTask, ID: id, ProjectID: t.ProjectID, Removed: true, Version: ver})
	}
	return nil
}

// Connection returns a copy of the connection by id.
func (s *Store) Connection(id string) (model.Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok {
		return model.Connection{}, false
	}
	return c.Clone(), true
}

func (s *Store) ConnectionsByProject(projectID string) []model.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.connIDsByProject[projectID]
	out := make([]model.Connection, 0, len(ids))
	for id := range ids {
		out = append(out, s.connections[id].Clone())
	}
	return out
}

func (s *Store) PutConnection(c model.Connection) error {
	if c.ID == "" {
		return errors.New("connection missing id")
	}
	ctx := context.Background()
	if err := upsertConnectionRow(ctx, s.db, c); err != nil {
		return err
	}
	s.mu.Lock()
	if old, ok := s.connections[c.ID]; ok && old.ProjectID != c.ProjectID {
		s.dropIndex(s.connIDsByProject, old.ProjectID, c.ID)
	}
	s.connections[c.ID] = c.Clone()
	s.addIndex(s.connIDsByProject, c.ProjectID, c.ID)
	s.version++
	ver := s.version
	s.mu.Unlock()
	s.notify(Change{Entity: model.EntityConnection, ID: c.ID, ProjectID: c.ProjectID, Version: ver})
	return nil
}

func (s *Store) RemoveConnection(id string) error {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id); err != nil {
		return err
	}
	s.mu.Lock()
	c, ok := s.connections[id]
	if ok {
		delete(s.connections, id)
		s.dropIndex(s.connIDsByProject, c.ProjectID, id)
		s.version++
	}
	ver := s.version
	s.mu.Unlock()
	if ok {
		s.notify(Change{Entity: model.EntityConnection, ID: id, ProjectID: c.ProjectID, Removed: true, Version: ver})
	}
	return nil
}

// Project returns a copy of the project by id.
func (s *Store) Project(id string) (model.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, false
	}
	return p.Clone(), true
}

func (s *Store) Projects() []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	return out
}

func (s *Store) PutProject(p model.Project) error {
	if p.ID == "" {
		return errors.New("project missing id")
	}
	ctx := context.Background()
	if err := upsertProjectRow(ctx, s.db, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.projects[p.ID] = p.Clone()
	s.version++
	ver := s.version
	s.mu.Unlock()
	s.notify(Change{Entity: model.EntityProject, ID: p.ID, ProjectID: p.ID, Version: ver})
	return nil
}

func (s *Store) RemoveProject(id string) error {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return err
	}
	s.mu.Lock()
	_, ok := s.projects[id]
	delete(s.projects, id)
	s.version++
	ver := s.version
	s.mu.Unlock()
	if ok {
		s.notify(Change{Entity: model.EntityProject, ID: id, ProjectID: id, Removed: true, Version: ver})
	}
	return nil
}

// ClearProject removes a project's tasks and connections (local hard
// removal; the caller is responsible for the remote side).
func (s *Store) ClearProject(projectID string) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.mu.Lock()
	for id := range s.taskIDsByProject[projectID] {
		delete(s.tasks, id)
	}
	delete(s.taskIDsByProject, projectID)
	for id := range s.connIDsByProject[projectID] {
		delete(s.connections, id)
	}
	delete(s.connIDsByProject, projectID)
	s.version++
	ver := s.version
	s.mu.Unlock()
	s.notify(Change{Entity: model.EntityProject, ID: projectID, ProjectID: projectID, Removed: true, Version: ver})
	return nil
}

// Clear wipes every entity map and its durable backing.
func (s *Store) Clear() error {
	ctx := context.Background()
	for _, t := range []string{"tasks", "connections", "projects", "preferences"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.tasks = map[string]model.Task{}
	s.projects = map[string]model.Project{}
	s.connections = map[string]model.Connection{}
	s.preferences = map[string]model.Preference{}
	s.taskIDsByProject = map[string]map[string]bool{}
	s.connIDsByProject = map[string]map[string]bool{}
	s.version++
	s.mu.Unlock()
	return nil
}

func (s *Store) PreferenceByProject(projectID string) (model.Preference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[projectID]
	return p, ok
}

func (s *Store) PutPreference(p model.Preference) error {
	if p.ProjectID == "" {
		return errors.New("preference missing project id")
	}
	ctx := context.Background()
	if err := upsertPreferenceRow(ctx, s.db, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.preferences[p.ProjectID] = p
	s.version++
	ver := s.version
	s.mu.Unlock()
	s.notify(Change{Entity: model.EntityPreference, ID: p.ID, ProjectID: p.ProjectID, Version: ver})
	return nil
}

func (s *Store) addIndex(idx map[string]map[string]bool, projectID, id string) {
	if projectID == "" {
		return
	}
	set := idx[projectID]
	if set == nil {
		set = map[string]bool{}
		idx[projectID] = set
	}
	set[id] = true
}

func (s *Store) dropIndex(idx map[string]map[string]bool, projectID, id string) {
	if set, ok := idx[projectID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(idx, projectID)
		}
	}
}
