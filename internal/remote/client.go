// Package remote talks to the shared backend. The backend exposes a
// PostgREST-style REST surface (one route per entity table, eq./gt. query
// filters, merge-duplicates upserts) plus a websocket change feed. Local
// deletes are soft; remote deletes are real row deletes.
package remote

import (
	"context"
	"errors"
	"time"

	"driftboard/internal/model"
)

// ErrOffline is returned by transport methods when the backend cannot be
// reached. Callers treat it as "park the write and retry later", never as a
// user-facing failure.
var ErrOffline = errors.New("remote: backend unreachable")

// Client is the sync engine's view of the backend. Fetch methods return rows
// changed strictly after the given watermark; a zero watermark means
// everything.
type Client interface {
	Ping(ctx context.Context) error

	UpsertTasks(ctx context.Context, tasks []model.Task) error
	FetchTasks(ctx context.Context, projectID string, since time.Time) ([]model.Task, error)
	DeleteTask(ctx context.Context, id string) error

	UpsertConnections(ctx context.Context, conns []model.Connection) error
	FetchConnections(ctx context.Context, projectID string, since time.Time) ([]model.Connection, error)
	DeleteConnection(ctx context.Context, id string) error

	UpsertProject(ctx context.Context, p model.Project) error
	FetchProjects(ctx context.Context, since time.Time) ([]model.Project, error)
	DeleteProject(ctx context.Context, id string) error

	UpsertPreference(ctx context.Context, pref model.Preference) error
	FetchPreferences(ctx context.Context, since time.Time) ([]model.Preference, error)
}

// Unconfigured is the Client used when no backend is configured. Every call
// reports ErrOffline, so mutations park in the retry queue and the board
// keeps working purely locally.
type Unconfigured struct{}

func (Unconfigured) Ping(context.Context) error { return ErrOffline }

func (Unconfigured) UpsertTasks(context.Context, []model.Task) error { return ErrOffline }
func (Unconfigured) FetchTasks(context.Context, string, time.Time) ([]model.Task, error) {
	return nil, ErrOffline
}
func (Unconfigured) DeleteTask(context.Context, string) error { return ErrOffline }

func (Unconfigured) UpsertConnections(context.Context, []model.Connection) error { return ErrOffline }
func (Unconfigured) FetchConnections(context.Context, string, time.Time) ([]model.Connection, error) {
	return nil, ErrOffline
}
func (Unconfigured) DeleteConnection(context.Context, string) error { return ErrOffline }

func (Unconfigured) UpsertProject(context.Context, model.Project) error { return ErrOffline }
func (Unconfigured) FetchProjects(context.Context, time.Time) ([]model.Project, error) {
	return nil, ErrOffline
}
func (Unconfigured) DeleteProject(context.Context, string) error { return ErrOffline }

func (Unconfigured) UpsertPreference(context.Context, model.Preference) error { return ErrOffline }
func (Unconfigured) FetchPreferences(context.Context, time.Time) ([]model.Preference, error) {
	return nil, ErrOffline
}
