package model

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusArchived  TaskStatus = "archived"
)

type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

// Task is a node on the board. Stage == nil means the task sits in the
// unassigned pool; unassigned tasks never have a parent and carry the
// "?" display id.
type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`

	Title   string `json:"title"`
	Content string `json:"content,omitempty"` // markdown

	Stage    *int    `json:"stage,omitempty"`
	ParentID *string `json:"parentId,omitempty"`
	Order    int     `json:"order"`
	Rank     float64 `json:"rank"`

	Status TaskStatus `json:"status"`

	// Graph view position. Nil means "never placed"; the rank engine may
	// assign a grid slot, but it never clobbers a user-dragged position.
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`

	DisplayID string `json:"displayId,omitempty"`
	ShortID   string `json:"shortId,omitempty"`

	HasIncompleteItem bool `json:"hasIncompleteItem,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`

	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Deleted reports whether the task is soft-deleted locally.
func (t Task) Deleted() bool { return t.DeletedAt != nil }

// Clone returns a deep copy safe to hand to history or observers.
func (t Task) Clone() Task {
	out := t
	if t.Stage != nil {
		v := *t.Stage
		out.Stage = &v
	}
	if t.ParentID != nil {
		v := *t.ParentID
		out.ParentID = &v
	}
	if t.X != nil {
		v := *t.X
		out.X = &v
	}
	if t.Y != nil {
		v := *t.Y
		out.Y = &v
	}
	if t.DeletedAt != nil {
		v := *t.DeletedAt
		out.DeletedAt = &v
	}
	if t.Attachments != nil {
		out.Attachments = append([]Attachment{}, t.Attachments...)
	}
	return out
}

// Connection is a directed edge in the flow view.
type Connection struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Source      string     `json:"source"`
	Target      string     `json:"target"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

func (c Connection) Deleted() bool { return c.DeletedAt != nil }

func (c Connection) Clone() Connection {
	out := c
	if c.DeletedAt != nil {
		v := *c.DeletedAt
		out.DeletedAt = &v
	}
	return out
}

// ViewState is the saved pan/zoom of the flow view.
type ViewState struct {
	Scale     float64 `json:"scale"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
}

type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	ViewState   *ViewState `json:"viewState,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (p Project) Clone() Project {
	out := p
	if p.ViewState != nil {
		v := *p.ViewState
		out.ViewState = &v
	}
	return out
}

// Preference is a per-project settings row synced like any other entity.
type Preference struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	AutoResolve bool      `json:"autoResolve"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type EntityType string

const (
	EntityTask       EntityType = "task"
	EntityProject    EntityType = "project"
	EntityConnection EntityType = "connection"
	EntityPreference EntityType = "preference"
)

type Operation string

const (
	OpUpsert Operation = "upsert"
	OpDelete Operation = "delete"
)

// RetryItem is one pending mutation that failed to reach the remote store
// (or was issued while offline). It survives process restarts.
type RetryItem struct {
	ID         string          `json:"id"`
	EntityType EntityType      `json:"entityType"`
	Operation  Operation       `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	ProjectID  string          `json:"projectId,omitempty"`
	RetryCount int             `json:"retryCount"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Conflict is a LWW-losing local row parked for manual resolution when
// auto-resolve is disabled.
type Conflict struct {
	ID         string          `json:"id"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	ProjectID  string          `json:"projectId,omitempty"`
	Local      json.RawMessage `json:"local"`
	Remote     json.RawMessage `json:"remote"`
	CreatedAt  time.Time       `json:"createdAt"`
}
