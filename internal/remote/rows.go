package remote

import (
	"encoding/json"
	"time"

	"driftboard/internal/model"
)

// Wire rows use the backend's snake_case column names. Nullable columns map
// to pointers so a null round-trips without inventing zero values.

type taskRow struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Title     string   `json:"title"`
	Content   string   `json:"content,omitempty"`
	Stage     *int     `json:"stage"`
	ParentID  *string  `json:"parent_id"`
	SortOrder int      `json:"sort_order"`
	Rank      float64  `json:"rank"`
	Status    string   `json:"status"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	DisplayID string   `json:"display_id,omitempty"`
	ShortID   string   `json:"short_id,omitempty"`

	HasIncompleteItem bool            `json:"has_incomplete_item,omitempty"`
	Attachments       json.RawMessage `json:"attachments,omitempty"`

	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

func taskToRow(t model.Task) taskRow {
	r := taskRow{
		ID:                t.ID,
		ProjectID:         t.ProjectID,
		Title:             t.Title,
		Content:           t.Content,
		Stage:             t.Stage,
		ParentID:          t.ParentID,
		SortOrder:         t.Order,
		Rank:              t.Rank,
		Status:            string(t.Status),
		X:                 t.X,
		Y:                 t.Y,
		DisplayID:         t.DisplayID,
		ShortID:           t.ShortID,
		HasIncompleteItem: t.HasIncompleteItem,
		UpdatedAt:         t.UpdatedAt,
		DeletedAt:         t.DeletedAt,
	}
	if len(t.Attachments) > 0 {
		if b, err := json.Marshal(t.Attachments); err == nil {
			r.Attachments = b
		}
	}
	return r
}

func (r taskRow) toTask() model.Task {
	t := model.Task{
		ID:                r.ID,
		ProjectID:         r.ProjectID,
		Title:             r.Title,
		Content:           r.Content,
		Stage:             r.Stage,
		ParentID:          r.ParentID,
		Order:             r.SortOrder,
		Rank:              r.Rank,
		Status:            model.TaskStatus(r.Status),
		X:                 r.X,
		Y:                 r.Y,
		DisplayID:         r.DisplayID,
		ShortID:           r.ShortID,
		HasIncompleteItem: r.HasIncompleteItem,
		UpdatedAt:         r.UpdatedAt,
		DeletedAt:         r.DeletedAt,
	}
	if len(r.Attachments) > 0 {
		_ = json.Unmarshal(r.Attachments, &t.Attachments)
	}
	return t
}

type connectionRow struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Source      string     `json:"source"`
	Target      string     `json:"target"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
}

func connectionToRow(c model.Connection) connectionRow {
	return connectionRow{
		ID:          c.ID,
		ProjectID:   c.ProjectID,
		Source:      c.Source,
		Target:      c.Target,
		Title:       c.Title,
		Description: c.Description,
		UpdatedAt:   c.UpdatedAt,
		DeletedAt:   c.DeletedAt,
	}
}

func (r connectionRow) toConnection() model.Connection {
	return model.Connection{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Source:      r.Source,
		Target:      r.Target,
		Title:       r.Title,
		Description: r.Description,
		UpdatedAt:   r.UpdatedAt,
		DeletedAt:   r.DeletedAt,
	}
}

type projectRow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ViewState   json.RawMessage `json:"view_state,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func projectToRow(p model.Project) projectRow {
	r := projectRow{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.ViewState != nil {
		if b, err := json.Marshal(p.ViewState); err == nil {
			r.ViewState = b
		}
	}
	return r
}

func (r projectRow) toProject() model.Project {
	p := model.Project{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.ViewState) > 0 {
		var vs model.ViewState
		if json.Unmarshal(r.ViewState, &vs) == nil {
			p.ViewState = &vs
		}
	}
	return p
}

type preferenceRow struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	AutoResolve bool      `json:"auto_resolve"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func preferenceToRow(p model.Preference) preferenceRow {
	return preferenceRow{ID: p.ID, ProjectID: p.ProjectID, AutoResolve: p.AutoResolve, UpdatedAt: p.UpdatedAt}
}

func (r preferenceRow) toPreference() model.Preference {
	return model.Preference{ID: r.ID, ProjectID: r.ProjectID, AutoResolve: r.AutoResolve, UpdatedAt: r.UpdatedAt}
}
