package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"driftboard/internal/model"
)

const defaultTimeout = 10 * time.Second

// HTTPClient implements Client against a PostgREST-style backend: one route
// per table, eq./gt. query filters, and upserts via POST with the
// merge-duplicates preference.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/projects?limit=1", nil, nil)
}

func (c *HTTPClient) UpsertTasks(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	rows := make([]taskRow, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, taskToRow(t))
	}
	return c.do(ctx, http.MethodPost, "/tasks", rows, nil)
}

func (c *HTTPClient) FetchTasks(ctx context.Context, projectID string, since time.Time) ([]model.Task, error) {
	var rows []taskRow
	if err := c.do(ctx, http.MethodGet, "/tasks?"+sinceQuery(projectID, since), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTask())
	}
	return out, nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks?id=eq."+url.QueryEscape(id), nil, nil)
}

func (c *HTTPClient) UpsertConnections(ctx context.Context, conns []model.Connection) error {
	if len(conns) == 0 {
		return nil
	}
	rows := make([]connectionRow, 0, len(conns))
	for _, cn := range conns {
		rows = append(rows, connectionToRow(cn))
	}
	return c.do(ctx, http.MethodPost, "/connections", rows, nil)
}

func (c *HTTPClient) FetchConnections(ctx context.Context, projectID string, since time.Time) ([]model.Connection, error) {
	var rows []connectionRow
	if err := c.do(ctx, http.MethodGet, "/connections?"+sinceQuery(projectID, since), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]model.Connection, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toConnection())
	}
	return out, nil
}

func (c *HTTPClient) DeleteConnection(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/connections?id=eq."+url.QueryEscape(id), nil, nil)
}

func (c *HTTPClient) UpsertProject(ctx context.Context, p model.Project) error {
	return c.do(ctx, http.MethodPost, "/projects", []projectRow{projectToRow(p)}, nil)
}

func (c *HTTPClient) FetchProjects(ctx context.Context, since time.Time) ([]model.Project, error) {
	var rows []projectRow
	if err := c.do(ctx, http.MethodGet, "/projects?"+sinceQuery("", since), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]model.Project, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toProject())
	}
	return out, nil
}

func (c *HTTPClient) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/projects?id=eq."+url.QueryEscape(id), nil, nil)
}

func (c *HTTPClient) UpsertPreference(ctx context.Context, pref model.Preference) error {
	return c.do(ctx, http.MethodPost, "/preferences", []preferenceRow{preferenceToRow(pref)}, nil)
}

func (c *HTTPClient) FetchPreferences(ctx context.Context, since time.Time) ([]model.Preference, error) {
	var rows []preferenceRow
	if err := c.do(ctx, http.MethodGet, "/preferences?"+sinceQuery("", since), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]model.Preference, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toPreference())
	}
	return out, nil
}

// sinceQuery builds the changed-after filter. A zero watermark drops the
// updated_at clause so the first pull sees every row.
func sinceQuery(projectID string, since time.Time) string {
	v := url.Values{}
	if projectID != "" {
		v.Set("project_id", "eq."+projectID)
	}
	if !since.IsZero() {
		v.Set("updated_at", "gt."+since.UTC().Format(time.RFC3339Nano))
	}
	return v.Encode()
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if method == http.MethodPost {
		req.Header.Set("Prefer", "resolution=merge-duplicates")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: status %d", ErrOffline, resp.StatusCode)
		}
		return fmt.Errorf("remote: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("remote: decode response: %w", err)
		}
	}
	return nil
}
