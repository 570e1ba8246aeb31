package spycatssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Spy Cats HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Agent struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	YearsOfExperience float64 `json:"years_of_experience"`
	Breed             string  `json:"breed"`
	Salary            float64 `json:"salary"`
}

type Target struct {
	ID         int64  `json:"id"`
	MissionID  int64  `json:"mission_id"`
	Name       string `json:"name"`
	Country    string `json:"country"`
	Notes      string `json:"notes"`
	IsComplete bool   `json:"is_complete"`
}

type Mission struct {
	ID         int64    `json:"id"`
	CatID      *int64   `json:"cat_id"`
	IsComplete bool     `json:"is_complete"`
	Targets    []Target `json:"targets"`
}

// NewTarget describes a target at mission creation.
type NewTarget struct {
	Name       string `json:"name"`
	Country    string `json:"country"`
	Notes      string `json:"notes,omitempty"`
	IsComplete bool   `json:"is_complete,omitempty"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ErrorCode returns the error code of an *APIError, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// CreateAgent registers a spy cat; the breed is validated server-side.
func (c *Client) CreateAgent(ctx context.Context, name string, yearsOfExperience float64, breed string, salary float64) (Agent, error) {
	body := map[string]any{
		"name":                name,
		"years_of_experience": yearsOfExperience,
		"breed":               breed,
		"salary":              salary,
	}
	var resp Agent
	err := c.do(ctx, http.MethodPost, "spy_cats/create/", body, &resp)
	return resp, err
}

func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var resp []Agent
	err := c.do(ctx, http.MethodGet, "spy_cats/list", nil, &resp)
	return resp, err
}

func (c *Client) GetAgent(ctx context.Context, id int64) (Agent, error) {
	var resp Agent
	err := c.do(ctx, http.MethodGet, idPath("spy_cats", id), nil, &resp)
	return resp, err
}

// UpdateSalary changes a spy cat's salary, the only mutable field.
func (c *Client) UpdateSalary(ctx context.Context, id int64, salary float64) (Agent, error) {
	var resp Agent
	err := c.do(ctx, http.MethodPut, idPath("spy_cats", id), map[string]any{"salary": salary}, &resp)
	return resp, err
}

func (c *Client) DeleteAgent(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("spy_cats", id), nil, nil)
}

// CreateMission creates a mission with 1 to 3 targets. catID may be nil.
func (c *Client) CreateMission(ctx context.Context, catID *int64, targets []NewTarget) (Mission, error) {
	if targets == nil {
		targets = []NewTarget{}
	}
	body := map[string]any{"targets": targets}
	if catID != nil {
		body["cat_id"] = *catID
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions/create/", body, &resp)
	return resp, err
}

func (c *Client) ListMissions(ctx context.Context) ([]Mission, error) {
	var resp []Mission
	err := c.do(ctx, http.MethodGet, "missions/list", nil, &resp)
	return resp, err
}

func (c *Client) GetMission(ctx context.Context, id int64) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, idPath("missions", id), nil, &resp)
	return resp, err
}

// CompleteMission marks a mission complete.
func (c *Client) CompleteMission(ctx context.Context, id int64) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPut, idPath("missions", id), map[string]any{"is_complete": true}, &resp)
	return resp, err
}

func (c *Client) DeleteMission(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("missions", id), nil, nil)
}

func (c *Client) AssignAgent(ctx context.Context, missionID, catID int64) (Mission, error) {
	var resp Mission
	endpoint := fmt.Sprintf("missions/%d/assign_cat/%d", missionID, catID)
	err := c.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp, err
}

// UpdateTarget replaces the notes when non-empty and sets the completion flag.
func (c *Client) UpdateTarget(ctx context.Context, id int64, notes string, complete bool) (Target, error) {
	body := map[string]any{"is_complete": complete}
	if notes != "" {
		body["notes"] = notes
	}
	var resp Target
	err := c.do(ctx, http.MethodPut, idPath("missions/target", id), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func idPath(prefix string, id int64) string {
	return prefix + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
