// Package tracker implements a Jira Cloud REST v3 client covering the
// handful of operations the assistant needs: create an issue, append a
// comment, fetch a single issue, and page through a JQL search.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ticketry-io/ticketry/pkg/protocol"
)

const jiraTimeFormat = "2006-01-02T15:04:05.000-0700"

// IssueFields is the writable subset of an issue used on creation.
type IssueFields struct {
	Summary     string
	Description string
	IssueType   string
	Priority    string
	Labels      []string
}

// Client talks to a Jira Cloud site using basic auth (account email
// plus API token). All issues are created in a single configured
// project.
type Client struct {
	client     *http.Client
	baseURL    string
	email      string
	apiToken   string
	projectKey string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// New creates a Jira client for the given site.
func New(baseURL, email, apiToken, projectKey string, opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		email:      email,
		apiToken:   apiToken,
		projectKey: projectKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProjectKey returns the configured project key.
func (c *Client) ProjectKey() string { return c.projectKey }

// CreateIssue creates an issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, fields IssueFields) (string, error) {
	payload := map[string]any{
		"summary":     fields.Summary,
		"description": textToADF(fields.Description),
		"project":     map[string]string{"key": c.projectKey},
		"issuetype":   map[string]string{"name": fields.IssueType},
	}
	if fields.Priority != "" {
		payload["priority"] = map[string]string{"name": fields.Priority}
	}
	if len(fields.Labels) > 0 {
		payload["labels"] = fields.Labels
	}

	var out struct {
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodPost, "/rest/api/3/issue", map[string]any{"fields": payload}, &out); err != nil {
		return "", fmt.Errorf("tracker: create issue: %w", err)
	}
	if out.Key == "" {
		return "", fmt.Errorf("tracker: create issue: response carried no key")
	}
	return out.Key, nil
}

// AddComment appends a comment to an existing issue.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
	path := "/rest/api/3/issue/" + url.PathEscape(key) + "/comment"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"body": textToADF(body)}, nil); err != nil {
		return fmt.Errorf("tracker: add comment to %s: %w", key, err)
	}
	return nil
}

// GetIssue fetches a single issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (protocol.Ticket, error) {
	var raw rawIssue
	path := "/rest/api/3/issue/" + url.PathEscape(key)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return protocol.Ticket{}, fmt.Errorf("tracker: get issue %s: %w", key, err)
	}
	return raw.ticket(), nil
}

// SearchIssues pages through a JQL search and returns up to max
// results, or all results when max <= 0.
func (c *Client) SearchIssues(ctx context.Context, jql string, max int) ([]protocol.Ticket, error) {
	const pageSize = 50

	var tickets []protocol.Ticket
	startAt := 0
	for {
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("startAt", fmt.Sprint(startAt))
		q.Set("maxResults", fmt.Sprint(pageSize))
		q.Set("fields", "summary,description,status,priority,issuetype,labels,created,updated,assignee")

		var page struct {
			StartAt    int        `json:"startAt"`
			MaxResults int        `json:"maxResults"`
			Total      int        `json:"total"`
			Issues     []rawIssue `json:"issues"`
		}
		if err := c.do(ctx, http.MethodGet, "/rest/api/3/search?"+q.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("tracker: search issues: %w", err)
		}

		for _, raw := range page.Issues {
			tickets = append(tickets, raw.ticket())
			if max > 0 && len(tickets) >= max {
				return tickets, nil
			}
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			return tickets, nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// rawIssue is the wire shape of a Jira issue, flattened into a Ticket.
type rawIssue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		Priority struct {
			Name string `json:"name"`
		} `json:"priority"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Labels   []string `json:"labels"`
		Created  string   `json:"created"`
		Updated  string   `json:"updated"`
		Assignee struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
	} `json:"fields"`
}

func (r rawIssue) ticket() protocol.Ticket {
	t := protocol.Ticket{
		ID:          r.ID,
		Key:         r.Key,
		Summary:     r.Fields.Summary,
		Description: adfToText(r.Fields.Description),
		Status:      r.Fields.Status.Name,
		Priority:    r.Fields.Priority.Name,
		IssueType:   r.Fields.IssueType.Name,
		Labels:      r.Fields.Labels,
		Assignee:    r.Fields.Assignee.DisplayName,
	}
	if ts, err := time.Parse(jiraTimeFormat, r.Fields.Created); err == nil {
		t.Created = ts.UTC().Format(time.RFC3339)
	}
	if ts, err := time.Parse(jiraTimeFormat, r.Fields.Updated); err == nil {
		t.Updated = ts.UTC().Format(time.RFC3339)
	}
	return t
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
