package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateIssue(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, token, _ := r.BasicAuth()
		gotAuth = token
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"10001","key":"SCRUM-7"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "bot@example.com", "secret-token", "SCRUM")
	key, err := c.CreateIssue(context.Background(), IssueFields{
		Summary:     "Login button unresponsive",
		Description: "Clicking login does nothing on mobile Safari.",
		IssueType:   "Bug",
		Priority:    "High",
		Labels:      []string{"mobile"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if key != "SCRUM-7" {
		t.Errorf("key = %q, want SCRUM-7", key)
	}
	if gotPath != "/rest/api/3/issue" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "secret-token" {
		t.Errorf("basic auth token = %q", gotAuth)
	}

	fields := gotBody["fields"].(map[string]any)
	if fields["summary"] != "Login button unresponsive" {
		t.Errorf("summary = %v", fields["summary"])
	}
	project := fields["project"].(map[string]any)
	if project["key"] != "SCRUM" {
		t.Errorf("project key = %v", project["key"])
	}
	desc := fields["description"].(map[string]any)
	if desc["type"] != "doc" {
		t.Errorf("description not ADF: %v", desc["type"])
	}
}

func TestCreateIssueServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessages":["issuetype is required"]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "bot@example.com", "tok", "SCRUM")
	_, err := c.CreateIssue(context.Background(), IssueFields{Summary: "x", IssueType: ""})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("error = %v", err)
	}
}

func TestAddComment(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		fmt.Fprint(w, `{"id":"20001"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "bot@example.com", "tok", "SCRUM")
	if err := c.AddComment(context.Background(), "SCRUM-42", "Fixed in release 1.4."); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/rest/api/3/issue/SCRUM-42/comment" {
		t.Errorf("path = %q", gotPath)
	}
	body := gotBody["body"].(map[string]any)
	if body["type"] != "doc" {
		t.Errorf("comment body not ADF: %v", body["type"])
	}
}

func TestGetIssueFlattensADF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/3/issue/SCRUM-42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"id": "10042",
			"key": "SCRUM-42",
			"fields": {
				"summary": "Login fails on mobile",
				"description": {"type":"doc","version":1,"content":[
					{"type":"paragraph","content":[{"type":"text","text":"Steps to reproduce:"}]},
					{"type":"paragraph","content":[{"type":"text","text":"Open the app."}]}
				]},
				"status": {"name": "In Progress"},
				"priority": {"name": "High"},
				"issuetype": {"name": "Bug"},
				"labels": ["auth"],
				"created": "2026-03-01T10:00:00.000+0000",
				"updated": "2026-03-02T11:30:00.000+0000",
				"assignee": {"displayName": "Dana Reyes"}
			}
		}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "bot@example.com", "tok", "SCRUM")
	ticket, err := c.GetIssue(context.Background(), "SCRUM-42")
	if err != nil {
		t.Fatal(err)
	}
	if ticket.Key != "SCRUM-42" || ticket.Status != "In Progress" || ticket.IssueType != "Bug" {
		t.Errorf("ticket = %+v", ticket)
	}
	if ticket.Description != "Steps to reproduce:\nOpen the app." {
		t.Errorf("description = %q", ticket.Description)
	}
	if ticket.Created != "2026-03-01T10:00:00Z" {
		t.Errorf("created = %q", ticket.Created)
	}
	if ticket.Assignee != "Dana Reyes" {
		t.Errorf("assignee = %q", ticket.Assignee)
	}
}

func TestSearchIssuesPaginates(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("startAt")
		starts = append(starts, start)
		if start == "0" {
			fmt.Fprint(w, `{"startAt":0,"maxResults":50,"total":51,"issues":[`+issueList(0, 50)+`]}`)
			return
		}
		fmt.Fprint(w, `{"startAt":50,"maxResults":50,"total":51,"issues":[`+issueList(50, 51)+`]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "bot@example.com", "tok", "SCRUM")
	tickets, err := c.SearchIssues(context.Background(), `project = SCRUM ORDER BY updated DESC`, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 51 {
		t.Fatalf("got %d tickets, want 51", len(tickets))
	}
	if len(starts) != 2 || starts[1] != "50" {
		t.Errorf("pagination requests = %v", starts)
	}
	if tickets[50].Key != "SCRUM-50" {
		t.Errorf("last ticket = %q", tickets[50].Key)
	}
}

func TestSearchIssuesHonorsMax(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"startAt":0,"maxResults":50,"total":50,"issues":[`+issueList(0, 50)+`]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "bot@example.com", "tok", "SCRUM")
	tickets, err := c.SearchIssues(context.Background(), "project = SCRUM", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 3 {
		t.Fatalf("got %d tickets, want 3", len(tickets))
	}
}

func issueList(from, to int) string {
	var parts []string
	for i := from; i < to; i++ {
		parts = append(parts, fmt.Sprintf(`{"id":"%d","key":"SCRUM-%d","fields":{"summary":"issue %d"}}`, i, i, i))
	}
	return strings.Join(parts, ",")
}

func TestADFRoundTrip(t *testing.T) {
	doc := textToADF("First paragraph.\n\nSecond paragraph.")
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	got := adfToText(raw)
	if got != "First paragraph.\nSecond paragraph." {
		t.Errorf("round trip = %q", got)
	}
}

func TestADFBareStringDescription(t *testing.T) {
	if got := adfToText(json.RawMessage(`"plain description"`)); got != "plain description" {
		t.Errorf("got %q", got)
	}
	if got := adfToText(nil); got != "" {
		t.Errorf("nil description = %q", got)
	}
}
