package pipeline

import (
	"context"
	"encoding/json"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ticketry-io/ticketry/internal/llmjson"
	"github.com/ticketry-io/ticketry/internal/provider"
	"github.com/ticketry-io/ticketry/pkg/protocol"
)

const maxSummaryBytes = 120

var (
	// Update vocabulary is checked before create vocabulary: "add a
	// comment" is an update even though it starts with "add".
	updateTrigger = regexp.MustCompile(`(?i)\b(update|modify|edit|mark\s+as|set\s+(the\s+)?(status|priority)|add\s+(a\s+)?comment|comment\s+on)\b`)
	createTrigger = regexp.MustCompile(`(?i)\b(create|add|file|open|raise|log)\b`)
	verifyTrigger = regexp.MustCompile(`(?i)\b(check|verify|find|search|look\s+for|similar|duplicate|existing)\b`)

	ticketKeyPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)
	commentPattern   = regexp.MustCompile(`(?is)\bcomment\s*:\s*(.+)$`)
	markupTag        = regexp.MustCompile(`<[^>]*>`)
)

const classifySystem = "You classify requests to an issue-tracking assistant. " +
	"Answer with exactly one word from: search, create, update, info."

const extractSystem = "You extract structured ticket fields from a user request. " +
	"Respond with only a JSON object with keys: summary (short title), description, " +
	"issue_type (Bug, Task, or Story), priority (Highest, High, Medium, Low, or empty), " +
	"labels (array of strings). Use empty values for anything not stated."

// route decides the intent and, for create/update, fills the draft.
// The very first turn of a conversation always searches, whatever the
// text says: showing existing tickets before creating avoids
// duplicates filed by users who skipped checking.
func (p *Pipeline) route(ctx context.Context, t *turn) stage {
	t.intent = p.classify(ctx, t)

	switch t.intent {
	case protocol.IntentCreate:
		p.extractCreate(ctx, t)
		return stageRetrieve
	case protocol.IntentUpdate:
		p.extractUpdate(t)
		return stageAct
	case protocol.IntentInfo:
		return stageAssemble
	default:
		return stageRetrieve
	}
}

func (p *Pipeline) classify(ctx context.Context, t *turn) protocol.Intent {
	if t.firstTurn {
		p.logger.Debug("first turn, forcing search intent", "conversation", t.conversationID)
		return protocol.IntentSearch
	}
	if updateTrigger.MatchString(t.query) {
		return protocol.IntentUpdate
	}
	if createTrigger.MatchString(t.query) {
		return protocol.IntentCreate
	}
	if verifyTrigger.MatchString(t.query) {
		return protocol.IntentSearch
	}

	answer, err := p.llm.Complete(ctx, provider.Request{
		System:      classifySystem,
		Prompt:      t.query,
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		p.logger.Warn("intent classifier unavailable, defaulting to search",
			"conversation", t.conversationID, "error", err)
		return protocol.IntentSearch
	}
	intent := protocol.Intent(strings.ToLower(strings.TrimSpace(answer)))
	if !intent.Valid() {
		p.logger.Warn("unparseable intent, defaulting to search", "answer", answer)
		return protocol.IntentSearch
	}
	return intent
}

// extractCreate fills the draft from an LLM extraction, falling back
// to the raw query for anything missing. The extracted text is
// rendered verbatim into ticket bodies, so markup is stripped first.
func (p *Pipeline) extractCreate(ctx context.Context, t *turn) {
	t.draft.ProjectKey = p.opts.ProjectKey

	answer, err := p.llm.Complete(ctx, provider.Request{
		System:      extractSystem,
		Prompt:      t.query,
		MaxTokens:   500,
		Temperature: 0,
	})
	if err != nil {
		p.logger.Warn("field extraction unavailable, using raw query",
			"conversation", t.conversationID, "error", err)
	} else if raw := llmjson.ExtractObject(answer); raw != "" {
		var fields struct {
			Summary     string   `json:"summary"`
			Description string   `json:"description"`
			IssueType   string   `json:"issue_type"`
			Priority    string   `json:"priority"`
			Labels      []string `json:"labels"`
		}
		if jsonErr := json.Unmarshal([]byte(raw), &fields); jsonErr == nil {
			t.draft.Summary = sanitize(fields.Summary)
			t.draft.Description = sanitize(fields.Description)
			t.draft.IssueType = sanitize(fields.IssueType)
			t.draft.Priority = sanitize(fields.Priority)
			for _, l := range fields.Labels {
				if l = sanitize(l); l != "" {
					t.draft.Labels = append(t.draft.Labels, l)
				}
			}
		} else {
			p.logger.Warn("extraction produced unparseable JSON", "error", jsonErr)
		}
	}

	if t.draft.Summary == "" {
		t.draft.Summary = truncateRunes(sanitize(t.query), maxSummaryBytes)
	}
	if t.draft.Description == "" {
		t.draft.Description = sanitize(t.query)
	}
	if t.draft.IssueType == "" {
		t.draft.IssueType = inferIssueType(t.query)
	}
}

// extractUpdate resolves the target ticket and comment text without an
// LLM call: the key is either in the message or in a prior turn, and
// the comment is whatever follows the "comment:" marker.
func (p *Pipeline) extractUpdate(t *turn) {
	t.draft.TicketKey = resolveTicketKey(t)

	if m := commentPattern.FindStringSubmatch(t.query); len(m) > 1 {
		t.draft.Comment = sanitize(m[1])
	}
	if t.draft.Comment == "" {
		t.draft.Comment = sanitize(t.query)
	}
}

// resolveTicketKey finds a ticket key in the current message, then in
// the transcript newest-first ("update it" refers to the most recently
// mentioned ticket), then in the matches carried from the last search.
func resolveTicketKey(t *turn) string {
	if key := ticketKeyPattern.FindString(t.query); key != "" {
		return key
	}
	for i := len(t.sess.History) - 1; i >= 0; i-- {
		if key := ticketKeyPattern.FindString(t.sess.History[i].Text); key != "" {
			return key
		}
	}
	if len(t.sess.LastMatches) > 0 {
		return t.sess.LastMatches[0].Key
	}
	return ""
}

func sanitize(s string) string {
	s = markupTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func inferIssueType(query string) string {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "bug") || strings.Contains(q, "error") || strings.Contains(q, "crash"):
		return "Bug"
	case strings.Contains(q, "story"):
		return "Story"
	default:
		return "Task"
	}
}
