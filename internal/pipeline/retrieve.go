package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ticketry-io/ticketry/internal/llmjson"
	"github.com/ticketry-io/ticketry/internal/provider"
	"github.com/ticketry-io/ticketry/pkg/protocol"
)

const matchReasonSystem = "You explain why issue tickets matched a search query. " +
	"For each numbered ticket, write one short sentence relating it to the query. " +
	"Respond with only a JSON array of strings, one per ticket, in order."

// retrieve embeds the query, searches the index, grades confidence,
// and records the matches in the session. For a create intent it also
// applies the duplicate gate: a strong enough match is shown to the
// user instead of filing a new ticket.
func (p *Pipeline) retrieve(ctx context.Context, t *turn) stage {
	next := stageAssemble
	if t.intent == protocol.IntentCreate {
		next = stageAct
	}

	vec, err := p.embedder.Embed(ctx, t.query)
	if err != nil {
		p.logger.Warn("query embedding failed", "conversation", t.conversationID, "error", err)
		t.errNote = "similarity search unavailable"
		// A create still proceeds; only the duplicate check is lost.
		if t.intent == protocol.IntentCreate {
			return stageAct
		}
		return stageAssemble
	}

	matches, err := p.index.Search(vec, p.opts.MaxResults, p.opts.Threshold)
	if err != nil {
		p.logger.Warn("index search failed", "conversation", t.conversationID, "error", err)
		t.errNote = "similarity search unavailable"
		if t.intent == protocol.IntentCreate {
			return stageAct
		}
		return stageAssemble
	}

	t.matches = make([]protocol.MatchedTicket, len(matches))
	for i, m := range matches {
		t.matches[i] = protocol.MatchedTicket{Ticket: m.Ticket, Score: m.Score}
	}
	p.attachMatchReasons(ctx, t)
	t.confidence = gradeConfidence(t.matches)
	t.sess.SetMatches(t.matches)

	if t.intent == protocol.IntentCreate && len(t.matches) > 0 && t.matches[0].Score >= p.opts.DuplicateThreshold {
		p.logger.Info("duplicate gate triggered",
			"conversation", t.conversationID,
			"ticket", t.matches[0].Key,
			"score", t.matches[0].Score)
		t.sess.PendingDecision = "create-new"
		t.respType = protocol.ResponseSimilar
		return stageAssemble
	}
	return next
}

// attachMatchReasons asks the LLM for one-line explanations, batched
// in a single call. If the call fails or the array is short, the
// remaining matches get a deterministic score-based reason.
func (p *Pipeline) attachMatchReasons(ctx context.Context, t *turn) {
	var reasons []string
	if len(t.matches) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "Query: %s\n\nTickets:\n", t.query)
		for i, m := range t.matches {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, m.Key, m.Summary)
		}

		answer, err := p.llm.Complete(ctx, provider.Request{
			System:      matchReasonSystem,
			Prompt:      b.String(),
			MaxTokens:   400,
			Temperature: 0,
		})
		if err != nil {
			p.logger.Warn("match reason generation failed", "error", err)
		} else if raw := llmjson.ExtractArray(answer); raw != "" {
			if jsonErr := json.Unmarshal([]byte(raw), &reasons); jsonErr != nil {
				p.logger.Warn("match reasons unparseable", "error", jsonErr)
				reasons = nil
			}
		}
	}

	for i := range t.matches {
		if i < len(reasons) && strings.TrimSpace(reasons[i]) != "" {
			t.matches[i].MatchReason = strings.TrimSpace(reasons[i])
		} else {
			t.matches[i].MatchReason = fmt.Sprintf("similar to your request (score %.2f)", t.matches[i].Score)
		}
	}
}

// gradeConfidence maps the top score to a band. The bands are fixed
// and monotonic: no matches is none, above 0.7 is high, 0.5 and up is
// medium, anything below is low.
func gradeConfidence(matches []protocol.MatchedTicket) protocol.Confidence {
	if len(matches) == 0 {
		return protocol.ConfidenceNone
	}
	top := matches[0].Score
	switch {
	case top > 0.7:
		return protocol.ConfidenceHigh
	case top >= 0.5:
		return protocol.ConfidenceMedium
	default:
		return protocol.ConfidenceLow
	}
}
