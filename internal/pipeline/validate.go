package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/ticketry-io/ticketry/internal/provider"
	"github.com/ticketry-io/ticketry/pkg/protocol"
)

var (
	greetingPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good\s+(morning|afternoon|evening)|thanks|thank\s+you)[\s!.,]*$`)
	helpPattern     = regexp.MustCompile(`(?i)\b(what\s+can\s+you\s+do|how\s+do\s+(you|i)\s+work|help)\b`)
)

const helpText = "I can search for existing tickets, create new ones, and add comments to tickets you mention. " +
	"Try asking \"find tickets about login issues\" or \"create a bug ticket: checkout page crashes\"."

const validateSystem = "You are a request filter for an issue-tracking assistant. " +
	"Decide whether the user's message is a legitimate ticket-management request " +
	"(searching, creating, updating, or asking about issue tickets). " +
	"Answer with exactly one word: VALID or INVALID."

// validate decides whether the turn proceeds. Trivial conversational
// requests get a direct answer without any downstream call; everything
// else goes through the LLM filter. A filter outage fails open, since
// a wrongly blocked user costs more than a wasted classification.
func (p *Pipeline) validate(ctx context.Context, t *turn) stage {
	query := strings.TrimSpace(t.query)
	if query == "" {
		t.respType = protocol.ResponseRejected
		t.message = "Please describe what you'd like to do, for example \"find tickets about login issues\"."
		return stageEnd
	}
	t.query = query

	if greetingPattern.MatchString(query) {
		t.respType = protocol.ResponseInfo
		t.message = "Hello! " + helpText
		return stageEnd
	}
	if len(query) < 200 && helpPattern.MatchString(query) {
		t.respType = protocol.ResponseInfo
		t.message = helpText
		return stageEnd
	}

	verdict, err := p.llm.Complete(ctx, provider.Request{
		System:      validateSystem,
		Prompt:      query,
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		p.logger.Warn("validation classifier unavailable, accepting request",
			"conversation", t.conversationID, "error", err)
		return stageRoute
	}
	if strings.Contains(strings.ToUpper(verdict), "INVALID") {
		t.respType = protocol.ResponseRejected
		t.message = "I can only help with issue tickets: searching, creating, or commenting on them. " + helpText
		return stageEnd
	}
	return stageRoute
}
