package pipeline

import (
	"fmt"
	"strings"

	"github.com/ticketry-io/ticketry/pkg/protocol"
)

// assemble turns the final turn state into the user-facing message.
// It has no side effects and makes no collaborator calls.
func (p *Pipeline) assemble(t *turn) stage {
	if t.message != "" {
		return stageEnd
	}

	switch {
	case t.intent == protocol.IntentInfo:
		t.respType = protocol.ResponseInfo
		t.message = helpText

	case t.respType == protocol.ResponseCreated:
		t.message = fmt.Sprintf("Created %s: %s", t.createdKey, t.draft.Summary)

	case t.respType == protocol.ResponseUpdated:
		t.message = fmt.Sprintf("Added your comment to %s.", t.draft.TicketKey)

	case t.respType == protocol.ResponseSimilar && t.intent == protocol.IntentCreate:
		// Duplicate gate: show the near-identical tickets instead of
		// filing a new one.
		var b strings.Builder
		b.WriteString("This looks very similar to existing tickets:\n\n")
		writeMatchList(&b, t.matches)
		b.WriteString("\nReply \"create it anyway\" to file a new ticket, or \"update <key>\" to comment on one of these.")
		t.message = b.String()

	default:
		t.respType = protocol.ResponseSimilar
		t.message = searchMessage(t)
	}
	return stageEnd
}

func searchMessage(t *turn) string {
	if t.errNote != "" {
		return "I couldn't search existing tickets right now. Please try again in a moment."
	}
	if len(t.matches) == 0 {
		return "I didn't find any similar tickets. If this is a new problem, ask me to create a ticket for it."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d similar ticket(s):\n\n", len(t.matches))
	writeMatchList(&b, t.matches)
	b.WriteString("\nAsk me to create a new ticket if none of these cover it, or \"update <key>\" to comment on one.")
	return b.String()
}

func writeMatchList(b *strings.Builder, matches []protocol.MatchedTicket) {
	for _, m := range matches {
		fmt.Fprintf(b, "- %s: %s (score %.2f", m.Key, m.Summary, m.Score)
		if m.Status != "" {
			fmt.Fprintf(b, ", %s", m.Status)
		}
		b.WriteString(")")
		if m.MatchReason != "" {
			fmt.Fprintf(b, " - %s", m.MatchReason)
		}
		b.WriteString("\n")
	}
}
