package pipeline

import (
	"context"

	"github.com/ticketry-io/ticketry/internal/tracker"
	"github.com/ticketry-io/ticketry/pkg/protocol"
)

// act executes the tracker operation the intent calls for. Tracker
// faults become explanatory responses; the pipeline never surfaces a
// raw error to the caller.
func (p *Pipeline) act(ctx context.Context, t *turn) stage {
	switch t.intent {
	case protocol.IntentCreate:
		p.createTicket(ctx, t)
	case protocol.IntentUpdate:
		p.updateTicket(ctx, t)
	}
	return stageAssemble
}

func (p *Pipeline) createTicket(ctx context.Context, t *turn) {
	if t.draft.ProjectKey == "" || t.draft.Summary == "" || t.draft.Description == "" {
		// Fallbacks fill these from the raw query, so reaching here
		// means the query itself was effectively empty.
		t.errNote = "missing required fields"
		t.message = "I couldn't work out what the ticket should say. Please describe the problem in a sentence or two."
		t.respType = protocol.ResponseRejected
		return
	}

	key, err := p.tracker.CreateIssue(ctx, tracker.IssueFields{
		Summary:     t.draft.Summary,
		Description: t.draft.Description,
		IssueType:   t.draft.IssueType,
		Priority:    t.draft.Priority,
		Labels:      t.draft.Labels,
	})
	if err != nil {
		p.logger.Error("ticket creation failed", "conversation", t.conversationID, "error", err)
		t.errNote = "tracker operation failed"
		t.message = "I couldn't create the ticket: the tracker rejected the request. Please try again in a moment."
		t.respType = protocol.ResponseRejected
		return
	}

	t.createdKey = key
	t.respType = protocol.ResponseCreated
	t.sess.ResetMatches()
	p.notifier.TicketCreated(t.conversationID, protocol.Ticket{Key: key, Summary: t.draft.Summary})
	p.logger.Info("ticket created", "conversation", t.conversationID, "ticket", key)
}

func (p *Pipeline) updateTicket(ctx context.Context, t *turn) {
	if t.draft.TicketKey == "" {
		t.errNote = "missing ticket key"
		t.message = "I couldn't tell which ticket you mean. Mention its key, for example \"add a comment to SCRUM-42\"."
		t.respType = protocol.ResponseRejected
		return
	}

	if p.cache != nil {
		if _, err := p.cache.Get(t.draft.TicketKey); err != nil {
			// Tickets created since the last sync are not cached yet,
			// so a miss informs the log but never blocks the comment.
			p.logger.Info("ticket key not in sync cache", "conversation", t.conversationID, "ticket", t.draft.TicketKey)
		}
	}

	if err := p.tracker.AddComment(ctx, t.draft.TicketKey, t.draft.Comment); err != nil {
		p.logger.Error("comment failed", "conversation", t.conversationID, "ticket", t.draft.TicketKey, "error", err)
		t.errNote = "tracker operation failed"
		t.message = "I couldn't add the comment to " + t.draft.TicketKey + ". Please try again in a moment."
		t.respType = protocol.ResponseRejected
		return
	}

	t.respType = protocol.ResponseUpdated
	t.sess.ResetMatches()
	p.notifier.TicketUpdated(t.conversationID, t.draft.TicketKey, t.draft.Comment)
	p.logger.Info("comment added", "conversation", t.conversationID, "ticket", t.draft.TicketKey)
}
