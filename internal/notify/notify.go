// Package notify delivers best-effort event notifications when the
// assistant creates or updates tickets. Delivery failures are logged
// and swallowed; notifications never fail a pipeline turn.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/ticketry-io/ticketry/pkg/protocol"
)

// Event names posted to sinks.
const (
	EventTicketCreated = "ticket_created"
	EventTicketUpdated = "ticket_updated"
)

// Payload carries the facts of an event.
type Payload struct {
	Event          string `json:"event"`
	TicketKey      string `json:"ticket_key"`
	Summary        string `json:"summary,omitempty"`
	Comment        string `json:"comment,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Sink delivers a single notification.
type Sink interface {
	Post(ctx context.Context, p Payload) error
	Name() string
}

// Dispatcher fans events out to all configured sinks in the
// background. A nil or empty dispatcher is a no-op.
type Dispatcher struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(sinks []Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger, timeout: 30 * time.Second}
}

// TicketCreated announces a newly created ticket.
func (d *Dispatcher) TicketCreated(conversationID string, t protocol.Ticket) {
	d.dispatch(Payload{
		Event:          EventTicketCreated,
		TicketKey:      t.Key,
		Summary:        t.Summary,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

// TicketUpdated announces a comment added to an existing ticket.
func (d *Dispatcher) TicketUpdated(conversationID, key, comment string) {
	d.dispatch(Payload{
		Event:          EventTicketUpdated,
		TicketKey:      key,
		Comment:        comment,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

// dispatch posts to every sink from its own goroutine. Callers never
// wait on delivery.
func (d *Dispatcher) dispatch(p Payload) {
	if d == nil {
		return
	}
	for _, sink := range d.sinks {
		go func(s Sink) {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := s.Post(ctx, p); err != nil {
				d.logger.Warn("notification delivery failed",
					"sink", s.Name(), "event", p.Event, "ticket", p.TicketKey, "error", err)
			}
		}(sink)
	}
}
