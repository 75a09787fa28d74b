// Package pipeline orchestrates one chat turn through a fixed sequence
// of decision stages: validate the request, classify intent and extract
// fields, retrieve similar tickets, execute tracker actions, and
// assemble the reply. Stage transitions are an explicit state machine;
// every path terminates in a well-formed response.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/ticketry-io/ticketry/internal/embedding"
	"github.com/ticketry-io/ticketry/internal/notify"
	"github.com/ticketry-io/ticketry/internal/provider"
	"github.com/ticketry-io/ticketry/internal/session"
	"github.com/ticketry-io/ticketry/internal/tracker"
	"github.com/ticketry-io/ticketry/internal/vectorindex"
	"github.com/ticketry-io/ticketry/pkg/protocol"
)

// Tracker is the subset of tracker operations the per-turn pipeline
// uses. The sync job consumes the search operation separately.
type Tracker interface {
	CreateIssue(ctx context.Context, fields tracker.IssueFields) (string, error)
	AddComment(ctx context.Context, key, body string) error
}

// Searcher is the retrieval interface over the vector index. Callers
// assume the search contract only, not an exhaustive scan.
type Searcher interface {
	Search(query []float32, k int, threshold float64) ([]vectorindex.Match, error)
	Count() int
}

// KnownTickets answers lookups against the last tracker sync. The
// cache trails the tracker, so a miss is advisory only.
type KnownTickets interface {
	Get(key string) (protocol.Ticket, error)
}

// Options bound retrieval behavior and supply tracker defaults.
type Options struct {
	MaxResults         int
	Threshold          float64
	DuplicateThreshold float64
	ProjectKey         string
}

// Pipeline wires the stages to their collaborators. One Pipeline
// serves all conversations; per-turn state lives in the turn struct.
type Pipeline struct {
	llm      provider.Provider
	embedder embedding.Embedder
	index    Searcher
	tracker  Tracker
	cache    KnownTickets
	sessions *session.Store
	notifier *notify.Dispatcher
	logger   *slog.Logger
	opts     Options
}

// New creates a pipeline. notifier and cache may be nil when no sinks
// or ticket cache are configured.
func New(llm provider.Provider, embedder embedding.Embedder, index Searcher, trk Tracker, cache KnownTickets,
	sessions *session.Store, notifier *notify.Dispatcher, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.5
	}
	if opts.DuplicateThreshold <= 0 {
		opts.DuplicateThreshold = 0.9
	}
	return &Pipeline{
		llm:      llm,
		embedder: embedder,
		index:    index,
		tracker:  trk,
		cache:    cache,
		sessions: sessions,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// stage tags the state machine's nodes. Each stage function returns
// the next tag; stageEnd terminates the loop.
type stage int

const (
	stageValidate stage = iota
	stageRoute
	stageRetrieve
	stageAct
	stageAssemble
	stageEnd
)

// draft holds the fields extracted for a create or update.
type draft struct {
	Summary     string
	Description string
	IssueType   string
	Priority    string
	ProjectKey  string
	TicketKey   string
	Comment     string
	Labels      []string
}

// turn is the state threaded through one request. It is created fresh
// per call and never shared.
type turn struct {
	conversationID string
	query          string
	sess           *session.State
	firstTurn      bool

	intent     protocol.Intent
	draft      draft
	matches    []protocol.MatchedTicket
	confidence protocol.Confidence

	respType   protocol.ResponseType
	message    string
	errNote    string
	createdKey string
}

// Run executes one chat turn. It always returns a complete response;
// collaborator failures degrade the reply rather than aborting it.
func (p *Pipeline) Run(ctx context.Context, req protocol.ChatRequest) protocol.ChatResponse {
	sess := p.sessions.Acquire(req.ConversationID)
	defer sess.Release()

	t := &turn{
		conversationID: req.ConversationID,
		query:          req.Question,
		sess:           sess,
		firstTurn:      sess.IsFirstTurn(),
		confidence:     protocol.ConfidenceNone,
	}

	current := stageValidate
	for current != stageEnd {
		switch current {
		case stageValidate:
			current = p.validate(ctx, t)
		case stageRoute:
			current = p.route(ctx, t)
		case stageRetrieve:
			current = p.retrieve(ctx, t)
		case stageAct:
			current = p.act(ctx, t)
		case stageAssemble:
			current = p.assemble(t)
		}
	}

	// Rejected and greeting turns don't advance the conversation; the
	// next real request still gets the first-turn duplicate check.
	if t.respType != protocol.ResponseRejected && t.intent != "" {
		sess.CompleteTurn(t.query, t.message)
	}

	p.logger.Info("turn complete",
		"conversation", t.conversationID,
		"intent", t.intent,
		"type", t.respType,
		"matches", len(t.matches),
		"confidence", t.confidence)

	resp := protocol.ChatResponse{
		ConversationID: t.conversationID,
		Message:        t.message,
		Type:           t.respType,
		Intent:         t.intent,
		Tickets:        t.matches,
		Confidence:     t.confidence,
		Error:          t.errNote,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	if resp.Tickets == nil {
		resp.Tickets = []protocol.MatchedTicket{}
	}
	return resp
}
