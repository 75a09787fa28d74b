// Package session tracks per-conversation state across pipeline turns:
// whether the opening turn has completed, the matches shown on the
// previous turn, and the running transcript used to resolve references
// like "update it".
package session

import (
	"sync"
	"time"

	"github.com/ticketry-io/ticketry/pkg/protocol"
)

// Turn is one transcript entry. Role is "user" or "assistant".
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// State is the memory of a single conversation. Callers obtain it via
// Store.Acquire, which locks it for the duration of a pipeline turn;
// all field access happens under that lock.
type State struct {
	mu sync.Mutex

	FirstTurnCompleted bool
	LastMatches        []protocol.MatchedTicket
	PendingDecision    string
	History            []Turn
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Store holds conversation state keyed by conversation id. The store
// mutex guards only the map; each State carries its own lock, so turns
// in different conversations proceed in parallel while turns in the
// same conversation serialize.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*State)}
}

// Acquire returns the state for a conversation, creating it on first
// use, locked for the caller. The caller must Release it when the turn
// is done.
func (s *Store) Acquire(id string) *State {
	s.mu.Lock()
	st, ok := s.sessions[id]
	if !ok {
		st = &State{CreatedAt: time.Now().UTC()}
		s.sessions[id] = st
	}
	s.mu.Unlock()

	st.mu.Lock()
	return st
}

// Release unlocks a state acquired via Acquire.
func (st *State) Release() {
	st.mu.Unlock()
}

// IsFirstTurn reports whether this conversation has not yet completed
// a pipeline turn.
func (st *State) IsFirstTurn() bool {
	return !st.FirstTurnCompleted
}

// CompleteTurn records a finished exchange: it appends both sides to
// the transcript, marks the opening turn done, and bumps the update
// time.
func (st *State) CompleteTurn(userText, reply string) {
	now := time.Now().UTC()
	st.History = append(st.History,
		Turn{Role: "user", Text: userText, At: now},
		Turn{Role: "assistant", Text: reply, At: now},
	)
	st.FirstTurnCompleted = true
	st.UpdatedAt = now
}

// SetMatches stores the matches presented this turn so a follow-up can
// refer back to them.
func (st *State) SetMatches(matches []protocol.MatchedTicket) {
	st.LastMatches = matches
}

// ResetMatches drops carried matches and any pending decision, after
// an action resolves them.
func (st *State) ResetMatches() {
	st.LastMatches = nil
	st.PendingDecision = ""
}

// Clear removes a conversation entirely. A turn already holding the
// state finishes against its own copy; the next Acquire starts fresh.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Count returns the number of live conversations.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
