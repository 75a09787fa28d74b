package protocol

// Ticket is one tracked issue as known to the external tracker.
// Identity is the Key; every other field reflects tracker state at
// the last fetch or write.
type Ticket struct {
	ID          string   `json:"id,omitempty"`
	Key         string   `json:"key"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	IssueType   string   `json:"issue_type"`
	Labels      []string `json:"labels"`
	Created     string   `json:"created,omitempty"`
	Updated     string   `json:"updated,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
}

// MatchedTicket is a Ticket returned by similarity search.
// Score is in [0,1], higher means more similar.
type MatchedTicket struct {
	Ticket
	Score       float64 `json:"similarity_score"`
	MatchReason string  `json:"match_reason,omitempty"`
}

// Intent is the classified purpose of a user request.
type Intent string

const (
	IntentSearch Intent = "search"
	IntentCreate Intent = "create"
	IntentUpdate Intent = "update"
	IntentInfo   Intent = "info"
)

// Valid reports whether i is one of the four known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentSearch, IntentCreate, IntentUpdate, IntentInfo:
		return true
	}
	return false
}

// Confidence grades a retrieval result set by its score distribution.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)
