package protocol

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Question       string `json:"question"`
}

// ResponseType tags what the pipeline did with a request.
type ResponseType string

const (
	ResponseSimilar  ResponseType = "SIMILAR"
	ResponseCreated  ResponseType = "CREATED"
	ResponseUpdated  ResponseType = "UPDATED"
	ResponseInfo     ResponseType = "INFO"
	ResponseRejected ResponseType = "REJECTED"
)

// ChatResponse is the canonical result payload for one chat turn.
// Message is always set, even when Error is non-empty.
type ChatResponse struct {
	ConversationID string          `json:"conversation_id"`
	Message        string          `json:"message"`
	Type           ResponseType    `json:"type"`
	Intent         Intent          `json:"intent,omitempty"`
	Tickets        []MatchedTicket `json:"tickets"`
	Confidence     Confidence      `json:"confidence,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      string          `json:"timestamp"`
}
