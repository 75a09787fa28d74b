package provider

import "context"

// Request holds parameters for a single text-generation call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is the abstraction over text-generation APIs. Responses are
// untrusted free text; callers parse structure out of them defensively.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}
