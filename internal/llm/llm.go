// Package llm abstracts the chat model providers behind a single Complete
// call. Model IDs resolve through an explicit table to a provider family
// and a canonical provider model identifier.
package llm

import (
	"context"
	"fmt"
)

// Message is one turn of a chat transcript. Role is "system", "user",
// "assistant", or "tool".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Temperature float64
	MaxTokens   int
}

// Response is the provider's answer.
type Response struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
}

// Provider is one chat model backend.
type Provider interface {
	// Family identifies which model family this provider serves.
	Family() Family

	// Complete performs one blocking completion call.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Registry holds one provider per family and routes requests by the
// resolved model.
type Registry struct {
	providers map[Family]Provider
}

// NewRegistry creates a registry from the given providers. A later
// provider for the same family replaces the earlier one.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[Family]Provider)}
	for _, p := range providers {
		r.providers[p.Family()] = p
	}
	return r
}

// ProviderFor resolves the configured model and returns the provider for
// its family along with the canonical provider model ID.
func (r *Registry) ProviderFor(model string) (Provider, string, error) {
	resolved := ResolveModel(model)
	p, ok := r.providers[resolved.Family]
	if !ok {
		return nil, "", fmt.Errorf("no provider configured for model family %q", resolved.Family)
	}
	return p, resolved.ProviderModel, nil
}
