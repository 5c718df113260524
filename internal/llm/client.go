// Package llm is the §6 language-model boundary: a narrow interface the
// inline response engine and streaming relay depend on, with concrete
// implementations selected by the opaque "<provider>/<model>" identifier
// scheme (e.g. "openai/gpt-4o", "anthropic/claude-sonnet-4-5",
// "local/llama3").
//
// Grounded on the teacher's internal/providers package (types.go's Provider
// interface, openai.go's request/response plumbing) generalised from a
// fixed provider set to a registry keyed by model-id prefix.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/discordctx/internal/model"
)

// Message is one turn in a completion request. Content carries plain text;
// Parts carries multimodal content (text/image_url parts) and takes
// precedence over Content when non-empty.
type Message struct {
	Role  string // "system", "user", "assistant"
	Content string
	Parts []model.ContentPart
}

// SafetySetting mirrors model.SafetySetting for providers that accept
// per-category safety thresholds (currently Gemini-family models).
type SafetySetting = model.SafetySetting

// CompletionRequest is the provider-agnostic shape of an LLM call (§6).
type CompletionRequest struct {
	Model           string // opaque "<provider>/<model>" or "local/<model>"
	Messages        []Message
	Temperature     float64
	MaxTokens       int
	SafetySettings  []SafetySetting
	Thinking        bool
	ReasoningEffort string // "low", "medium", "high", or "" for provider default
	APIBase         string // override, empty uses the provider's configured default
}

// StreamChunk is a piece of a streaming completion (§4.9).
type StreamChunk struct {
	Content  string
	Thinking string
	Done     bool
}

// CompletionResponse is the result of a non-streaming completion.
type CompletionResponse struct {
	Content      string
	Thinking     string
	FinishReason string
}

// Provider implements completions for every model under one or more
// "<provider>/" id prefixes.
type Provider interface {
	// Complete runs a single non-streaming completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CompleteStream runs a streaming completion, invoking onChunk for each
	// piece as it arrives. Returns the final accumulated response.
	CompleteStream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) (*CompletionResponse, error)
}

// Registry dispatches a completion request to the Provider registered for
// its model-id prefix (the text before the first "/").
type Registry struct {
	providers map[string]Provider
	fallback  string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register associates a provider prefix (e.g. "openai", "anthropic",
// "local") with a Provider implementation.
func (r *Registry) Register(prefix string, p Provider) {
	r.providers[prefix] = p
}

// SetFallback designates a prefix to use when a model id carries no
// "<provider>/" segment at all; an id whose prefix has no registered
// provider is an error even when a fallback is set.
func (r *Registry) SetFallback(prefix string) {
	r.fallback = prefix
}

func (r *Registry) resolve(modelID string) (Provider, error) {
	prefix, _, ok := strings.Cut(modelID, "/")
	if !ok {
		prefix = r.fallback
	}
	p, ok := r.providers[prefix]
	if !ok {
		return nil, fmt.Errorf("llm: no provider registered for model %q", modelID)
	}
	return p, nil
}

// Complete dispatches to the provider matching req.Model's prefix.
func (r *Registry) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	p, err := r.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	return p.Complete(ctx, req)
}

// CompleteStream dispatches to the provider matching req.Model's prefix.
func (r *Registry) CompleteStream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) (*CompletionResponse, error) {
	p, err := r.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	return p.CompleteStream(ctx, req, onChunk)
}
