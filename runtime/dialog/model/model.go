// Package model defines the provider-agnostic LLM client contract the
// autonomous decision source and the refinement layers call into. Adapters
// under features/model translate Request/Response to the provider SDKs
// (Anthropic, OpenAI, Bedrock).
package model

import (
	"context"
	"strings"
)

type (
	// Client invokes a chat completion. Implementations wrap provider SDKs
	// and must be safe for concurrent use across dialogs.
	Client interface {
		// Complete sends the request and returns the full response. Provider
		// failures are reported as *ProviderError so callers can branch on
		// the failure kind.
		Complete(ctx context.Context, req Request) (Response, error)
	}

	// Request carries the normalized completion parameters.
	Request struct {
		// Model is the provider-specific model identifier.
		Model string
		// Messages is the ordered chat history, system prompt included.
		Messages []*Message
		// Temperature controls sampling. Zero means greedy decoding.
		Temperature float32
		// MaxTokens caps the completion length. Zero uses the provider
		// default.
		MaxTokens int
	}

	// Message is one chat message.
	Message struct {
		// Role is one of RoleSystem, RoleUser or RoleAssistant.
		Role string
		// Content is the message text.
		Content string
		// Meta carries provider-specific metadata, preserved for debugging.
		Meta map[string]any
	}

	// Response wraps the generated content.
	Response struct {
		// Content holds the assistant messages, usually exactly one.
		Content []Message
		// Usage reports token counts when the provider supplies them.
		Usage TokenUsage
		// StopReason is the provider-specific termination reason.
		StopReason string
	}

	// TokenUsage records prompt and completion token counts.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}
)

// Chat roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Text returns the concatenated assistant text of the response.
func (r Response) Text() string {
	switch len(r.Content) {
	case 0:
		return ""
	case 1:
		return r.Content[0].Content
	}
	var b strings.Builder
	for _, m := range r.Content {
		b.WriteString(m.Content)
	}
	return b.String()
}
