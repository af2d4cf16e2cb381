// Package llm provides a thin abstraction over chat-completion APIs so the
// reasoning oracle can swap providers without touching business logic.
package llm

import "context"

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request contains the parameters for a chat completion.
// System is kept separate from Messages because providers disagree on
// where system instructions belong.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	ForceJSON   bool
}

// Usage reports token consumption for a single request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response contains the result of a chat completion.
type Response struct {
	Text       string
	Usage      Usage
	Model      string
	StopReason string
}

// Client is the interface all chat-completion providers implement.
type Client interface {
	// Complete sends a completion request and returns the response.
	// Cancellation and timeouts arrive via ctx.
	Complete(ctx context.Context, req Request) (*Response, error)
	// Name returns the provider name.
	Name() string
}
