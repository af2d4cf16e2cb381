// Package oracle abstracts the reasoning component that proposes
// classifications, plans, and next actions. Implementations are selected by
// configuration: an LLM-backed client when the oracle is enabled, and a
// deterministic heuristic fallback otherwise (and whenever the LLM path
// fails).
package oracle

import "context"

// SessionInfo carries the identifiers and system instructions an oracle
// needs when it is bound to an agent session.
type SessionInfo struct {
	ID           string
	CaseID       string
	SystemPrompt string
}

// Oracle is the narrow reasoning contract: prompt in, structured text out.
// Decoding the reply into a Decision is the caller's job (see
// DecodeDecision), which keeps transport and interpretation separate.
type Oracle interface {
	// Start binds the oracle to a session. Called once before the first
	// Prompt.
	Start(ctx context.Context, session SessionInfo) error
	// Prompt sends a message with prior conversation history and returns
	// the oracle's raw reply. Implementations must respect ctx deadlines:
	// a timed-out request is abandoned and returns an error, never hangs.
	Prompt(ctx context.Context, message string, history []Message) (string, error)
	// Stop releases any resources held for the session.
	Stop() error
	// Name identifies the implementation for logs.
	Name() string
}

// Message mirrors one conversation turn.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}
