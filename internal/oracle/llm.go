package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/triagekit/triage/internal/llm"
)

// LLMOracle asks a chat-completion provider for decisions. One request is
// in flight at a time; each is bounded by the configured timeout, after
// which it is abandoned and reported as an error so the caller can fall
// back to the heuristic path.
type LLMOracle struct {
	client  llm.Client
	model   string
	timeout time.Duration
	system  string
	usage   llm.Usage
}

// NewLLMOracle creates an LLM-backed oracle.
func NewLLMOracle(client llm.Client, model string, timeout time.Duration) *LLMOracle {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMOracle{client: client, model: model, timeout: timeout}
}

func (o *LLMOracle) Name() string {
	return "llm/" + o.client.Name()
}

func (o *LLMOracle) Start(ctx context.Context, session SessionInfo) error {
	o.system = session.SystemPrompt
	return nil
}

func (o *LLMOracle) Stop() error {
	o.system = ""
	return nil
}

func (o *LLMOracle) Prompt(ctx context.Context, message string, history []Message) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := llm.Role(m.Role)
		if role == llm.RoleSystem {
			// System turns ride in the request's System field.
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	resp, err := o.client.Complete(reqCtx, llm.Request{
		Model:     o.model,
		System:    o.system,
		Messages:  messages,
		ForceJSON: true,
	})
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("oracle request timed out after %s: %w", o.timeout, err)
		}
		return "", fmt.Errorf("oracle request failed: %w", err)
	}
	o.usage.PromptTokens += resp.Usage.PromptTokens
	o.usage.CompletionTokens += resp.Usage.CompletionTokens
	return resp.Text, nil
}

// Usage returns the token totals accumulated across all prompts.
func (o *LLMOracle) Usage() llm.Usage {
	return o.usage
}
