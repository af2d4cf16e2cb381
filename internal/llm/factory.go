package llm

import (
	"fmt"
	"os"
)

// NewClient creates a chat-completion client for the given provider and
// model. Supported providers: "anthropic", "openai", "ollama".
func NewClient(provider string, model string) (Client, error) {
	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		return NewAnthropicClient(apiKey, model), nil

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIClient(apiKey, model), nil

	case "ollama":
		host := os.Getenv("OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaClient(host, model), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
