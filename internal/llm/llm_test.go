package llm

import (
	"context"
	"sync"
	"testing"
)

// MockClient is a test client that records calls and returns canned responses.
type MockClient struct {
	mu       sync.Mutex
	Calls    []Request
	Response *Response
	Err      error
}

func NewMockClient() *MockClient {
	return &MockClient{
		Response: &Response{
			Text:       "mock response",
			Usage:      Usage{PromptTokens: 10, CompletionTokens: 20},
			Model:      "mock-model",
			StopReason: "stop",
		},
	}
}

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func TestMockClientRecordsCalls(t *testing.T) {
	mock := NewMockClient()

	req := Request{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}
	resp, err := mock.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "mock response" {
		t.Errorf("Text = %q, want %q", resp.Text, "mock response")
	}
	if mock.CallCount() != 1 {
		t.Errorf("CallCount = %d, want 1", mock.CallCount())
	}
	if mock.Calls[0].Model != "test-model" {
		t.Errorf("recorded model = %q, want test-model", mock.Calls[0].Model)
	}
}

func TestNewClientMissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	for _, p := range []string{"anthropic", "openai"} {
		if _, err := NewClient(p, "some-model"); err == nil {
			t.Errorf("expected error for provider %q with missing API key", p)
		}
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	if _, err := NewClient("mainframe", "some-model"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewClientOllamaDefaultHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	client, err := NewClient("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	oc, ok := client.(*OllamaClient)
	if !ok {
		t.Fatalf("expected *OllamaClient, got %T", client)
	}
	if oc.BaseURL() != "http://localhost:11434" {
		t.Errorf("BaseURL = %q, want default localhost", oc.BaseURL())
	}
}
