package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for AI providers. It is safe for
// concurrent use.
type MockProvider struct {
	Response    string
	Responses   []string // if set, returned in order; the last one repeats
	Err         error
	LastRequest *CompletionRequest // captures the last request for inspection

	mu       sync.Mutex
	requests []CompletionRequest
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRequest = &req
	m.requests = append(m.requests, req)
	if m.Err != nil {
		return CompletionResponse{}, m.Err
	}

	content := m.Response
	if n := len(m.Responses); n > 0 {
		idx := len(m.requests) - 1
		if idx >= n {
			idx = n - 1
		}
		content = m.Responses[idx]
	}
	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

// Requests returns every request received so far.
func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

func (m *MockProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Content: resp.Content, Done: true}
	close(ch)
	return ch, nil
}

func (m *MockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "mock", Name: "Mock Model", MaxTokens: 4096, Description: "Test mock"},
	}
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}
