package llm

import (
	"context"
)

// MockClient is a configurable Client for tests. Set CompleteFunc to
// control behavior; calls are counted for verification.
type MockClient struct {
	CompleteFunc func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error)
	ModelName    string

	CompleteCalls int
}

// NewMockClient creates a mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{ModelName: "mock-model"}
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
	m.CompleteCalls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, systemMessage, temperature)
	}
	return "", nil
}

// Model implements Client.
func (m *MockClient) Model() string {
	return m.ModelName
}

var _ Client = (*MockClient)(nil)
