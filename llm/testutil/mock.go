// Package testutil provides test utilities for the llm package.
// It includes mock implementations for testing LLM client interactions.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/semplan/llm"
)

// MockLLMClient is a thread-safe mock llm.Generator for testing.
// The Nth call returns Errs[N] when set, otherwise Responses[N].
//
// Usage:
//
//	// One reply per pipeline stage
//	mock := &MockLLMClient{
//	    Responses: []*llm.Response{
//	        {Content: `{"category": "家事", ...}`},
//	        {Content: "not json"},
//	    },
//	}
//
//	// Error on every call
//	mock := &MockLLMClient{
//	    Err: errors.New("connection failed"),
//	}
type MockLLMClient struct {
	mu              sync.Mutex
	capturedContext context.Context
	requests        []llm.Request

	Responses []*llm.Response // Responses to return in sequence
	Errs      []error         // Per-call errors; nil entries fall through to Responses
	Err       error           // Error to return on every call (takes precedence)

	// Block, when non-nil, is waited on before answering (or until ctx is done).
	Block chan struct{}
}

// Complete implements llm.Generator.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.capturedContext = ctx
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, llm.NewTransientError(ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if idx < len(m.Errs) && m.Errs[idx] != nil {
		return nil, m.Errs[idx]
	}
	if idx < len(m.Responses) && m.Responses[idx] != nil {
		resp := *m.Responses[idx]
		if resp.Model == "" {
			resp.Model = "test-model"
		}
		return &resp, nil
	}

	// Default response if no responses configured
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// GetCapturedContext returns the last context passed to Complete().
func (m *MockLLMClient) GetCapturedContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturedContext
}

// GetCallCount returns the number of times Complete() was called.
func (m *MockLLMClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received so far.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears captured requests so the mock can be reused.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.capturedContext = nil
}
