package mocks

import (
	"context"
	"sync"

	"github.com/teilomillet/assure/server/provider"
)

// MockCompleter implements provider.Completer and records every
// conversation it receives.
//
// Example usage:
//
//	c := NewMockCompleter(func(ctx context.Context, msgs []provider.Message) (string, error) {
//	    return "mocked response", nil
//	})
type MockCompleter struct {
	CompleteFunc func(context.Context, []provider.Message) (string, error)
	Provider     string
	ModelName    string

	mu    sync.Mutex
	calls [][]provider.Message
}

var _ provider.Completer = (*MockCompleter)(nil)

// NewMockCompleter creates a MockCompleter. A nil completeFunc answers "".
func NewMockCompleter(completeFunc func(context.Context, []provider.Message) (string, error)) *MockCompleter {
	return &MockCompleter{
		CompleteFunc: completeFunc,
		Provider:     "mock",
		ModelName:    "mock-model",
	}
}

// NewStaticCompleter answers every call with reply.
func NewStaticCompleter(reply string) *MockCompleter {
	return NewMockCompleter(func(context.Context, []provider.Message) (string, error) {
		return reply, nil
	})
}

func (m *MockCompleter) Complete(ctx context.Context, messages []provider.Message) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]provider.Message(nil), messages...))
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return "", nil
}

func (m *MockCompleter) Name() string  { return m.Provider }
func (m *MockCompleter) Model() string { return m.ModelName }

// Calls returns the conversations received so far.
func (m *MockCompleter) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]provider.Message(nil), m.calls...)
}

// LastCall returns the most recent conversation, or nil.
func (m *MockCompleter) LastCall() []provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}
