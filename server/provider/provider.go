// Package provider implements the completion backends the chat relay talks
// to and the guarded caller that wraps them with a timeout, a circuit
// breaker and health tracking.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/assure/config"
	"go.uber.org/zap"
)

// Roles used in a conversation.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one entry of the conversation sent to a backend.
type Message struct {
	Role    string
	Content string
}

// Completer produces the assistant reply for a conversation.
type Completer interface {
	// Complete returns the text of the first completion choice. An empty
	// string is a valid reply.
	Complete(ctx context.Context, messages []Message) (string, error)
	// Name identifies the backend in logs, metrics and the health endpoint.
	Name() string
	// Model is the model identifier sent with each call.
	Model() string
}

// New builds the backend selected by cfg.Provider.
func New(cfg config.LLMConfig, logger *zap.Logger) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	logger.Info("initializing completion provider",
		zap.String("provider", provider),
		zap.String("model", cfg.Model),
		zap.String("endpoint", cfg.Endpoint),
		zap.Int("api_key_length", len(cfg.APIKey)),
	)

	switch provider {
	case "", config.DefaultProvider:
		return NewOpenAI(cfg, nil)
	case "gemini":
		return NewGemini(context.Background(), cfg)
	case "echo":
		return NewEcho(cfg.Model), nil
	default:
		c, err := NewGollm(cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s provider: %w", provider, err)
		}
		return c, nil
	}
}

// splitSystem separates system messages from the rest of the conversation.
// Backends without a system role in their message list carry it separately.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
