package processing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/server/metrics"
	"github.com/teilomillet/assure/server/provider"
	"go.uber.org/zap"
)

// ErrPromptTooLarge is matched by a PromptTooLargeError.
var ErrPromptTooLarge = errors.New("prompt exceeds the model context")

// ErrPromptRender is returned when the user template fails to execute.
var ErrPromptRender = errors.New("user template execution failed")

// PromptTooLargeError reports an assembled prompt above the token limit.
type PromptTooLargeError struct {
	Tokens int
	Limit  int
}

func (e *PromptTooLargeError) Error() string {
	return fmt.Sprintf("prompt of %d tokens exceeds limit of %d", e.Tokens, e.Limit)
}

func (e *PromptTooLargeError) Is(target error) bool {
	return target == ErrPromptTooLarge
}

// TokenCounter estimates how many tokens a text costs the model.
type TokenCounter interface {
	Count(text string) int
}

// Processor handles a chat request end to end:
//  1. Assembles the conversation from the system instruction and the
//     rendered user content
//  2. Rejects prompts above the configured context size
//  3. Sends the conversation to the completion backend
//  4. Shapes the reply into a ChatResponse
//
// The prompt content can be swapped at runtime with UpdatePrompt; requests
// in flight keep the builder they started with.
type Processor struct {
	completer        provider.Completer
	prompt           atomic.Pointer[PromptBuilder]
	counter          TokenCounter
	maxContextTokens int
	logger           *zap.Logger
	metrics          *metrics.Metrics
}

// NewProcessor creates a processor from the prompt and llm sections of cfg.
// counter and m may be nil, in which case no token check is made and no
// metrics are recorded.
func NewProcessor(cfg *config.Config, completer provider.Completer, counter TokenCounter, logger *zap.Logger, m *metrics.Metrics) (*Processor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}

	p := &Processor{
		completer:        completer,
		counter:          counter,
		maxContextTokens: cfg.LLM.MaxContextTokens,
		logger:           logger,
		metrics:          m,
	}
	if err := p.UpdatePrompt(cfg.Prompt); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePrompt replaces the system instruction and user template. On error
// the previous prompt stays active.
func (p *Processor) UpdatePrompt(cfg config.PromptConfig) error {
	system := cfg.System
	if system == "" {
		system = config.DefaultSystemPrompt
	}
	b, err := NewPromptBuilder(system, cfg.UserTemplate)
	if err != nil {
		return err
	}
	p.prompt.Store(b)
	return nil
}

// SystemPrompt returns the active system instruction.
func (p *Processor) SystemPrompt() string {
	return p.prompt.Load().System()
}

// Process runs req through the completion backend.
func (p *Processor) Process(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	messages, err := p.prompt.Load().Build(req)
	if err != nil {
		return nil, err
	}

	if p.counter != nil {
		tokens := 0
		for _, m := range messages {
			tokens += p.counter.Count(m.Content)
		}
		if p.metrics != nil {
			p.metrics.PromptTokens.Observe(float64(tokens))
		}
		if p.maxContextTokens > 0 && tokens > p.maxContextTokens {
			return nil, &PromptTooLargeError{Tokens: tokens, Limit: p.maxContextTokens}
		}
		p.logger.Debug("prompt assembled",
			zap.Int("tokens", tokens),
			zap.Int("files", len(req.Files)),
			zap.Bool("profile", !req.Profile.Empty()),
		)
	}

	ctx = provider.WithSubmission(ctx, provider.Submission{
		Message:   req.Message,
		Age:       req.Profile.Get("age"),
		FileCount: len(req.Files),
	})
	reply, err := p.completer.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		Response:        reply,
		ProfileReceived: !req.Profile.Empty(),
		FilesReceived:   len(req.Files),
	}, nil
}
