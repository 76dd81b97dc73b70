package provider

import (
	"context"

	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/gollm"
)

// Gollm adapts a gollm.LLM, giving access to every provider gollm supports.
type Gollm struct {
	llm      gollm.LLM
	provider string
	model    string
}

var _ Completer = (*Gollm)(nil)

// NewGollm creates a gollm client for cfg.Provider.
func NewGollm(cfg config.LLMConfig) (*Gollm, error) {
	llm, err := gollm.NewLLM(
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(cfg.Model),
		gollm.SetAPIKey(cfg.APIKey),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" && cfg.Endpoint != config.DefaultEndpoint {
		llm.SetEndpoint(cfg.Endpoint)
	}
	if cfg.Temperature != nil {
		llm.SetOption("temperature", *cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		llm.SetOption("max_tokens", cfg.MaxTokens)
	}
	return WrapGollm(llm, cfg.Provider, cfg.Model), nil
}

// WrapGollm adapts an existing client.
func WrapGollm(llm gollm.LLM, provider, model string) *Gollm {
	return &Gollm{llm: llm, provider: provider, model: model}
}

func (p *Gollm) Name() string  { return p.provider }
func (p *Gollm) Model() string { return p.model }

// Complete sends the conversation as a gollm prompt.
func (p *Gollm) Complete(ctx context.Context, messages []Message) (string, error) {
	prompt := &gollm.Prompt{
		Messages: make([]gollm.PromptMessage, 0, len(messages)),
	}
	for _, m := range messages {
		prompt.Messages = append(prompt.Messages, gollm.PromptMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return p.llm.Generate(ctx, prompt)
}
