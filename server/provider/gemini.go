package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/assure/config"
	"google.golang.org/genai"
)

// geminiModels is the subset of genai.Models the backend needs.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var newGeminiClient = func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error) {
	return genai.NewClient(ctx, cfg)
}

// Gemini talks to the Gemini API through the genai SDK.
type Gemini struct {
	models      geminiModels
	model       string
	temperature *float64
	maxTokens   int
}

var _ Completer = (*Gemini)(nil)

// NewGemini creates the backend. cfg.Endpoint overrides the API base URL
// only when it is not the default OpenAI-compatible endpoint.
func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required for the gemini provider")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" && cfg.Endpoint != config.DefaultEndpoint {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := newGeminiClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiWithModels(client.Models, cfg), nil
}

func newGeminiWithModels(models geminiModels, cfg config.LLMConfig) *Gemini {
	return &Gemini{
		models:      models,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (p *Gemini) Name() string  { return "gemini" }
func (p *Gemini) Model() string { return p.model }

// Complete sends the conversation with the system messages carried as the
// system instruction.
func (p *Gemini) Complete(ctx context.Context, messages []Message) (string, error) {
	system, rest := splitSystem(messages)
	if len(rest) == 0 {
		return "", fmt.Errorf("at least one user message is required")
	}

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	genCfg := &genai.GenerateContentConfig{}
	if system != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if p.temperature != nil {
		genCfg.Temperature = genai.Ptr(float32(*p.temperature))
	}
	if p.maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(p.maxTokens)
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, genCfg)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyCompletion
	}
	return visibleText(resp.Candidates[0]), nil
}

func visibleText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
