package processing

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/server/provider"
)

// PromptBuilder assembles the two-message conversation for a ChatRequest:
// the system instruction followed by the rendered user content.
type PromptBuilder struct {
	system string
	user   *template.Template
}

// NewPromptBuilder compiles userTemplate once so invalid templates fail at
// startup or reload rather than per request.
func NewPromptBuilder(system, userTemplate string) (*PromptBuilder, error) {
	if strings.TrimSpace(userTemplate) == "" {
		userTemplate = config.DefaultUserTemplate
	}
	t, err := template.New("user").Option("missingkey=error").Parse(userTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user template: %w", err)
	}
	return &PromptBuilder{system: system, user: t}, nil
}

// System returns the system instruction.
func (b *PromptBuilder) System() string {
	return b.system
}

// UserContent renders the user message for req, trimmed of surrounding
// whitespace. The profile block, the file block and the query always appear
// in that order.
func (b *PromptBuilder) UserContent(req *ChatRequest) (string, error) {
	var buf bytes.Buffer
	err := b.user.Execute(&buf, config.UserTemplateData{
		ProfileSummary: req.Profile.Summary(),
		FilesSummary:   req.Files.Summary(),
		Message:        req.Message,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPromptRender, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Build returns the conversation for req.
func (b *PromptBuilder) Build(req *ChatRequest) ([]provider.Message, error) {
	user, err := b.UserContent(req)
	if err != nil {
		return nil, err
	}
	return []provider.Message{
		{Role: provider.RoleSystem, Content: b.system},
		{Role: provider.RoleUser, Content: user},
	}, nil
}
