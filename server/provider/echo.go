package provider

import (
	"context"
	"fmt"
	"strings"
)

// Submission is the raw chat input behind a conversation. Backends that
// answer from the input itself rather than the rendered prompt read it
// from the context.
type Submission struct {
	Message   string
	Age       string
	FileCount int
}

type submissionKey struct{}

// WithSubmission attaches s to ctx.
func WithSubmission(ctx context.Context, s Submission) context.Context {
	return context.WithValue(ctx, submissionKey{}, s)
}

// SubmissionFrom returns the submission attached to ctx, if any.
func SubmissionFrom(ctx context.Context) (Submission, bool) {
	s, ok := ctx.Value(submissionKey{}).(Submission)
	return s, ok
}

// Echo answers without calling any API, the way the development stub of
// the relay did:
//
//	Received message: '<message>' | Age: <age> | Files: <n> uploaded
//
// The age and files parts only appear when set. Without a Submission in the
// context the user content stands in for the message.
type Echo struct {
	model string
}

var _ Completer = (*Echo)(nil)

// NewEcho creates an echo backend reporting model as its model name.
func NewEcho(model string) *Echo {
	return &Echo{model: model}
}

func (e *Echo) Name() string  { return "echo" }
func (e *Echo) Model() string { return e.model }

func (e *Echo) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sub, ok := SubmissionFrom(ctx)
	if !ok {
		_, rest := splitSystem(messages)
		if len(rest) > 0 {
			sub.Message = rest[len(rest)-1].Content
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Received message: '%s'", sub.Message)
	if sub.Age != "" {
		fmt.Fprintf(&b, " | Age: %s", sub.Age)
	}
	if sub.FileCount > 0 {
		fmt.Fprintf(&b, " | Files: %d uploaded", sub.FileCount)
	}
	return b.String(), nil
}
