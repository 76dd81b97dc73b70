package validation

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// fallbackEncoding is used for models tiktoken has no mapping for, which
// includes most non-OpenAI models.
const fallbackEncoding = "cl100k_base"

// Tokenizer defines the interface for token counting
type Tokenizer interface {
	CountTokens(text string) int
}

// tiktokenWrapper wraps tiktoken to implement our Tokenizer interface
type tiktokenWrapper struct {
	*tiktoken.Tiktoken
}

func (t *tiktokenWrapper) CountTokens(text string) int {
	return len(t.Encode(text, nil, nil))
}

// approximateTokenizer estimates one token per four bytes of text, rounded
// up. It stands in when no BPE encoding can be loaded.
type approximateTokenizer struct{}

func (approximateTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

var (
	encodingForModel = tiktoken.EncodingForModel
	getEncoding      = tiktoken.GetEncoding
)

// TokenCounter counts prompt tokens with tiktoken.
type TokenCounter struct {
	encoding Tokenizer
	exact    bool
}

// NewTokenCounter returns a counter for model. It tries the model's own
// encoding, then cl100k_base, and finally an estimate; it never fails.
// Loading an encoding may download its rank file on first use.
func NewTokenCounter(model string, logger *zap.Logger) *TokenCounter {
	if enc, err := encodingForModel(model); err == nil {
		return &TokenCounter{encoding: &tiktokenWrapper{enc}, exact: true}
	}
	enc, err := getEncoding(fallbackEncoding)
	if err == nil {
		logger.Debug("no tiktoken encoding for model, using fallback",
			zap.String("model", model),
			zap.String("encoding", fallbackEncoding))
		return &TokenCounter{encoding: &tiktokenWrapper{enc}, exact: true}
	}
	logger.Warn("tiktoken unavailable, estimating prompt tokens",
		zap.String("model", model),
		zap.Error(err))
	return NewApproximateCounter()
}

// NewApproximateCounter returns a counter that never loads an encoding.
func NewApproximateCounter() *TokenCounter {
	return &TokenCounter{encoding: approximateTokenizer{}}
}

// Count returns the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	return tc.encoding.CountTokens(text)
}

// Exact reports whether counts come from a real encoding.
func (tc *TokenCounter) Exact() bool {
	return tc.exact
}
