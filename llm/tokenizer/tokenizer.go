// Package tokenizer provides token counting for request budgeting and usage
// accounting, with exact tiktoken counts for OpenAI-family models and a
// character-ratio estimator for everything else.
package tokenizer

// Tokenizer is the unified token counting interface.
type Tokenizer interface {
	// CountTokens returns the token count of the given text.
	CountTokens(text string) (int, error)

	// MaxTokens returns the model's maximum context length.
	MaxTokens() int

	// Name returns the tokenizer name.
	Name() string
}

// ForModel returns the tiktoken tokenizer when the model is a known
// OpenAI-family model and the generic estimator otherwise.
func ForModel(model string) Tokenizer {
	if t, ok := NewTiktokenTokenizer(model); ok {
		return t
	}
	return NewEstimatorTokenizer(model, 0)
}
