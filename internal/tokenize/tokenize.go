// Package tokenize defines the tokenizer seam shared by the streaming
// truncation detector and its pattern registration. Pattern/token
// comparisons are token-exact, so both sides must go through the same
// function.
package tokenize

import "strings"

// Func turns text into an ordered sequence of token strings.
type Func func(text string) []string

// Words splits on whitespace. It is the default stand-in for a model
// tokenizer: pivot patterns are single marker words, and provider
// stream deltas arrive pre-tokenized, so word granularity is enough
// for pattern registration.
func Words(text string) []string {
	return strings.Fields(text)
}
