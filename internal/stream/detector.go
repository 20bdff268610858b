// Package stream relays upstream chat deltas to clients as SSE chunks,
// optionally watching the reasoning channel for pivot phrases that mark
// an unproductive chain of thought.
package stream

import (
	"strings"

	"github.com/deepchat/deepchat/internal/tokenize"
)

// Outcome classifies one Feed step.
type Outcome int

const (
	// Pending means the token extends at least one pattern prefix and
	// is withheld from the client.
	Pending Outcome = iota
	// Literal means the buffered tokens plus this one match nothing
	// and flush through unchanged.
	Literal
	// Match means a full pattern just completed.
	Match
)

// Result is the visible effect of feeding one token. Text is only set
// for Literal.
type Result struct {
	Outcome Outcome
	Text    string
}

// Detector scans a token stream for any of a set of pivot patterns.
// Tokens are compared to pattern tokens exactly, so only deltas that
// arrive on clean token boundaries can match; anything else degrades
// to literal passthrough, never to a false positive.
//
// The scan does not restart inside flushed text: once a prefix
// diverges, its tokens are released and not re-examined, so a pattern
// occurrence straddling a flush is missed. Patterns are single words
// in practice, where this cannot happen.
type Detector struct {
	patterns [][]string
	buf      []string
	viable   []int
}

// NewDetector tokenizes each pattern with tok and watches for all of
// them. Patterns that tokenize to nothing are ignored.
func NewDetector(tok tokenize.Func, patterns []string) *Detector {
	d := &Detector{}
	for _, p := range patterns {
		if tokens := tok(p); len(tokens) > 0 {
			d.patterns = append(d.patterns, tokens)
		}
	}
	return d
}

// Feed advances the scan by one token.
func (d *Detector) Feed(token string) Result {
	p := len(d.buf)

	candidates := d.viable
	if p == 0 {
		candidates = make([]int, len(d.patterns))
		for i := range d.patterns {
			candidates[i] = i
		}
	}

	var survivors []int
	for _, i := range candidates {
		if d.patterns[i][p] == token {
			survivors = append(survivors, i)
		}
	}

	if len(survivors) == 0 {
		text := strings.Join(d.buf, "") + token
		d.reset()
		return Result{Outcome: Literal, Text: text}
	}
	for _, i := range survivors {
		if len(d.patterns[i]) == p+1 {
			d.reset()
			return Result{Outcome: Match}
		}
	}

	d.buf = append(d.buf, token)
	d.viable = survivors
	return Result{Outcome: Pending}
}

// Flush releases whatever prefix is still withheld. Call at end of
// stream so a dangling partial match is not swallowed.
func (d *Detector) Flush() string {
	text := strings.Join(d.buf, "")
	d.reset()
	return text
}

func (d *Detector) reset() {
	d.buf = nil
	d.viable = nil
}
