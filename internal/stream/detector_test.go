package stream

import (
	"testing"

	"github.com/deepchat/deepchat/internal/tokenize"
)

func TestDetectorLiteralPassthrough(t *testing.T) {
	d := NewDetector(tokenize.Words, []string{"wait"})
	for _, tok := range []string{"I", " think", " wait no"} {
		res := d.Feed(tok)
		if res.Outcome != Literal || res.Text != tok {
			t.Fatalf("token %q: got %+v, want literal passthrough", tok, res)
		}
	}
}

func TestDetectorLiteralsThenMatch(t *testing.T) {
	d := NewDetector(tokenize.Words, []string{"wait"})
	want := []Outcome{Literal, Literal, Match, Literal}
	for i, tok := range tokenize.Words("I think wait no") {
		res := d.Feed(tok)
		if res.Outcome != want[i] {
			t.Fatalf("token %d %q: got %+v, want outcome %v", i, tok, res, want[i])
		}
		if res.Outcome == Literal && res.Text != tok {
			t.Fatalf("token %q: literal text = %q", tok, res.Text)
		}
	}
}

func TestDetectorSingleTokenMatch(t *testing.T) {
	d := NewDetector(tokenize.Words, []string{"Wait", "wait"})
	if res := d.Feed("Wait"); res.Outcome != Match {
		t.Fatalf("got %+v, want match", res)
	}
	// Detector is reusable after a match.
	if res := d.Feed("wait"); res.Outcome != Match {
		t.Fatalf("after reset: got %+v, want match", res)
	}
	if res := d.Feed("waiting"); res.Outcome != Literal {
		t.Fatalf("got %+v, want literal for non-exact token", res)
	}
}

func TestDetectorMultiTokenPattern(t *testing.T) {
	d := NewDetector(tokenize.Words, []string{"hold on"})
	if res := d.Feed("hold"); res.Outcome != Pending {
		t.Fatalf("got %+v, want pending prefix", res)
	}
	if res := d.Feed("on"); res.Outcome != Match {
		t.Fatalf("got %+v, want match", res)
	}
}

func TestDetectorDivergedPrefixFlushes(t *testing.T) {
	d := NewDetector(tokenize.Words, []string{"hold on"})
	d.Feed("hold")
	res := d.Feed("tight")
	if res.Outcome != Literal || res.Text != "holdtight" {
		t.Fatalf("got %+v, want flushed prefix plus diverging token", res)
	}
}

func TestDetectorDoesNotRestartInsideFlush(t *testing.T) {
	d := NewDetector(tokenize.Words, []string{"hold on"})
	d.Feed("hold")
	if res := d.Feed("hold"); res.Outcome != Literal || res.Text != "holdhold" {
		t.Fatalf("got %+v, want flush of both tokens", res)
	}
	// The second "hold" was released with the flush, so "on" arrives at
	// position zero and cannot complete the pattern.
	if res := d.Feed("on"); res.Outcome != Literal || res.Text != "on" {
		t.Fatalf("got %+v, want literal", res)
	}
}

func TestDetectorFlushReleasesPrefix(t *testing.T) {
	d := NewDetector(tokenize.Words, []string{"hold on"})
	d.Feed("hold")
	if got := d.Flush(); got != "hold" {
		t.Fatalf("flush = %q, want withheld prefix", got)
	}
	if got := d.Flush(); got != "" {
		t.Fatalf("second flush = %q, want empty", got)
	}
}

func TestDetectorIgnoresEmptyPatterns(t *testing.T) {
	d := NewDetector(tokenize.Words, []string{"", "   ", "wait"})
	if res := d.Feed("wait"); res.Outcome != Match {
		t.Fatalf("got %+v, want match on the surviving pattern", res)
	}
}
