// Package snippet locates the passage of a fetched page that best
// matches a search result's snippet, so downstream prompting can use a
// focused context window instead of the whole page.
package snippet

import (
	"fmt"
	"strings"
)

// maxScanChars bounds the cost of scoring very large pages.
const maxScanChars = 50000

// scoreFloor is the minimum lexical F1 a sentence must strictly exceed
// to count as a match; below it the caller gets the fallback prefix.
const scoreFloor = 0.2

const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
const chinesePunct = "。，、；：？！“”‘’（）《》【】{}～—　"

// Extract finds the sentence of fullText scoring highest against
// snippet (word-set F1, lowercased, punctuation stripped) and returns
// the surrounding window of windowChars characters on each side.
//
// When no sentence clears the score floor the first 2*windowChars
// characters are returned with matched=false. Internal failures are
// recovered and reported the same way, never raised.
func Extract(fullText, snippet string, windowChars int) (matched bool, context string) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			context = fmt.Sprintf("failed to extract snippet context due to %v", r)
		}
	}()

	runes := []rune(fullText)
	if len(runes) > maxScanChars {
		runes = runes[:maxScanChars]
	}
	text := string(runes)

	strip, split := stripASCIIPunct, splitSentences
	if cjkRatio(runes) > 0.5 {
		strip, split = stripChinesePunct, splitChineseSentences
	}

	snippetWords := wordSet(strip(strings.ToLower(snippet)))

	best := ""
	bestScore := scoreFloor
	found := false
	for _, sentence := range split(text) {
		words := wordSet(strip(strings.ToLower(sentence)))
		if s := f1(snippetWords, words); s > bestScore {
			bestScore = s
			best = sentence
			found = true
		}
	}

	if !found {
		return false, string(runes[:min(len(runes), 2*windowChars)])
	}

	byteIdx := strings.Index(text, best)
	if byteIdx < 0 {
		return false, string(runes[:min(len(runes), 2*windowChars)])
	}
	start := len([]rune(text[:byteIdx]))
	end := start + len([]rune(best))
	lo := max(0, start-windowChars)
	hi := min(len(runes), end+windowChars)
	return true, string(runes[lo:hi])
}

// f1 is the harmonic mean of word-set precision and recall, zero when
// the sets do not intersect.
func f1(want, got map[string]struct{}) float64 {
	if len(want) == 0 || len(got) == 0 {
		return 0
	}
	inter := 0
	for w := range got {
		if _, ok := want[w]; ok {
			inter++
		}
	}
	if inter == 0 {
		return 0
	}
	precision := float64(inter) / float64(len(got))
	recall := float64(inter) / float64(len(want))
	return 2 * precision * recall / (precision + recall)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func stripASCIIPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(asciiPunct, r) {
			return -1
		}
		return r
	}, s)
}

func stripChinesePunct(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(chinesePunct, r) {
			return -1
		}
		return r
	}, s)
}

// cjkRatio reports the share of CJK ideographs among all characters.
func cjkRatio(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}
	cjk := 0
	for _, r := range runes {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		}
	}
	return float64(cjk) / float64(len(runes))
}

// splitSentences is a generic segmenter: a sentence ends at '.', '!'
// or '?' followed by whitespace. The trailing fragment is kept.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && isSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			for i+1 < len(runes) && isSpace(runes[i+1]) {
				i++
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// splitChineseSentences splits on Chinese and ASCII sentence enders,
// recombining each delimiter with its preceding span. A trailing span
// without a terminal delimiter is dropped, matching the recombination
// step's pairing.
func splitChineseSentences(text string) []string {
	const delims = "。！？；;!?"
	var out []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if strings.ContainsRune(delims, r) {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
