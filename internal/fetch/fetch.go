// Package fetch retrieves and extracts page content for search
// results. HTML goes through readability, PDFs through a per-page
// content-stream extractor. Failures never surface as errors to the
// batch caller; they become typed Outcomes so aggregation can proceed
// uniformly.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	nurl "net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"github.com/deepchat/deepchat/internal/metrics"
	"github.com/deepchat/deepchat/internal/snippet"
)

// ErrorMarker prefixes the wire form of a failed extraction, so
// persisted contexts from failed fetches can be filtered cheaply.
const ErrorMarker = "<|ExtractError|>"

// maxPlainChars caps the content returned when no snippet is supplied.
const maxPlainChars = 8000

const maxBodyBytes = 8 << 20

// Kind classifies a fetch failure.
type Kind string

const (
	KindHTTP       Kind = "http"
	KindConnection Kind = "connection"
	KindTimeout    Kind = "timeout"
	KindPDF        Kind = "pdf"
	KindUnexpected Kind = "unexpected"
)

// Error is a fetch failure with its taxonomy kind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Outcome is the result of fetching one URL: either extracted content
// or a typed error. A batch always yields one Outcome per URL.
type Outcome struct {
	Content string
	Err     *Error
}

// Text returns the stored wire form: the content on success, the
// marker-prefixed message on failure.
func (o Outcome) Text() string {
	if o.Err != nil {
		return ErrorMarker + o.Err.Msg
	}
	return o.Content
}

// IsErrorText reports whether a stored context is the wire form of a
// failed extraction.
func IsErrorText(s string) bool { return strings.HasPrefix(s, ErrorMarker) }

var browserHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/58.0.3029.110 Safari/537.36",
	"Referer":                   "https://www.google.com/",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// Fetcher fetches and extracts one URL at a time, or a batch with
// bounded concurrency and paced result consumption.
type Fetcher struct {
	Client      *http.Client
	Logger      *log.Logger
	WindowChars int
	Pace        time.Duration
}

// New builds a Fetcher with a bounded per-request timeout.
func New(timeout time.Duration, windowChars int, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[FETCH] ", log.LstdFlags)
	}
	return &Fetcher{
		Client:      &http.Client{Timeout: timeout},
		Logger:      logger,
		WindowChars: windowChars,
		Pace:        200 * time.Millisecond,
	}
}

// Fetch retrieves url and extracts its text. When snip is non-empty,
// the snippet-matching context window is returned instead of the raw
// text (falling back to the raw text when nothing matches). PDF
// responses return per-page text capped to the first 600 words.
func (f *Fetcher) Fetch(ctx context.Context, url string, snip string) Outcome {
	out := f.fetch(ctx, url, snip)
	if out.Err != nil {
		metrics.FetchErrors.WithLabelValues(string(out.Err.Kind)).Inc()
		f.Logger.Printf("fetch %s: %s", url, out.Err.Msg)
	}
	return out
}

func (f *Fetcher) fetch(ctx context.Context, url string, snip string) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure(KindUnexpected, fmt.Sprintf("unexpected error: %v", err))
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return classifyTransport(err, f.Client.Timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return failure(KindHTTP, fmt.Sprintf("HTTP error occurred: status %d for %s", resp.StatusCode, url))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return classifyTransport(err, f.Client.Timeout)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "pdf") {
		text, err := extractPDFText(body)
		if err != nil {
			return failure(KindPDF, fmt.Sprintf("unable to retrieve the PDF: %v", err))
		}
		return Outcome{Content: text}
	}

	parsed, err := nurl.Parse(url)
	if err != nil {
		parsed = &nurl.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return failure(KindUnexpected, fmt.Sprintf("unexpected error: %v", err))
	}
	text := article.TextContent

	if snip != "" {
		if matched, window := snippet.Extract(text, snip, f.WindowChars); matched {
			return Outcome{Content: window}
		}
		return Outcome{Content: text}
	}
	if runes := []rune(text); len(runes) > maxPlainChars {
		return Outcome{Content: string(runes[:maxPlainChars])}
	}
	return Outcome{Content: text}
}

// FetchAll fetches urls concurrently, bounded by
// min(maxConcurrency, len(urls)+1) workers. The consuming loop sleeps
// Pace between processing successive completions; this paces result
// consumption, not request issuance.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, snippets map[string]string, maxConcurrency int) map[string]Outcome {
	results := make(map[string]Outcome, len(urls))
	if len(urls) == 0 {
		return results
	}

	type item struct {
		url string
		out Outcome
	}
	ch := make(chan item)

	var g errgroup.Group
	g.SetLimit(min(maxConcurrency, len(urls)+1))
	go func() {
		for _, u := range urls {
			url := u
			g.Go(func() error {
				ch <- item{url: url, out: f.Fetch(ctx, url, snippets[url])}
				return nil
			})
		}
		_ = g.Wait()
		close(ch)
	}()

	for it := range ch {
		results[it.url] = it.out
		if f.Pace > 0 {
			time.Sleep(f.Pace)
		}
	}
	return results
}

func failure(kind Kind, msg string) Outcome {
	return Outcome{Err: &Error{Kind: kind, Msg: msg}}
}

func classifyTransport(err error, timeout time.Duration) Outcome {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return failure(KindTimeout, fmt.Sprintf("request timed out after %s", timeout))
	}
	return failure(KindConnection, fmt.Sprintf("connection error occurred: %v", err))
}
