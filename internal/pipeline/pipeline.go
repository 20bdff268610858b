// Package pipeline composes the retrieval flow: cached web search,
// normalization, dedup, crawl-cache lookup, concurrent page fetching
// and snippet-anchored context extraction, ending in a dense rerank.
package pipeline

import (
	"context"
	"log"

	"github.com/deepchat/deepchat/internal/fetch"
	"github.com/deepchat/deepchat/internal/metrics"
	"github.com/deepchat/deepchat/internal/relevant"
	"github.com/deepchat/deepchat/internal/snippet"
	"github.com/deepchat/deepchat/internal/store"
	"github.com/deepchat/deepchat/tools/web_search"
)

// CrawlCache is the crawl-cache surface the pipeline needs. Satisfied
// by *store.Store.
type CrawlCache interface {
	GetCrawl(ctx context.Context, url string) (store.CrawlEntry, bool, error)
	BatchUpsertCrawl(ctx context.Context, entries []store.CrawlEntry) int
}

// Pipeline turns a batch of keywords into reranked, context-filled
// search results.
type Pipeline struct {
	Searcher     web_search.Searcher
	Orchestrator *web_search.Orchestrator
	Fetcher      *fetch.Fetcher
	Crawl        CrawlCache

	NumResults   int
	TopK         int
	MaxDocLen    int
	FetchWorkers int

	Logger *log.Logger
}

func New(searcher web_search.Searcher, orch *web_search.Orchestrator, fetcher *fetch.Fetcher, crawl CrawlCache, numResults, topK, maxDocLen, fetchWorkers int, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Pipeline{
		Searcher:     searcher,
		Orchestrator: orch,
		Fetcher:      fetcher,
		Crawl:        crawl,
		NumResults:   numResults,
		TopK:         topK,
		MaxDocLen:    maxDocLen,
		FetchWorkers: fetchWorkers,
		Logger:       logger,
	}
}

// Retrieve runs the full flow for keywords. Records whose context
// cannot be obtained (fetch failure, empty page) are dropped; the
// survivors are persisted to the crawl cache and renumbered 1..N.
// Iteration follows the input keyword order, so results are
// deterministic for a given set of payloads.
func (p *Pipeline) Retrieve(ctx context.Context, keywords []string) []relevant.Info {
	payloads := p.Orchestrator.Process(ctx, keywords, p.NumResults)

	var lists [][]relevant.Info
	for _, kw := range keywords {
		raw, ok := payloads[kw]
		if !ok {
			continue
		}
		infos := p.Searcher.Normalize(raw, kw)
		if p.TopK > 0 && len(infos) > p.TopK {
			infos = infos[:p.TopK]
		}
		if len(infos) > 0 {
			lists = append(lists, infos)
		}
	}
	merged := relevant.Deduplicate(lists)

	// Fill contexts from the crawl cache; whatever is left gets fetched.
	var toFetch []string
	idxByURL := make(map[string]int)
	for i := range merged {
		if merged[i].Context != "" {
			continue
		}
		if p.Crawl != nil {
			entry, ok, err := p.Crawl.GetCrawl(ctx, merged[i].URL)
			if err != nil {
				p.Logger.Printf("crawl cache get %s: %v", merged[i].URL, err)
			}
			if ok && entry.Context != "" && !fetch.IsErrorText(entry.Context) {
				metrics.CrawlCacheHits.Inc()
				merged[i].Context = entry.Context
				continue
			}
		}
		toFetch = append(toFetch, merged[i].URL)
		idxByURL[merged[i].URL] = i
	}

	if len(toFetch) > 0 {
		outcomes := p.Fetcher.FetchAll(ctx, toFetch, nil, p.FetchWorkers)
		for url, out := range outcomes {
			i := idxByURL[url]
			if out.Err != nil {
				merged[i].Context = out.Text()
				continue
			}
			merged[i].Context = p.contextFor(out.Content, merged[i].Snippet)
		}
	}

	kept := make([]relevant.Info, 0, len(merged))
	for _, info := range merged {
		if info.Context == "" || fetch.IsErrorText(info.Context) {
			continue
		}
		kept = append(kept, info)
	}

	// Persist every survivor, cached hits included; the upsert unions
	// keywords, so a hit under a new keyword still widens the row.
	if p.Crawl != nil && len(kept) > 0 {
		entries := make([]store.CrawlEntry, 0, len(kept))
		for _, info := range kept {
			entries = append(entries, store.CrawlEntryFromInfo(info))
		}
		p.Crawl.BatchUpsertCrawl(ctx, entries)
	}

	return relevant.Rerank(kept)
}

// contextFor anchors the page text to the provider snippet when the
// snippet matches, otherwise falls back to a flat prefix twice the
// window size.
func (p *Pipeline) contextFor(text, snip string) string {
	if cleaned := relevant.CleanSnippet(snip); cleaned != "" {
		if matched, window := snippet.Extract(text, cleaned, p.MaxDocLen); matched {
			return window
		}
	}
	if runes := []rune(text); len(runes) > 2*p.MaxDocLen {
		return string(runes[:2*p.MaxDocLen])
	}
	return text
}
