package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deepchat/deepchat/internal/fetch"
	"github.com/deepchat/deepchat/internal/relevant"
	"github.com/deepchat/deepchat/internal/store"
	"github.com/deepchat/deepchat/tools/web_search"
)

// fakeSearcher serves canned result lists and records provider calls.
type fakeSearcher struct {
	results map[string][]relevant.Info
	calls   int32
}

func (f *fakeSearcher) Search(ctx context.Context, query string, count int) (json.RawMessage, error) {
	atomic.AddInt32(&f.calls, 1)
	raw, err := json.Marshal(f.results[query])
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (f *fakeSearcher) Normalize(raw json.RawMessage, query string) []relevant.Info {
	var infos []relevant.Info
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil
	}
	for i := range infos {
		infos[i].Keywords = []string{query}
	}
	return infos
}

type memSearchCache struct {
	entries map[string]json.RawMessage
}

func (c *memSearchCache) Get(ctx context.Context, query string, n int) (json.RawMessage, bool, error) {
	raw, ok := c.entries[query]
	return raw, ok, nil
}

func (c *memSearchCache) PutBatch(ctx context.Context, results []web_search.CachedResult) (int, error) {
	for _, r := range results {
		c.entries[r.Query] = r.Payload
	}
	return len(results), nil
}

type memCrawlCache struct {
	entries map[string]store.CrawlEntry
	upserts int
}

func (c *memCrawlCache) GetCrawl(ctx context.Context, url string) (store.CrawlEntry, bool, error) {
	e, ok := c.entries[url]
	return e, ok, nil
}

func (c *memCrawlCache) BatchUpsertCrawl(ctx context.Context, entries []store.CrawlEntry) int {
	for _, e := range entries {
		c.entries[e.URL] = e
		c.upserts++
	}
	return len(entries)
}

func newTestPipeline(searcher *fakeSearcher, crawl *memCrawlCache) *Pipeline {
	searchCache := &memSearchCache{entries: map[string]json.RawMessage{}}
	orch := web_search.NewOrchestrator(searcher, searchCache, 4, nil)
	fetcher := fetch.New(2*time.Second, 400, nil)
	fetcher.Pace = 0
	return New(searcher, orch, fetcher, crawl, 10, 5, 400, 4, nil)
}

func TestRetrieveFetchesAndPersists(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `<html><body><article><p>Filler opening sentence here. `+
			`The quick brown fox jumps over the lazy dog today. `+
			`Closing filler sentence here.</p></article></body></html>`)
	}))
	defer srv.Close()

	searcher := &fakeSearcher{results: map[string][]relevant.Info{
		"fox facts": {{
			Title:   "Foxes",
			URL:     srv.URL + "/fox",
			Snippet: "quick brown fox jumps over the lazy dog",
		}},
	}}
	crawl := &memCrawlCache{entries: map[string]store.CrawlEntry{}}
	p := newTestPipeline(searcher, crawl)

	got := p.Retrieve(context.Background(), []string{"fox facts"})
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].ID != 1 {
		t.Fatalf("rerank must assign dense ids, got %d", got[0].ID)
	}
	if !strings.Contains(got[0].Context, "quick brown fox") {
		t.Fatalf("context not anchored to snippet: %q", got[0].Context)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected one page fetch, got %d", hits)
	}
	if _, ok := crawl.entries[srv.URL+"/fox"]; !ok {
		t.Fatalf("result must be persisted to the crawl cache")
	}
}

func TestRetrieveSecondRunHitsCachesOnly(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `<html><body><article><p>Reusable page body with plenty of words to extract.</p></article></body></html>`)
	}))
	defer srv.Close()

	searcher := &fakeSearcher{results: map[string][]relevant.Info{
		"q": {{Title: "Page", URL: srv.URL + "/page", Snippet: "reusable page body"}},
	}}
	crawl := &memCrawlCache{entries: map[string]store.CrawlEntry{}}
	p := newTestPipeline(searcher, crawl)

	first := p.Retrieve(context.Background(), []string{"q"})
	if len(first) != 1 {
		t.Fatalf("first run: got %d results, want 1", len(first))
	}
	providerCalls := atomic.LoadInt32(&searcher.calls)
	pageFetches := atomic.LoadInt32(&hits)

	second := p.Retrieve(context.Background(), []string{"q"})
	if len(second) != 1 {
		t.Fatalf("second run: got %d results, want 1", len(second))
	}
	if atomic.LoadInt32(&searcher.calls) != providerCalls {
		t.Fatalf("second run must be served from the search cache")
	}
	if atomic.LoadInt32(&hits) != pageFetches {
		t.Fatalf("second run must be served from the crawl cache")
	}
	if second[0].Context != first[0].Context {
		t.Fatalf("cached context differs: %q vs %q", second[0].Context, first[0].Context)
	}
}

func TestRetrieveDropsFailedFetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><article><p>Healthy page with a perfectly ordinary paragraph of text.</p></article></body></html>`)
	}))
	defer srv.Close()

	searcher := &fakeSearcher{results: map[string][]relevant.Info{
		"q": {
			{Title: "Gone", URL: srv.URL + "/gone", Snippet: "never matches"},
			{Title: "Alive", URL: srv.URL + "/alive", Snippet: "ordinary paragraph"},
		},
	}}
	crawl := &memCrawlCache{entries: map[string]store.CrawlEntry{}}
	p := newTestPipeline(searcher, crawl)

	got := p.Retrieve(context.Background(), []string{"q"})
	if len(got) != 1 {
		t.Fatalf("got %d results, want only the healthy page", len(got))
	}
	if got[0].Title != "Alive" || got[0].ID != 1 {
		t.Fatalf("survivor must be renumbered densely: %+v", got[0])
	}
	if _, ok := crawl.entries[srv.URL+"/gone"]; ok {
		t.Fatalf("failed fetch must not be persisted")
	}
}

func TestRetrieveMergesDuplicateURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><article><p>Shared page referenced from two different queries.</p></article></body></html>`)
	}))
	defer srv.Close()

	shared := relevant.Info{Title: "Shared", URL: srv.URL + "/shared", Snippet: "shared page referenced"}
	searcher := &fakeSearcher{results: map[string][]relevant.Info{
		"a": {shared},
		"b": {shared},
	}}
	crawl := &memCrawlCache{entries: map[string]store.CrawlEntry{}}
	p := newTestPipeline(searcher, crawl)

	got := p.Retrieve(context.Background(), []string{"a", "b"})
	if len(got) != 1 {
		t.Fatalf("duplicate URLs must merge, got %d records", len(got))
	}
	if len(got[0].Keywords) != 2 {
		t.Fatalf("merged record must carry both keywords: %v", got[0].Keywords)
	}
}

func TestRetrievePrefilledContextSkipsFetch(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	searcher := &fakeSearcher{results: map[string][]relevant.Info{
		"q": {{Title: "Raw", URL: srv.URL + "/raw", Snippet: "s", Context: "provider already supplied the page body"}},
	}}
	crawl := &memCrawlCache{entries: map[string]store.CrawlEntry{}}
	p := newTestPipeline(searcher, crawl)

	got := p.Retrieve(context.Background(), []string{"q"})
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("records with provider-supplied context must not be fetched")
	}
}
