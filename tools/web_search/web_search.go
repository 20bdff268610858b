// Package web_search fans a batch of keyword queries out to a web
// search provider, consulting and refreshing the search cache on the
// way. Provider response payloads stay opaque JSON here; each provider
// package knows how to normalize its own shape.
package web_search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/deepchat/deepchat/internal/metrics"
	"github.com/deepchat/deepchat/internal/relevant"
	"github.com/deepchat/deepchat/tools/web_search/bocha"
	"github.com/deepchat/deepchat/tools/web_search/tavily"
)

// Searcher is one web-search provider: an opaque raw query plus the
// normalization for that provider's response shape.
type Searcher interface {
	Search(ctx context.Context, query string, count int) (json.RawMessage, error)
	Normalize(raw json.RawMessage, query string) []relevant.Info
}

type Provider string

const (
	BochaProvider  Provider = "bocha"
	TavilyProvider Provider = "tavily"
)

// NewSearcher builds the configured provider adapter.
func NewSearcher(provider Provider, apiKey, endpoint string) (Searcher, error) {
	switch provider {
	case BochaProvider:
		return &bocha.Search{APIKey: apiKey, Endpoint: endpoint}, nil
	case TavilyProvider:
		return &tavily.Search{APIKey: apiKey, Endpoint: endpoint}, nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", provider)
	}
}

// CachedResult is one provider payload headed for the search cache.
type CachedResult struct {
	Query      string
	NumResults int
	Payload    json.RawMessage
}

// Cache is the search-cache surface the orchestrator needs.
type Cache interface {
	Get(ctx context.Context, query string, numResults int) (json.RawMessage, bool, error)
	PutBatch(ctx context.Context, results []CachedResult) (int, error)
}

// Orchestrator answers query batches from cache where possible and
// fans the rest out to the provider with bounded concurrency.
type Orchestrator struct {
	Searcher   Searcher
	Cache      Cache
	MaxWorkers int
	Logger     *log.Logger
}

func NewOrchestrator(searcher Searcher, cache Cache, maxWorkers int, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	if maxWorkers <= 0 {
		maxWorkers = 32
	}
	return &Orchestrator{Searcher: searcher, Cache: cache, MaxWorkers: maxWorkers, Logger: logger}
}

// Process returns one provider payload per query that could be
// answered, keyed by the original query string. Cached entries are
// served without network calls; per-query provider failures are
// logged and omitted; cache persistence failures are logged and do
// not fail the batch.
func (o *Orchestrator) Process(ctx context.Context, queries []string, perQuery int) map[string]json.RawMessage {
	results := make(map[string]json.RawMessage, len(queries))

	var uncached []string
	for _, q := range queries {
		if o.Cache != nil {
			payload, ok, err := o.Cache.Get(ctx, q, perQuery)
			if err != nil {
				o.Logger.Printf("cache get %q: %v", q, err)
			}
			if ok {
				metrics.SearchCacheHits.Inc()
				results[q] = payload
				continue
			}
		}
		metrics.SearchCacheMisses.Inc()
		uncached = append(uncached, q)
	}
	if len(uncached) == 0 {
		return results
	}

	fetched := make(map[string]json.RawMessage, len(uncached))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(min(o.MaxWorkers, len(uncached)))
	for _, q := range uncached {
		query := q
		g.Go(func() error {
			raw, err := o.Searcher.Search(ctx, query, perQuery)
			if err != nil {
				o.Logger.Printf("search %q: %v", query, err)
				return nil
			}
			mu.Lock()
			fetched[query] = raw
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if o.Cache != nil && len(fetched) > 0 {
		batch := make([]CachedResult, 0, len(fetched))
		for q, raw := range fetched {
			batch = append(batch, CachedResult{Query: q, NumResults: perQuery, Payload: raw})
		}
		if _, err := o.Cache.PutBatch(ctx, batch); err != nil {
			o.Logger.Printf("cache persist: %v", err)
		}
	}

	for q, raw := range fetched {
		results[q] = raw
	}
	return results
}
