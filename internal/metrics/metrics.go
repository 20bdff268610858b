// Package metrics exposes the service's prometheus collectors. They
// are registered on the default registry and served by the /metrics
// route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepchat_search_cache_hits_total",
		Help: "Search queries served from the search cache.",
	})
	SearchCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepchat_search_cache_misses_total",
		Help: "Search queries that went to the provider.",
	})
	CrawlCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepchat_crawl_cache_hits_total",
		Help: "Page contexts served from the crawl cache.",
	})
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepchat_fetch_errors_total",
		Help: "Failed page fetches by error kind.",
	}, []string{"kind"})
	StreamTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepchat_stream_truncations_total",
		Help: "Streams cut off after a pivot-token match.",
	})
)
