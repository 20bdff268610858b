package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deepchat/deepchat/config"
	"github.com/deepchat/deepchat/internal/fetch"
	"github.com/deepchat/deepchat/internal/llm"
	"github.com/deepchat/deepchat/internal/pipeline"
	"github.com/deepchat/deepchat/internal/store"
	"github.com/deepchat/deepchat/tools/web_search"
)

// searchCache adapts the store's search cache to the orchestrator's
// interface.
type searchCache struct {
	st *store.Store
}

func (c searchCache) Get(ctx context.Context, query string, numResults int) (json.RawMessage, bool, error) {
	return c.st.GetSearch(ctx, query, numResults)
}

func (c searchCache) PutBatch(ctx context.Context, results []web_search.CachedResult) (int, error) {
	entries := make([]store.SearchEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, store.SearchEntry{Query: r.Query, NumResults: r.NumResults, Results: r.Payload})
	}
	return c.st.BatchUpsertSearch(ctx, entries)
}

// Run wires the whole backend and serves it. Every dependency is
// constructed once here; handlers only hold references.
func Run(cfgPath, addr string) error {
	cfg := config.LoadConfig(cfgPath)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	dsn := cfg.Storage.Postgres.DSN()
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("migrate: %v", err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, dsn, cfg.Search.TTL(), nil)
	if err != nil {
		return err
	}

	searcher, err := web_search.NewSearcher(web_search.Provider(cfg.Search.Provider), cfg.Search.APIKey, cfg.Search.Endpoint)
	if err != nil {
		return err
	}
	orch := web_search.NewOrchestrator(searcher, searchCache{st: st}, cfg.Search.MaxWorkers, nil)
	fetcher := fetch.New(cfg.Fetch.Timeout, cfg.Fetch.MaxDocLen, nil)
	pipe := pipeline.New(searcher, orch, fetcher, st,
		cfg.Search.NumResults, cfg.Search.TopK, cfg.Fetch.MaxDocLen, cfg.Fetch.MaxWorkers, nil)
	client := llm.New(cfg.LLM.APIKey, cfg.LLM.BaseURL, nil)

	h := &ChatHandler{
		LLM:         client,
		Pipeline:    pipe,
		Crawl:       st,
		Model:       cfg.LLM.Model,
		MaxKeywords: cfg.Search.MaxKeywords,
		PivotWords:  cfg.Stream.PivotWords,
		Logger:      log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	h.Register(e)

	if addr == "" {
		addr = cfg.Server.Address
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
	}
	return e.Start(addr)
}
