package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/deepchat/deepchat/internal/diagram"
	"github.com/deepchat/deepchat/internal/llm"
	"github.com/deepchat/deepchat/internal/relevant"
	"github.com/deepchat/deepchat/internal/store"
	"github.com/deepchat/deepchat/internal/stream"
	"github.com/deepchat/deepchat/internal/templates"
	"github.com/deepchat/deepchat/internal/tokenize"
)

// maxKeywordRunes drops over-long model keywords that would degrade
// provider recall.
const maxKeywordRunes = 20

// Completer is the LLM surface the handlers need. Satisfied by
// *llm.Client.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, model string) (string, error)
	Stream(ctx context.Context, messages []llm.Message, model string) (llm.EventStream, error)
}

// Retriever runs the retrieval pipeline. Satisfied by
// *pipeline.Pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, keywords []string) []relevant.Info
}

// CrawlGetter looks up cached page contexts. Satisfied by
// *store.Store.
type CrawlGetter interface {
	GetCrawl(ctx context.Context, url string) (store.CrawlEntry, bool, error)
}

// ChatHandler serves the chat backend routes.
type ChatHandler struct {
	LLM         Completer
	Pipeline    Retriever
	Crawl       CrawlGetter
	Model       string
	MaxKeywords int
	PivotWords  []string
	Logger      *log.Logger
}

func (h *ChatHandler) Register(e *echo.Echo) {
	e.POST("/gen_keywords", h.genKeywords)
	e.POST("/search", h.search)
	e.POST("/gen_diagram", h.genDiagram)
	e.POST("/v1/chat/completions", h.chat)
	e.GET("/models", h.models)
}

type questionRequest struct {
	Question string        `json:"question"`
	History  []llm.Message `json:"history"`
}

func (h *ChatHandler) genKeywords(c echo.Context) error {
	var req questionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	query := strings.TrimSpace(req.Question)
	if query == "" {
		return c.JSON(http.StatusOK, map[string][]string{"keywords": {}})
	}

	prompt := templates.MultiKeywordZH(query)
	if len(req.History) > 0 {
		prompt = templates.MultiKeywordWithHistoryZH(query, templates.HistoryString(req.History))
	}
	out, err := h.LLM.Complete(c.Request().Context(), []llm.Message{{Role: "user", Content: prompt}}, h.Model)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if strings.TrimSpace(out) == templates.SkipSearchMarker {
		h.Logger.Printf("skip search: %s", query)
		return c.JSON(http.StatusOK, map[string][]string{"keywords": {}})
	}

	keywords := templates.ParseKeywords(out)
	if len(keywords) > h.MaxKeywords {
		keywords = keywords[:h.MaxKeywords]
	}
	kept := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if len([]rune(kw)) > maxKeywordRunes {
			continue
		}
		kept = append(kept, kw)
	}
	h.Logger.Printf("keywords: %v", kept)
	return c.JSON(http.StatusOK, map[string][]string{"keywords": kept})
}

type searchRequest struct {
	Keywords []string `json:"keywords"`
}

func (h *ChatHandler) search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Keywords) == 0 {
		return c.JSON(http.StatusOK, map[string][]relevant.Info{"search_results": {}})
	}
	results := h.Pipeline.Retrieve(c.Request().Context(), req.Keywords)
	if results == nil {
		results = []relevant.Info{}
	}
	return c.JSON(http.StatusOK, map[string][]relevant.Info{"search_results": results})
}

func (h *ChatHandler) genDiagram(c echo.Context) error {
	var req questionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	query := strings.TrimSpace(req.Question)
	if query == "" {
		return c.JSON(http.StatusOK, diagram.Linear(nil))
	}
	out, err := h.LLM.Complete(c.Request().Context(), []llm.Message{{Role: "user", Content: templates.AnalysisEN(query)}}, h.Model)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, diagram.Linear(diagram.ParseSteps(out)))
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []llm.Message `json:"messages"`
	Temperature      float64       `json:"temperature"`
	Stream           bool          `json:"stream"`
	SearchContextURL []string      `json:"search_context_url"`
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages required")
	}
	ctx := c.Request().Context()

	var docs []relevant.Info
	for _, url := range req.SearchContextURL {
		entry, ok, err := h.Crawl.GetCrawl(ctx, url)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("URL %s not found in cache", url))
		}
		docs = append(docs, entry.Info())
	}

	messages := req.Messages
	if len(docs) > 0 {
		last := messages[len(messages)-1]
		last.Content = templates.GroundQuestion(last.Content, docs)
		messages[len(messages)-1] = last
	}

	src, err := h.LLM.Stream(ctx, messages, req.Model)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("Stream generation failed: %v", err))
	}

	var det *stream.Detector
	if IsThinkModel(req.Model) {
		det = stream.NewDetector(tokenize.Words, h.PivotWords)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	return stream.Relay(src, stream.NewWriter(resp), det, h.Logger)
}

func (h *ChatHandler) models(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]ModelInfo{"models": ModelInfos})
}
