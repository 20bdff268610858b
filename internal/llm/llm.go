// Package llm wraps the OpenAI-compatible chat API used for keyword
// derivation and streamed answering. The underlying client is built
// once and injected; handlers never construct transports per request.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamEvent is one upstream delta, flattened out of the provider's
// chunk shape. Content and Reasoning are mutually exclusive on a
// well-behaved upstream.
type StreamEvent struct {
	ID           string
	Created      int64
	Model        string
	Role         string
	Content      string
	Reasoning    string
	FinishReason string
}

// EventStream yields StreamEvents until io.EOF.
type EventStream interface {
	Recv() (StreamEvent, error)
	Close() error
}

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	api    *openai.Client
	Logger *log.Logger
}

// New builds a Client for the given endpoint. baseURL may be empty for
// the official API.
func New(apiKey, baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[LLM] ", log.LstdFlags)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg), Logger: logger}
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// requestTemperature pins sampling to (effectively) zero on every
// request. go-openai tags Temperature with omitempty, so a literal 0
// never reaches the wire and the provider would fall back to its own
// default; the smallest nonzero float is the library's documented
// stand-in for 0.
const requestTemperature = math.SmallestNonzeroFloat32

// Complete runs a non-streaming completion and returns the first
// choice's content. Used for keyword derivation, where determinism
// matters more than latency.
func (c *Client) Complete(ctx context.Context, messages []Message, model string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAI(messages),
		Temperature: requestTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion and returns the event stream.
func (c *Client) Stream(ctx context.Context, messages []Message, model string) (EventStream, error) {
	s, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAI(messages),
		Temperature: requestTemperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	return &openaiStream{inner: s}, nil
}

type openaiStream struct {
	inner *openai.ChatCompletionStream
}

func (s *openaiStream) Recv() (StreamEvent, error) {
	resp, err := s.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return StreamEvent{}, io.EOF
		}
		return StreamEvent{}, err
	}
	ev := StreamEvent{ID: resp.ID, Created: resp.Created, Model: resp.Model}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		ev.Role = choice.Delta.Role
		ev.Content = choice.Delta.Content
		ev.Reasoning = choice.Delta.ReasoningContent
		ev.FinishReason = string(choice.FinishReason)
	}
	return ev, nil
}

func (s *openaiStream) Close() error { return s.inner.Close() }
