package stream

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/deepchat/deepchat/internal/llm"
	"github.com/deepchat/deepchat/internal/tokenize"
)

type fakeStream struct {
	events []llm.StreamEvent
	i      int
	recvs  int
	closed bool
}

func (f *fakeStream) Recv() (llm.StreamEvent, error) {
	f.recvs++
	if f.i >= len(f.events) {
		return llm.StreamEvent{}, io.EOF
	}
	ev := f.events[f.i]
	f.i++
	return ev, nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

// decodeSSE splits an SSE body into its data payloads.
func decodeSSE(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, block := range strings.Split(body, "\n\n") {
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("malformed SSE block: %q", block)
		}
		out = append(out, strings.TrimPrefix(block, "data: "))
	}
	return out
}

func decodeChunk(t *testing.T, payload string) Chunk {
	t.Helper()
	var c Chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		t.Fatalf("bad chunk %q: %v", payload, err)
	}
	return c
}

func TestRelayPassthrough(t *testing.T) {
	src := &fakeStream{events: []llm.StreamEvent{
		{ID: "c1", Model: "m", Role: "assistant", Content: "Hello"},
		{ID: "c1", Model: "m", Content: " world"},
		{ID: "c1", Model: "m", FinishReason: "stop"},
	}}
	var buf bytes.Buffer
	if err := Relay(src, NewWriter(&buf), nil, nil); err != nil {
		t.Fatalf("relay: %v", err)
	}

	payloads := decodeSSE(t, buf.String())
	if payloads[len(payloads)-1] != "[DONE]" {
		t.Fatalf("stream must end with [DONE], got %q", payloads[len(payloads)-1])
	}
	if len(payloads) != 4 {
		t.Fatalf("got %d payloads, want 3 chunks plus [DONE]", len(payloads))
	}
	first := decodeChunk(t, payloads[0])
	if first.Object != "chat.completion.chunk" || first.Choices[0].Delta.Content != "Hello" {
		t.Fatalf("unexpected first chunk: %+v", first)
	}
	last := decodeChunk(t, payloads[2])
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Fatalf("finish reason not forwarded: %+v", last)
	}
	if !src.closed {
		t.Fatalf("source must be closed")
	}
}

func TestRelayReasoningPassthroughWithoutDetector(t *testing.T) {
	src := &fakeStream{events: []llm.StreamEvent{
		{ID: "c1", Model: "m", Reasoning: "thinking..."},
	}}
	var buf bytes.Buffer
	if err := Relay(src, NewWriter(&buf), nil, nil); err != nil {
		t.Fatalf("relay: %v", err)
	}
	payloads := decodeSSE(t, buf.String())
	chunk := decodeChunk(t, payloads[0])
	if chunk.Choices[0].Delta.ReasoningContent != "thinking..." {
		t.Fatalf("reasoning not forwarded: %+v", chunk)
	}
}

func TestRelayTruncatesOnPivot(t *testing.T) {
	src := &fakeStream{events: []llm.StreamEvent{
		{ID: "c1", Model: "m", Reasoning: "Wait"},
		{ID: "c1", Model: "m", Reasoning: " this"},
		{ID: "c1", Model: "m", Reasoning: " is wrong"},
	}}
	det := NewDetector(tokenize.Words, []string{"Wait", "wait"})
	var buf bytes.Buffer
	if err := Relay(src, NewWriter(&buf), det, nil); err != nil {
		t.Fatalf("relay: %v", err)
	}

	payloads := decodeSSE(t, buf.String())
	if len(payloads) != 1 || payloads[0] != "[DONE]" {
		t.Fatalf("truncated stream must emit only [DONE], got %v", payloads)
	}
	if src.recvs != 1 {
		t.Fatalf("relay must stop reading after the pivot, recvs=%d", src.recvs)
	}
	if !src.closed {
		t.Fatalf("source must be closed on truncation")
	}
}

func TestRelayLiteralReasoningFlowsThrough(t *testing.T) {
	src := &fakeStream{events: []llm.StreamEvent{
		{ID: "c1", Model: "m", Reasoning: "The"},
		{ID: "c1", Model: "m", Reasoning: " answer"},
		{ID: "c1", Model: "m", Reasoning: " follows."},
	}}
	det := NewDetector(tokenize.Words, []string{"Wait"})
	var buf bytes.Buffer
	if err := Relay(src, NewWriter(&buf), det, nil); err != nil {
		t.Fatalf("relay: %v", err)
	}
	payloads := decodeSSE(t, buf.String())
	if len(payloads) != 4 {
		t.Fatalf("got %d payloads, want 3 reasoning chunks plus [DONE]", len(payloads))
	}
	if decodeChunk(t, payloads[0]).Choices[0].Delta.ReasoningContent != "The" {
		t.Fatalf("literal reasoning must pass through unchanged")
	}
}

func TestRelayFlushesDanglingPrefixAtEOF(t *testing.T) {
	src := &fakeStream{events: []llm.StreamEvent{
		{ID: "c1", Model: "m", Reasoning: "hold"},
	}}
	det := NewDetector(tokenize.Words, []string{"hold on"})
	var buf bytes.Buffer
	if err := Relay(src, NewWriter(&buf), det, nil); err != nil {
		t.Fatalf("relay: %v", err)
	}
	payloads := decodeSSE(t, buf.String())
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want flushed prefix plus [DONE]", len(payloads))
	}
	if decodeChunk(t, payloads[0]).Choices[0].Delta.ReasoningContent != "hold" {
		t.Fatalf("withheld prefix must flush at end of stream")
	}
}

func TestRelayContentBypassesDetector(t *testing.T) {
	src := &fakeStream{events: []llm.StreamEvent{
		{ID: "c1", Model: "m", Content: "Wait"},
	}}
	det := NewDetector(tokenize.Words, []string{"Wait"})
	var buf bytes.Buffer
	if err := Relay(src, NewWriter(&buf), det, nil); err != nil {
		t.Fatalf("relay: %v", err)
	}
	payloads := decodeSSE(t, buf.String())
	if len(payloads) != 2 {
		t.Fatalf("content must not be truncated, got %v", payloads)
	}
	if decodeChunk(t, payloads[0]).Choices[0].Delta.Content != "Wait" {
		t.Fatalf("content chunk missing")
	}
}

func TestRelayDropsBothPopulatedDeltas(t *testing.T) {
	src := &fakeStream{events: []llm.StreamEvent{
		{ID: "c1", Model: "m", Content: "a", Reasoning: "b"},
		{ID: "c1", Model: "m", Content: "kept"},
	}}
	var buf bytes.Buffer
	if err := Relay(src, NewWriter(&buf), nil, nil); err != nil {
		t.Fatalf("relay: %v", err)
	}
	payloads := decodeSSE(t, buf.String())
	if len(payloads) != 2 {
		t.Fatalf("violating delta must be dropped, got %v", payloads)
	}
	if decodeChunk(t, payloads[0]).Choices[0].Delta.Content != "kept" {
		t.Fatalf("surviving delta missing")
	}
}

func TestRelayDropsEmptyDeltasWithDiagnostic(t *testing.T) {
	src := &fakeStream{events: []llm.StreamEvent{
		{ID: "c1", Model: "m"},
		{ID: "c1", Model: "m", Content: "kept"},
	}}
	var logged bytes.Buffer
	logger := log.New(&logged, "", 0)
	var buf bytes.Buffer
	if err := Relay(src, NewWriter(&buf), nil, logger); err != nil {
		t.Fatalf("relay: %v", err)
	}
	payloads := decodeSSE(t, buf.String())
	if len(payloads) != 2 {
		t.Fatalf("empty delta must not become a chunk, got %v", payloads)
	}
	if !strings.Contains(logged.String(), "neither content nor reasoning") {
		t.Fatalf("empty delta must be logged, got %q", logged.String())
	}
}

func TestRelayAssignsFallbackChunkID(t *testing.T) {
	src := &fakeStream{events: []llm.StreamEvent{
		{Model: "m", Content: "x"},
	}}
	var buf bytes.Buffer
	if err := Relay(src, NewWriter(&buf), nil, nil); err != nil {
		t.Fatalf("relay: %v", err)
	}
	payloads := decodeSSE(t, buf.String())
	chunk := decodeChunk(t, payloads[0])
	if !strings.HasPrefix(chunk.ID, "chatcmpl-") {
		t.Fatalf("missing fallback id, got %q", chunk.ID)
	}
	if chunk.Created == 0 {
		t.Fatalf("created timestamp must be filled")
	}
}
