package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/deepchat/deepchat/internal/llm"
	"github.com/deepchat/deepchat/internal/metrics"
)

// Delta mirrors the OpenAI chunk delta shape.
type Delta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Chunk is one SSE data payload in the OpenAI chat-completion chunk
// format.
type Chunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Writer frames chunks as server-sent events, flushing after each one
// when the sink supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

func (w *Writer) WriteChunk(c Chunk) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// WriteDone emits the terminal sentinel. Every stream ends with it,
// normal or not, so clients always see a close.
func (w *Writer) WriteDone() error {
	if _, err := io.WriteString(w.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Relay copies src to w as SSE chunks. When det is non-nil the
// reasoning channel is filtered through it: withheld prefixes are
// swallowed, diverged prefixes flush as literal reasoning text, and a
// completed pivot pattern ends the stream immediately. Content deltas
// always bypass the detector.
func Relay(src llm.EventStream, w *Writer, det *Detector, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(log.Writer(), "[STREAM] ", log.LstdFlags)
	}
	defer src.Close()

	fallbackID := "chatcmpl-" + uuid.NewString()

	emit := func(ev llm.StreamEvent, delta Delta, finish string) error {
		chunk := Chunk{
			ID:      ev.ID,
			Object:  "chat.completion.chunk",
			Created: ev.Created,
			Model:   ev.Model,
			Choices: []Choice{{Delta: delta}},
		}
		if chunk.ID == "" {
			chunk.ID = fallbackID
		}
		if chunk.Created == 0 {
			chunk.Created = time.Now().Unix()
		}
		if finish != "" {
			chunk.Choices[0].FinishReason = &finish
		}
		return w.WriteChunk(chunk)
	}

	var last llm.StreamEvent
	for {
		ev, err := src.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Printf("upstream recv: %v", err)
			}
			if det != nil {
				if tail := det.Flush(); tail != "" {
					if werr := emit(last, Delta{ReasoningContent: tail}, ""); werr != nil {
						return werr
					}
				}
			}
			if werr := w.WriteDone(); werr != nil {
				return werr
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		last = ev

		if ev.Content != "" && ev.Reasoning != "" {
			logger.Printf("dropping delta with both content and reasoning set")
			continue
		}

		switch {
		case ev.Content != "":
			if err := emit(ev, Delta{Role: ev.Role, Content: ev.Content}, ev.FinishReason); err != nil {
				return err
			}
		case ev.Reasoning != "":
			if det == nil {
				if err := emit(ev, Delta{Role: ev.Role, ReasoningContent: ev.Reasoning}, ev.FinishReason); err != nil {
					return err
				}
				break
			}
			res := det.Feed(ev.Reasoning)
			switch res.Outcome {
			case Pending:
			case Literal:
				if err := emit(ev, Delta{Role: ev.Role, ReasoningContent: res.Text}, ev.FinishReason); err != nil {
					return err
				}
			case Match:
				metrics.StreamTruncations.Inc()
				logger.Printf("pivot phrase detected, truncating stream")
				if err := w.WriteDone(); err != nil {
					return err
				}
				return nil
			}
		case ev.Role != "" || ev.FinishReason != "":
			if err := emit(ev, Delta{Role: ev.Role}, ev.FinishReason); err != nil {
				return err
			}
		default:
			logger.Printf("dropping delta with neither content nor reasoning set")
		}
	}
}
