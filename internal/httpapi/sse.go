package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/interview-voice-lab/internal/turn"
)

// doneSentinel terminates every turn stream; readers treat any other
// data frame as JSON.
const doneSentinel = "[DONE]"

// SSEStream writes one turn's events as server-sent event frames:
// `data: <json>` blank-line terminated, no event field, closed by a
// literal [DONE] frame. Single writer per stream.
type SSEStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
}

// NewSSEStream prepares the response for event streaming and flushes the
// headers immediately so the client can start reading.
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSEStream{w: w, flusher: f}, nil
}

// Emit writes one event frame. A write error means the client transport
// is gone; the producer must stop emitting.
func (s *SSEStream) Emit(e turn.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream already closed")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", string(b)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close emits the [DONE] sentinel. Idempotent.
func (s *SSEStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", doneSentinel); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
