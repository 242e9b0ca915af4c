package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHandleTurnRetriesTransient(t *testing.T) {
	var calls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			http.Error(w, "server error", 500)
			return
		}
		var p map[string]string
		json.NewDecoder(r.Body).Decode(&p)
		json.NewEncoder(w).Encode(Reply{Ack: "got it", Question: "tell me more about " + p["utterance"], Stage: "depth", Turn: 3})
	}))
	defer ts.Close()

	c := &Client{BaseURL: ts.URL, HTTP: ts.Client()}
	reply, err := c.HandleTurn(context.Background(), "sess-1", "goroutines")
	if err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	if reply.Question != "tell me more about goroutines" || reply.Turn != 3 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if atomic.LoadInt64(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestHandleTurnPermanentError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", 401)
	}))
	defer ts.Close()

	c := &Client{BaseURL: ts.URL, HTTP: ts.Client()}
	_, err := c.HandleTurn(context.Background(), "sess-1", "hi")
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected permanent error, got: %v", err)
	}
}
