package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newWSServer(t *testing.T, handler func(*websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		handler(conn)
	}))
	return ts, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestTranscriberForwardsFramesAndClassifiesEvents(t *testing.T) {
	gotFrames := make(chan []byte, 4)
	ts, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		// one malformed frame first: must be swallowed, not fatal
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"begin"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"partial","text":"tell me ab"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"turn","transcript":"tell me about channels","end_of_turn":true}`))
		for i := 0; i < 2; i++ {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				gotFrames <- data
			}
		}
		// hold the socket open until the client closes
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer ts.Close()

	frames := make(chan []byte, 4)
	frames <- []byte{1, 2}
	frames <- []byte{3, 4}

	var mu sync.Mutex
	var events []TranscriptEvent
	var closed int64

	tr, err := StartTranscriber(context.Background(), TranscriberConfig{
		URL:    wsURL,
		Token:  "one-shot",
		Frames: frames,
		OnEvent: func(e TranscriptEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
		OnClose: func() { atomic.AddInt64(&closed, 1) },
	})
	if err != nil {
		t.Fatalf("StartTranscriber: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case f := <-gotFrames:
			if len(f) != 2 {
				t.Fatalf("frame %d mangled: %v", i, f)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d never reached the vendor", i)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transcript events never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if events[0].Kind != "partial" || events[0].Text != "tell me ab" {
		t.Fatalf("partial event mismatch: %+v", events[0])
	}
	if events[1].Kind != "final" || events[1].Text != "tell me about channels" || !events[1].IsEndOfTurn {
		t.Fatalf("final event mismatch: %+v", events[1])
	}

	tr.Close()
	tr.Close() // idempotent
	tr.Wait()
	if atomic.LoadInt64(&closed) != 1 {
		t.Fatalf("OnClose must run exactly once, ran %d times", closed)
	}
}

func TestTranscriberClosesWhenFrameSourceEnds(t *testing.T) {
	ts, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer ts.Close()

	frames := make(chan []byte)
	close(frames)
	tr, err := StartTranscriber(context.Background(), TranscriberConfig{URL: wsURL, Frames: frames})
	if err != nil {
		t.Fatalf("StartTranscriber: %v", err)
	}
	done := make(chan struct{})
	go func() { tr.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("transcriber did not shut down after frame source ended")
	}
}
