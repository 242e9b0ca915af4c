// Package relay bridges the browser and the external speech vendors: one
// full-duplex websocket per voice session, audio frames upstream and JSON
// events downstream. Reads and writes are independent directions; the only
// shared state is the connection handle.
package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/interview-voice-lab/internal/logging"
)

// TranscriptEvent is what the downstream direction surfaces to the rest
// of the pipeline. Partial events are ephemeral and replace the previous
// partial; finals are committed.
type TranscriptEvent struct {
	Kind        string `json:"kind"` // "partial" | "final"
	Text        string `json:"text"`
	IsEndOfTurn bool   `json:"isEndOfTurn"`
}

// TranscriberConfig wires one transcription session.
type TranscriberConfig struct {
	// URL is the vendor's streaming endpoint; Token is the short-lived
	// credential fetched at session start.
	URL   string
	Token string
	// Frames supplies AudioFrames to forward upstream in arrival order.
	Frames <-chan []byte
	// OnEvent receives classified transcript events.
	OnEvent func(TranscriptEvent)
	// OnClose runs exactly once during teardown to release local audio
	// resources.
	OnClose func()
}

// vendorMessage is the downstream wire shape, discriminated by Type.
type vendorMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

// Transcriber is one live transcription bridge. A closed Transcriber is
// done for good: a subsequent session is a fresh Start, never a resume.
type Transcriber struct {
	conn      *websocket.Conn
	cfg       TranscriberConfig
	sessionID string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// StartTranscriber dials the vendor and starts the two direction loops.
func StartTranscriber(ctx context.Context, cfg TranscriberConfig) (*Transcriber, error) {
	header := map[string][]string{"Authorization": {"Bearer " + cfg.Token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	t := &Transcriber{
		conn:      conn,
		cfg:       cfg,
		sessionID: uuid.NewString(),
		done:      make(chan struct{}),
	}
	t.wg.Add(2)
	go t.pumpUpstream()
	go t.pumpDownstream()
	logging.Infow("transcriber: session opened", "relay_session", t.sessionID, "url", cfg.URL)
	return t, nil
}

// pumpUpstream forwards audio frames as binary messages, in arrival
// order, with no batching beyond what frame production already imposes.
func (t *Transcriber) pumpUpstream() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case frame, ok := <-t.cfg.Frames:
			if !ok {
				// producer finished; tell the vendor we're done
				_ = t.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				t.Close()
				return
			}
			if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				logging.Warnw("transcriber: upstream write failed", "relay_session", t.sessionID, "err", err)
				t.Close()
				return
			}
		}
	}
}

// pumpDownstream parses vendor messages and classifies them by declared
// type. Malformed frames are swallowed with a diagnostic; they never kill
// the session.
func (t *Transcriber) pumpDownstream() {
	defer t.wg.Done()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				logging.Debugw("transcriber: downstream read ended", "relay_session", t.sessionID, "err", err)
			}
			t.Close()
			return
		}
		var msg vendorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Debugw("transcriber: discarding malformed frame", "relay_session", t.sessionID, "err", err, "bytes", len(data))
			continue
		}
		t.dispatch(msg)
	}
}

func (t *Transcriber) dispatch(msg vendorMessage) {
	text := msg.Text
	if text == "" {
		text = msg.Transcript
	}
	switch strings.ToLower(msg.Type) {
	case "partialtranscript", "partial_transcript", "partial":
		if t.cfg.OnEvent != nil {
			t.cfg.OnEvent(TranscriptEvent{Kind: "partial", Text: text})
		}
	case "finaltranscript", "final_transcript", "final", "turn":
		if t.cfg.OnEvent != nil {
			t.cfg.OnEvent(TranscriptEvent{Kind: "final", Text: text, IsEndOfTurn: true})
		}
	case "sessionbegins", "session_begins", "begin":
		logging.Infow("transcriber: vendor session began", "relay_session", t.sessionID)
	case "sessionterminated", "session_terminated", "termination":
		logging.Infow("transcriber: vendor session terminated", "relay_session", t.sessionID)
	default:
		logging.Debugw("transcriber: ignoring message", "relay_session", t.sessionID, "type", msg.Type)
	}
}

// Close tears the session down. Idempotent: the cleanup hook and the
// socket close run at most once no matter which direction fails first.
func (t *Transcriber) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.Close()
		if t.cfg.OnClose != nil {
			t.cfg.OnClose()
		}
		logging.Infow("transcriber: session closed", "relay_session", t.sessionID)
	})
}

// Wait blocks until both direction loops have exited.
func (t *Transcriber) Wait() {
	t.wg.Wait()
}
