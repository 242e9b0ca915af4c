package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/interview-voice-lab/internal/audio"
	"github.com/interview-voice-lab/internal/logging"
)

// SynthesizerConfig wires one speech-synthesis session. Same shape as the
// transcription bridge: text goes up as JSON, audio comes back as binary
// frames.
type SynthesizerConfig struct {
	URL   string
	Token string
	// OnAudio receives each downstream PCM16 audio chunk as it arrives.
	OnAudio func([]byte)
	// SaveDir, when non-empty, archives the full synthesized utterance as
	// a WAV on Close.
	SaveDir string
	// SampleRate of the vendor's PCM output, for the WAV header. Defaults
	// to the pipeline's canonical 16 kHz.
	SampleRate int
}

type Synthesizer struct {
	conn      *websocket.Conn
	cfg       SynthesizerConfig
	sessionID string

	mu      sync.Mutex
	pcm     []byte
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	writeMu sync.Mutex
}

// StartSynthesizer dials the vendor TTS endpoint and starts the
// downstream audio loop.
func StartSynthesizer(ctx context.Context, cfg SynthesizerConfig) (*Synthesizer, error) {
	header := map[string][]string{"Authorization": {"Bearer " + cfg.Token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SampleRate
	}
	s := &Synthesizer{
		conn:      conn,
		cfg:       cfg,
		sessionID: uuid.NewString(),
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.pumpDownstream()
	logging.Infow("synthesizer: session opened", "relay_session", s.sessionID, "url", cfg.URL)
	return s, nil
}

// Speak submits one piece of text for synthesis.
func (s *Synthesizer) Speak(text string) error {
	payload, _ := json.Marshal(map[string]string{"type": "speak", "text": text})
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("synthesizer write: %w", err)
	}
	return nil
}

func (s *Synthesizer) pumpDownstream() {
	defer s.wg.Done()
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				logging.Debugw("synthesizer: downstream read ended", "relay_session", s.sessionID, "err", err)
			}
			s.Close()
			return
		}
		if mt == websocket.BinaryMessage {
			if s.cfg.OnAudio != nil {
				s.cfg.OnAudio(data)
			}
			if s.cfg.SaveDir != "" {
				s.mu.Lock()
				s.pcm = append(s.pcm, data...)
				s.mu.Unlock()
			}
			continue
		}
		// text frames are vendor status messages; malformed ones are noise
		var msg vendorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Debugw("synthesizer: discarding malformed frame", "relay_session", s.sessionID, "err", err)
			continue
		}
		logging.Debugw("synthesizer: status", "relay_session", s.sessionID, "type", msg.Type)
	}
}

// Close tears down the session and, when archiving is configured, writes
// the accumulated audio as a WAV via tmp+rename.
func (s *Synthesizer) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
		s.archive()
		logging.Infow("synthesizer: session closed", "relay_session", s.sessionID)
	})
}

func (s *Synthesizer) archive() {
	if s.cfg.SaveDir == "" {
		return
	}
	s.mu.Lock()
	pcm := s.pcm
	s.pcm = nil
	s.mu.Unlock()
	if len(pcm) == 0 {
		return
	}
	wav := audio.BuildWAV(pcm, s.cfg.SampleRate, 1, 16)
	tsTs := time.Now().UTC().Format("20060102T150405.000Z")
	fname := fmt.Sprintf("%s/%s_%s_tts.wav", strings.TrimRight(s.cfg.SaveDir, "/"), tsTs, s.sessionID)
	tmp := fname + ".tmp"
	if err := os.WriteFile(tmp, wav, 0o644); err != nil {
		logging.Debugw("synthesizer: failed to write tmp file", "err", err, "path", tmp)
		return
	}
	if err := os.Rename(tmp, fname); err != nil {
		logging.Debugw("synthesizer: failed to rename tmp file", "err", err, "tmp", tmp, "final", fname)
		_ = os.Remove(tmp)
		return
	}
	logging.Infow("synthesizer: saved audio to disk", "path", fname, "relay_session", s.sessionID)
}

// Wait blocks until the downstream loop has exited.
func (s *Synthesizer) Wait() {
	s.wg.Wait()
}
