package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/interview-voice-lab/internal/audio"
	"github.com/interview-voice-lab/internal/logging"
	"github.com/interview-voice-lab/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The auth layer in front of us has already vetted the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTranscribe is the browser leg of the transcription bridge: binary
// audio frames in, JSON transcript events out. The default codec is raw
// PCM16LE at the pipeline rate; ?codec=opus negotiates compressed ingest,
// which is decoded and resampled server-side before relay.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if !objectIDRe.MatchString(sessionID) {
		writeError(w, http.StatusBadRequest, "sessionId must be a 24-hex object id")
		return
	}
	if _, err := s.machine.Load(r.Context(), sessionID, r.Header.Get("X-User-ID")); err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}

	cred, err := relay.FetchCredential(r.Context(), s.http, s.cfg.STTTokenURL, s.cfg.STTAPIKey, sessionID)
	if err != nil {
		logging.Warnw("transcribe credential fetch failed",
			"session_id", sessionID, "err", err)
		writeError(w, http.StatusBadGateway, "transcription vendor unavailable")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade wrote its own response.
		return
	}

	frames := make(chan []byte, 32)

	// Opus negotiation goes through the decode and resample path; raw
	// PCM16 frames are already at the pipeline rate and pass straight
	// through.
	var ingest *audio.OpusIngest
	if r.URL.Query().Get("codec") == "opus" {
		res, rerr := audio.NewResampler(48000, frames)
		if rerr == nil {
			ingest, rerr = audio.NewOpusIngest(res)
		}
		if rerr != nil {
			logging.Errorw("opus ingest setup failed", "session_id", sessionID, "err", rerr)
			conn.Close()
			return
		}
	}

	tr, err := relay.StartTranscriber(r.Context(), relay.TranscriberConfig{
		URL:    s.cfg.STTStreamURL,
		Token:  cred.Token,
		Frames: frames,
		// The bridge only surfaces events. Memory writes belong to the
		// turn pipeline, which receives the final transcript as the
		// turn's user utterance; appending here would store every
		// spoken turn twice.
		OnEvent: func(ev relay.TranscriptEvent) {
			payload, merr := json.Marshal(ev)
			if merr != nil {
				return
			}
			if werr := conn.WriteMessage(websocket.TextMessage, payload); werr != nil {
				logging.Debugw("browser write failed", "session_id", sessionID, "err", werr)
			}
		},
		OnClose: func() {
			conn.Close()
		},
	})
	if err != nil {
		logging.Errorw("transcriber dial failed", "session_id", sessionID, "err", err)
		conn.Close()
		return
	}

	go func() {
		defer close(frames)
		for {
			kind, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			if ingest != nil {
				if derr := ingest.Decode(data); derr != nil {
					logging.Debugw("opus packet dropped",
						"session_id", sessionID, "err", derr)
				}
				continue
			}
			// Raw PCM16 frames are forwarded as-is; a stalled vendor
			// leg drops rather than blocking the browser read loop.
			select {
			case frames <- data:
			default:
			}
		}
	}()

	tr.Wait()
	tr.Close()
}

// handleSpeak is the browser leg of the synthesis bridge: text frames in,
// binary PCM16 audio out. The client feeds it the text events it receives
// from the turn stream and plays the audio back.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if !objectIDRe.MatchString(sessionID) {
		writeError(w, http.StatusBadRequest, "sessionId must be a 24-hex object id")
		return
	}
	if _, err := s.machine.Load(r.Context(), sessionID, r.Header.Get("X-User-ID")); err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}

	cred, err := relay.FetchCredential(r.Context(), s.http, s.cfg.TTSTokenURL, s.cfg.TTSAPIKey, sessionID)
	if err != nil {
		logging.Warnw("synthesis credential fetch failed",
			"session_id", sessionID, "err", err)
		writeError(w, http.StatusBadGateway, "synthesis vendor unavailable")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	syn, err := relay.StartSynthesizer(r.Context(), relay.SynthesizerConfig{
		URL:   s.cfg.TTSStreamURL,
		Token: cred.Token,
		OnAudio: func(chunk []byte) {
			writeMu.Lock()
			defer writeMu.Unlock()
			if werr := conn.WriteMessage(websocket.BinaryMessage, chunk); werr != nil {
				logging.Debugw("browser audio write failed",
					"session_id", sessionID, "err", werr)
			}
		},
		SaveDir: s.cfg.SaveAudioDir,
	})
	if err != nil {
		logging.Errorw("synthesizer dial failed", "session_id", sessionID, "err", err)
		return
	}
	defer syn.Close()

	for {
		kind, data, rerr := conn.ReadMessage()
		if rerr != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		if serr := syn.Speak(text); serr != nil {
			logging.Warnw("speak failed", "session_id", sessionID, "err", serr)
			return
		}
	}
}
