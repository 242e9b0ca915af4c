// Package httpapi is the transport surface of the turn pipeline: the SSE
// turn endpoint, administrative session transitions, the browser leg of
// the voice relays and the vendor token proxy. Caller identity arrives in
// the X-User-ID header, established by the fronting auth layer (out of
// scope here).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/interview-voice-lab/internal/logging"
	"github.com/interview-voice-lab/internal/memory"
	"github.com/interview-voice-lab/internal/relay"
	"github.com/interview-voice-lab/internal/session"
	"github.com/interview-voice-lab/internal/store"
	"github.com/interview-voice-lab/internal/turn"
)

var objectIDRe = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// Config carries the external collaborator endpoints.
type Config struct {
	// STTTokenURL/TTSTokenURL are the vendors' short-lived credential
	// endpoints; the API keys stay server-side.
	STTTokenURL string
	STTAPIKey   string
	TTSTokenURL string
	TTSAPIKey   string
	// STTStreamURL/TTSStreamURL are the vendor websockets the relays dial.
	STTStreamURL string
	TTSStreamURL string
	// SaveAudioDir, when set, archives synthesized audio as WAV files.
	SaveAudioDir string
}

// Server wires the pipeline components behind HTTP handlers.
type Server struct {
	cfg     Config
	orch    *turn.Orchestrator
	machine *session.Machine
	mem     *memory.Memory
	http    *http.Client
}

func NewServer(cfg Config, orch *turn.Orchestrator, machine *session.Machine, mem *memory.Memory) *Server {
	return &Server{cfg: cfg, orch: orch, machine: machine, mem: mem, http: http.DefaultClient}
}

// Routes returns the service mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/interviews/turn", s.handleTurn)
	mux.HandleFunc("/v1/interviews/start", s.handleStart)
	mux.HandleFunc("/v1/interviews/end", s.handleEnd)
	mux.HandleFunc("/v1/sessions/active", s.handleActiveSessions)
	mux.HandleFunc("/v1/voice/token", s.handleVoiceToken)
	mux.HandleFunc("/v1/voice/transcribe", s.handleTranscribe)
	mux.HandleFunc("/v1/voice/speak", s.handleSpeak)
	return mux
}

type turnRequest struct {
	SessionID string `json:"sessionId"`
	LastUser  string `json:"lastUser"`
}

// handleTurn validates the request, authorizes the caller and hands the
// connection to the orchestrator as an SSE stream. Validation and
// authorization failures are plain JSON errors: no stream is opened and
// no state changes.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !objectIDRe.MatchString(req.SessionID) {
		writeError(w, http.StatusBadRequest, "sessionId must be a 24-hex object id")
		return
	}
	if req.LastUser == "" {
		writeError(w, http.StatusBadRequest, "lastUser is required")
		return
	}

	callerID := r.Header.Get("X-User-ID")
	sess, err := s.orch.Authorize(r.Context(), req.SessionID, callerID)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}

	stream, err := NewSSEStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	s.orch.Run(r.Context(), sess, req.LastUser, stream)
}

type transitionRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.machine.Start)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.machine.End)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, caller string) (*store.Session, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !objectIDRe.MatchString(req.SessionID) {
		writeError(w, http.StatusBadRequest, "sessionId must be a 24-hex object id")
		return
	}
	sess, err := op(r.Context(), req.SessionID, r.Header.Get("X-User-ID"))
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleActiveSessions exposes recently active conversation sessions for
// operational visibility.
func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ids, err := s.mem.ActiveSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": ids})
}

// handleVoiceToken proxies the vendor token endpoints so API keys never
// reach the browser. ?vendor=tts selects the synthesis vendor; the
// default is transcription.
func (s *Server) handleVoiceToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	url, key := s.cfg.STTTokenURL, s.cfg.STTAPIKey
	if r.URL.Query().Get("vendor") == "tts" {
		url, key = s.cfg.TTSTokenURL, s.cfg.TTSAPIKey
	}
	if url == "" {
		writeError(w, http.StatusServiceUnavailable, "vendor not configured")
		return
	}
	cred, err := relay.FetchCredential(r.Context(), s.http, url, key, uuid.NewString())
	if err != nil {
		logging.Warnw("token proxy failed", "err", err)
		writeError(w, http.StatusBadGateway, "token fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// mapError translates pipeline errors into transport statuses: unknown
// session as not-found, wrong owner as forbidden, invalid transition as a
// conflict naming the current state.
func mapError(err error) (int, string) {
	var conflict *session.ConflictError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.As(err, &conflict):
		return http.StatusConflict, conflict.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
