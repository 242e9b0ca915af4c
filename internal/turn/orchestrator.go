// Package turn drives one spoken-interview exchange: given the latest
// user utterance it either finalizes the session (end-intent path) or
// asks the dialogue engine for the next acknowledgment and question, and
// streams the result to the client as an incremental event sequence.
package turn

import (
	"context"
	"strings"

	"github.com/interview-voice-lab/internal/dialogue"
	"github.com/interview-voice-lab/internal/intent"
	"github.com/interview-voice-lab/internal/logging"
	"github.com/interview-voice-lab/internal/memory"
	"github.com/interview-voice-lab/internal/session"
	"github.com/interview-voice-lab/internal/store"
)

// Event is the unit sent to the client during one turn. Ordering within a
// turn is significant: ack chunk(s) precede the terminal meta event.
type Event struct {
	Text  string                 `json:"text"`
	Final bool                   `json:"final"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// EventStream delivers events for exactly one turn. Implementations have
// a single writer; Emit returns an error once the underlying transport is
// gone, at which point the producer must stop. Close terminates the
// stream and is safe to call once after the last Emit.
type EventStream interface {
	Emit(Event) error
	Close() error
}

// endAck is the fixed acknowledgment for the end-intent path. The
// dialogue engine is deliberately not consulted for the goodbye.
const endAck = "Understood, wrapping up the interview now."

// Orchestrator wires the session machine, conversation memory and the
// dialogue engine behind one Run entry point per turn.
type Orchestrator struct {
	sessions store.SessionStore
	machine  *session.Machine
	mem      *memory.Memory
	engine   dialogue.Engine
}

func NewOrchestrator(sessions store.SessionStore, machine *session.Machine, mem *memory.Memory, engine dialogue.Engine) *Orchestrator {
	return &Orchestrator{sessions: sessions, machine: machine, mem: mem, engine: engine}
}

// Authorize resolves the session and verifies the caller is its
// candidate. It runs before any stream is opened so transport errors map
// cleanly: store.ErrNotFound for unknown ids, session.ErrForbidden for a
// mismatched owner.
func (o *Orchestrator) Authorize(ctx context.Context, sessionID, callerID string) (*store.Session, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if callerID == "" || callerID != sess.CandidateID {
		return nil, session.ErrForbidden
	}
	return sess, nil
}

// Run produces the full event sequence for one turn and closes the
// stream. Failures after the stream is open become a single final error
// event; the caller always observes a terminated stream, never a hang.
func (o *Orchestrator) Run(ctx context.Context, sess *store.Session, lastUser string, out EventStream) {
	defer func() {
		if err := out.Close(); err != nil {
			logging.Debugw("turn: stream close", "session.id", sess.ID, "err", err)
		}
	}()

	if intent.IsEnd(lastUser) && sess.Status != store.StatusCompleted {
		o.runEnd(ctx, sess, lastUser, out)
		return
	}
	o.runNormal(ctx, sess, lastUser, out)
}

// runEnd finalizes the session and emits exactly two events: a short
// non-final acknowledgment and a final wrap marker.
func (o *Orchestrator) runEnd(ctx context.Context, sess *store.Session, lastUser string, out EventStream) {
	if err := o.mem.Append(ctx, sess.ID, store.RoleUser, lastUser); err != nil {
		logging.Warnw("turn: failed to record closing utterance", "session.id", sess.ID, "err", err)
	}
	if err := o.machine.EndByIntent(ctx, sess); err != nil {
		o.emitError(sess.ID, out, err)
		return
	}
	logging.Infow("turn: end intent detected, session finalized", logging.SessionFields(sess.ID, sess.CandidateID)...)

	if err := out.Emit(Event{Text: endAck, Final: false}); err != nil {
		return
	}
	_ = out.Emit(Event{
		Final: true,
		Meta:  map[string]interface{}{"stage": "wrap", "ended": true},
	})
}

// runNormal asks the dialogue engine for the next exchange and streams it
// incrementally: ack first, then the question in chunks, then the
// terminal meta event.
func (o *Orchestrator) runNormal(ctx context.Context, sess *store.Session, lastUser string, out EventStream) {
	if err := o.mem.Append(ctx, sess.ID, store.RoleUser, lastUser); err != nil {
		logging.Warnw("turn: failed to record user utterance", "session.id", sess.ID, "err", err)
	}

	reply, err := o.engine.HandleTurn(ctx, sess.ID, lastUser)
	if err != nil {
		logging.Warnw("turn: dialogue engine failed", "session.id", sess.ID, "err", err)
		o.emitError(sess.ID, out, err)
		return
	}

	assistant := strings.TrimSpace(strings.TrimSpace(reply.Ack) + " " + reply.Question)
	if err := o.mem.Append(ctx, sess.ID, store.RoleAssistant, assistant); err != nil {
		logging.Warnw("turn: failed to record assistant reply", "session.id", sess.ID, "err", err)
	}

	if ack := strings.TrimSpace(reply.Ack); ack != "" {
		if err := out.Emit(Event{Text: ack, Final: false}); err != nil {
			return
		}
	}
	for _, chunk := range SplitChunks(reply.Question) {
		if err := out.Emit(Event{Text: chunk, Final: false}); err != nil {
			// transport gone; delivery is discarded, state is already saved
			return
		}
	}
	_ = out.Emit(Event{
		Final: true,
		Meta: map[string]interface{}{
			"stage":       reply.Stage,
			"turn":        reply.Turn,
			"newQuestion": reply.Question,
		},
	})
}

// emitError converts a failure into one well-formed final event.
func (o *Orchestrator) emitError(sessionID string, out EventStream, err error) {
	_ = out.Emit(Event{Text: "Error: " + err.Error(), Final: true})
}
