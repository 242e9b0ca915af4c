// Package session guards the interview lifecycle: scheduled -> in-progress
// -> completed. Every transition is ownership-gated and source-state
// checked; an invalid transition is reported as a conflict naming the
// current state, never silently ignored.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/interview-voice-lab/internal/logging"
	"github.com/interview-voice-lab/internal/store"
)

// ErrForbidden is returned when the caller is neither the candidate nor
// the assigned recruiter. Ownership violations are never reported as a
// state problem.
var ErrForbidden = errors.New("forbidden")

// ConflictError describes a transition attempted from an invalid source
// state.
type ConflictError struct {
	Op     string
	State  string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s session in state %q: %s", e.Op, e.State, e.Reason)
	}
	return fmt.Sprintf("cannot %s session in state %q", e.Op, e.State)
}

// Summary is the aggregate produced by the external analysis collaborator
// when an interview is ended administratively.
type Summary struct {
	Score    float64
	Feedback string
}

// Summarizer is the analysis collaborator contract.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID string) (Summary, error)
}

// Machine applies lifecycle transitions against the session store.
type Machine struct {
	sessions store.SessionStore
	analysis Summarizer
	now      func() time.Time
}

// NewMachine creates a state machine. analysis may be nil; administrative
// End then skips scoring.
func NewMachine(sessions store.SessionStore, analysis Summarizer) *Machine {
	return &Machine{sessions: sessions, analysis: analysis, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (m *Machine) SetClock(now func() time.Time) { m.now = now }

// Load fetches a session and verifies the caller may act on it.
func (m *Machine) Load(ctx context.Context, id, callerID string) (*store.Session, error) {
	sess, err := m.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID == "" || (callerID != sess.CandidateID && callerID != sess.RecruiterID) {
		return nil, ErrForbidden
	}
	return sess, nil
}

// Start moves a scheduled session to in-progress. It additionally requires
// the scheduled time to have arrived.
func (m *Machine) Start(ctx context.Context, id, callerID string) (*store.Session, error) {
	sess, err := m.Load(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if sess.Status != store.StatusScheduled {
		return nil, &ConflictError{Op: "start", State: sess.Status}
	}
	now := m.now().UTC()
	if now.Before(sess.ScheduledAt) {
		return nil, &ConflictError{Op: "start", State: sess.Status, Reason: fmt.Sprintf("scheduled for %s", sess.ScheduledAt.Format(time.RFC3339))}
	}
	sess.Status = store.StatusInProgress
	sess.StartedAt = &now
	if err := m.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist start: %w", err)
	}
	logging.Infow("session started", logging.SessionFields(sess.ID, sess.CandidateID)...)
	return sess, nil
}

// End completes an in-progress session administratively: it also asks the
// analysis collaborator for an aggregate score and feedback summary.
// Analysis failure degrades to a warning; completion is never rolled back
// for it.
func (m *Machine) End(ctx context.Context, id, callerID string) (*store.Session, error) {
	sess, err := m.Load(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if err := m.complete(ctx, sess, ""); err != nil {
		return nil, err
	}
	if m.analysis != nil {
		sum, aerr := m.analysis.Summarize(ctx, sess.ID)
		if aerr != nil {
			logging.Warnw("session end: analysis failed", "session.id", sess.ID, "err", aerr)
		} else {
			score := sum.Score
			sess.Score = &score
			sess.Feedback = sum.Feedback
			if uerr := m.sessions.Update(ctx, sess); uerr != nil {
				logging.Warnw("session end: failed to persist summary", "session.id", sess.ID, "err", uerr)
			}
		}
	}
	return sess, nil
}

// EndByIntent completes a session on the orchestrator's end-intent path:
// it marks the stage flow as "wrap" and performs no analysis call.
func (m *Machine) EndByIntent(ctx context.Context, sess *store.Session) error {
	return m.complete(ctx, sess, "wrap")
}

func (m *Machine) complete(ctx context.Context, sess *store.Session, stage string) error {
	if sess.Status != store.StatusInProgress {
		return &ConflictError{Op: "end", State: sess.Status}
	}
	now := m.now().UTC()
	sess.Status = store.StatusCompleted
	sess.EndedAt = &now
	if stage != "" {
		sess.Stage = stage
	}
	if err := m.sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("persist end: %w", err)
	}
	logging.Infow("session completed", logging.SessionFields(sess.ID, sess.CandidateID)...)
	return nil
}
