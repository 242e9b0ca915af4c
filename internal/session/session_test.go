package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/interview-voice-lab/internal/store"
)

func seedSession(t *testing.T, st *store.MemStore, status string, scheduledAt time.Time) *store.Session {
	t.Helper()
	sess := &store.Session{
		ID:          "64b0c5e2f1a2b3c4d5e6f708",
		CandidateID: "cand-1",
		RecruiterID: "rec-1",
		Status:      status,
		ScheduledAt: scheduledAt,
	}
	if err := st.Create(context.Background(), sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sess
}

func TestStartHappyPath(t *testing.T) {
	st := store.NewMemStore()
	seedSession(t, st, store.StatusScheduled, time.Now().Add(-time.Minute))
	m := NewMachine(st, nil)

	sess, err := m.Start(context.Background(), "64b0c5e2f1a2b3c4d5e6f708", "cand-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Status != store.StatusInProgress {
		t.Fatalf("status mismatch: %s", sess.Status)
	}
	if sess.StartedAt == nil {
		t.Fatalf("StartedAt not set")
	}
}

func TestStartBeforeScheduledTimeFails(t *testing.T) {
	st := store.NewMemStore()
	seedSession(t, st, store.StatusScheduled, time.Now().Add(time.Hour))
	m := NewMachine(st, nil)

	_, err := m.Start(context.Background(), "64b0c5e2f1a2b3c4d5e6f708", "cand-1")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestStartFromCompletedFails(t *testing.T) {
	st := store.NewMemStore()
	seedSession(t, st, store.StatusCompleted, time.Now().Add(-time.Hour))
	m := NewMachine(st, nil)

	_, err := m.Start(context.Background(), "64b0c5e2f1a2b3c4d5e6f708", "cand-1")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if !strings.Contains(conflict.Error(), store.StatusCompleted) {
		t.Fatalf("conflict must name the current state: %v", conflict)
	}
}

func TestEndIsIdempotentlyRejected(t *testing.T) {
	st := store.NewMemStore()
	seedSession(t, st, store.StatusInProgress, time.Now().Add(-time.Hour))
	m := NewMachine(st, nil)

	sess, err := m.End(context.Background(), "64b0c5e2f1a2b3c4d5e6f708", "rec-1")
	if err != nil {
		t.Fatalf("first End: %v", err)
	}
	if sess.Status != store.StatusCompleted || sess.EndedAt == nil {
		t.Fatalf("session not completed: %+v", sess)
	}

	_, err = m.End(context.Background(), "64b0c5e2f1a2b3c4d5e6f708", "rec-1")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second End expected ConflictError, got %v", err)
	}
	if !strings.Contains(conflict.Error(), store.StatusCompleted) {
		t.Fatalf("conflict must name completed state: %v", conflict)
	}
}

func TestOwnershipViolationIsForbiddenNotConflict(t *testing.T) {
	st := store.NewMemStore()
	seedSession(t, st, store.StatusScheduled, time.Now().Add(-time.Minute))
	m := NewMachine(st, nil)

	_, err := m.Start(context.Background(), "64b0c5e2f1a2b3c4d5e6f708", "someone-else")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	m := NewMachine(store.NewMemStore(), nil)
	_, err := m.Start(context.Background(), "ffffffffffffffffffffffff", "cand-1")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeSummarizer struct {
	sum Summary
	err error
}

func (f fakeSummarizer) Summarize(ctx context.Context, sessionID string) (Summary, error) {
	return f.sum, f.err
}

func TestAdministrativeEndStoresSummary(t *testing.T) {
	st := store.NewMemStore()
	seedSession(t, st, store.StatusInProgress, time.Now().Add(-time.Hour))
	m := NewMachine(st, fakeSummarizer{sum: Summary{Score: 4.2, Feedback: "solid answers"}})

	sess, err := m.End(context.Background(), "64b0c5e2f1a2b3c4d5e6f708", "cand-1")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if sess.Score == nil || *sess.Score != 4.2 || sess.Feedback != "solid answers" {
		t.Fatalf("summary not stored: %+v", sess)
	}
}

func TestAnalysisFailureDoesNotBlockCompletion(t *testing.T) {
	st := store.NewMemStore()
	seedSession(t, st, store.StatusInProgress, time.Now().Add(-time.Hour))
	m := NewMachine(st, fakeSummarizer{err: errors.New("analysis down")})

	sess, err := m.End(context.Background(), "64b0c5e2f1a2b3c4d5e6f708", "cand-1")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if sess.Status != store.StatusCompleted {
		t.Fatalf("session should complete despite analysis failure: %+v", sess)
	}
}

func TestEndByIntentSetsWrapStageWithoutAnalysis(t *testing.T) {
	st := store.NewMemStore()
	seed := seedSession(t, st, store.StatusInProgress, time.Now().Add(-time.Hour))
	m := NewMachine(st, fakeSummarizer{sum: Summary{Score: 9.9}})

	if err := m.EndByIntent(context.Background(), seed); err != nil {
		t.Fatalf("EndByIntent: %v", err)
	}
	got, err := st.Get(context.Background(), seed.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Stage != "wrap" {
		t.Fatalf("stage mismatch: %q", got.Stage)
	}
	if got.Score != nil {
		t.Fatalf("intent-driven end must not score")
	}
}
