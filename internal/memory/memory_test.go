package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/interview-voice-lab/internal/store"
)

func TestAppendEnforcesBoundOnEveryWrite(t *testing.T) {
	ctx := context.Background()
	m := New(store.NewMemStore())

	const extra = 5
	total := 2*MaxTurns + extra
	for i := 0; i < total; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		if err := m.Append(ctx, "sess-a", role, fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	held, err := m.Context(ctx, "sess-a", "")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if len(held) != 2*MaxTurns {
		t.Fatalf("retained count mismatch: want=%d got=%d", 2*MaxTurns, len(held))
	}
	// the `extra` oldest messages must be the ones gone
	if held[0].Text != fmt.Sprintf("msg-%d", extra) {
		t.Fatalf("oldest retained mismatch: want=msg-%d got=%s", extra, held[0].Text)
	}
	if held[len(held)-1].Text != fmt.Sprintf("msg-%d", total-1) {
		t.Fatalf("newest retained mismatch: got=%s", held[len(held)-1].Text)
	}
}

func TestContextBelowThresholdKeepsEverythingInOrder(t *testing.T) {
	ctx := context.Background()
	m := New(store.NewMemStore())

	for i := 0; i < MaxTurns; i++ {
		if err := m.Append(ctx, "sess-b", store.RoleUser, fmt.Sprintf("q-%d", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := m.Append(ctx, "sess-b", store.RoleAssistant, fmt.Sprintf("a-%d", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	held, err := m.Context(ctx, "sess-b", "")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if len(held) != 2*MaxTurns {
		t.Fatalf("message count mismatch: want=%d got=%d", 2*MaxTurns, len(held))
	}
	for i, msg := range held {
		var want string
		if i%2 == 0 {
			want = fmt.Sprintf("q-%d", i/2)
		} else {
			want = fmt.Sprintf("a-%d", i/2)
		}
		if msg.Text != want {
			t.Fatalf("message %d out of order: want=%s got=%s", i, want, msg.Text)
		}
		if i > 0 && msg.CreatedAt.Before(held[i-1].CreatedAt) {
			t.Fatalf("message %d created before its predecessor", i)
		}
	}
}

func TestContextSystemPromptPrefix(t *testing.T) {
	ctx := context.Background()
	m := New(store.NewMemStore())
	if err := m.Append(ctx, "sess-c", store.RoleUser, "hello"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	held, err := m.Context(ctx, "sess-c", "you are the interviewer")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if len(held) != 2 {
		t.Fatalf("want 2 messages got %d", len(held))
	}
	if held[0].Role != store.RoleSystem || held[0].Text != "you are the interviewer" {
		t.Fatalf("system prefix missing: %+v", held[0])
	}
	if held[1].Text != "hello" {
		t.Fatalf("user message displaced: %+v", held[1])
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := New(store.NewMemStore())
	if err := m.Append(ctx, "sess-x", store.RoleUser, "x"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Append(ctx, "sess-y", store.RoleUser, "y"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Reset(ctx, "sess-x"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	heldX, _ := m.Context(ctx, "sess-x", "")
	heldY, _ := m.Context(ctx, "sess-y", "")
	if len(heldX) != 0 {
		t.Fatalf("sess-x not cleared: %d messages", len(heldX))
	}
	if len(heldY) != 1 || heldY[0].Text != "y" {
		t.Fatalf("sess-y leaked or lost state: %+v", heldY)
	}
}

func TestActiveSessionsOrderAndCap(t *testing.T) {
	ctx := context.Background()
	m := New(store.NewMemStore())
	for i := 0; i < 3; i++ {
		if err := m.Append(ctx, fmt.Sprintf("sess-%d", i), store.RoleUser, "hi"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// touch sess-0 again so it becomes the most recent
	if err := m.Append(ctx, "sess-0", store.RoleAssistant, "reply"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	ids, err := m.ActiveSessions(ctx)
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("want 3 sessions got %d", len(ids))
	}
	if ids[0] != "sess-0" {
		t.Fatalf("most recent session mismatch: want=sess-0 got=%s", ids[0])
	}
}
