// Package memory maintains the bounded per-session conversation log used
// to build dialogue-engine context. The bound is enforced on every write,
// not by a background sweep, so retained state per session is capped at
// all times.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/interview-voice-lab/internal/logging"
	"github.com/interview-voice-lab/internal/store"
)

// MaxTurns is the retention bound in user/assistant turn pairs. A session
// never holds more than 2*MaxTurns messages.
const MaxTurns = 12

// activeSessionsCap limits ActiveSessions output for operational queries.
const activeSessionsCap = 200

// Memory wraps a MessageStore with the retention policy. State is keyed by
// session id only; concurrent sessions are fully independent.
//
// Append and the prune that follows are a read-modify sequence without a
// cross-operation lock. Turns are driven synchronously by the client, so
// a single writer per session is assumed; concurrent writers on the same
// session are a known limitation, not a supported mode.
type Memory struct {
	msgs store.MessageStore
}

func New(msgs store.MessageStore) *Memory {
	return &Memory{msgs: msgs}
}

// Append persists one message and then prunes the session down to the
// newest 2*MaxTurns messages.
func (m *Memory) Append(ctx context.Context, sessionID, role, text string) error {
	if sessionID == "" {
		return fmt.Errorf("empty session id")
	}
	msg := store.Message{
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.msgs.Append(ctx, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := m.msgs.PruneOldest(ctx, sessionID, 2*MaxTurns); err != nil {
		// The message is persisted; a failed prune only delays the bound
		// until the next successful append.
		logging.Warnw("memory: prune failed", "session.id", sessionID, "err", err)
		return fmt.Errorf("prune: %w", err)
	}
	return nil
}

// Context returns the retained messages oldest-first, optionally prefixed
// with a system instruction, shaped for model consumption.
func (m *Memory) Context(ctx context.Context, sessionID, systemPrompt string) ([]store.Message, error) {
	held, err := m.msgs.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if systemPrompt == "" {
		return held, nil
	}
	out := make([]store.Message, 0, len(held)+1)
	out = append(out, store.Message{SessionID: sessionID, Role: store.RoleSystem, Text: systemPrompt})
	out = append(out, held...)
	return out, nil
}

// Reset deletes every message for the session. Used on session reset and
// cleanup, not on normal turn flow.
func (m *Memory) Reset(ctx context.Context, sessionID string) error {
	if err := m.msgs.DeleteAll(ctx, sessionID); err != nil {
		return fmt.Errorf("reset session %s: %w", sessionID, err)
	}
	logging.Debugw("memory: session reset", "session.id", sessionID)
	return nil
}

// ActiveSessions lists distinct session ids by most recent activity for
// operational visibility, capped at 200.
func (m *Memory) ActiveSessions(ctx context.Context) ([]string, error) {
	return m.msgs.ActiveSessions(ctx, activeSessionsCap)
}
