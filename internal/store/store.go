// Package store is the keyed-append-log persistence boundary for the turn
// pipeline. The core depends only on the interfaces here, never on a query
// language: append, ordered query, delete-range, delete-all.
package store

import (
	"context"
	"errors"
	"time"
)

// Message roles. Identity of a message within a session is insertion order.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session statuses.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// ErrNotFound is returned by SessionStore.Get for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Message is one conversational turn half, append-only per session.
type Message struct {
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the persisted interview record. Stage is a free-form marker
// consumed by the turn orchestrator ("wrap" after termination); it is not
// part of the formal status machine.
type Session struct {
	ID          string     `json:"id"`
	CandidateID string     `json:"candidateId"`
	RecruiterID string     `json:"recruiterId,omitempty"`
	Status      string     `json:"status"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Stage       string     `json:"stage,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Feedback    string     `json:"feedback,omitempty"`
}

// MessageStore persists ConversationMessages keyed by session id. All
// ordering is insertion order; implementations must not interleave
// sessions.
type MessageStore interface {
	// Append persists one message.
	Append(ctx context.Context, m Message) error
	// ListBySession returns every retained message for the session,
	// oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]Message, error)
	// PruneOldest deletes all but the newest keep messages for the
	// session, by insertion order.
	PruneOldest(ctx context.Context, sessionID string, keep int) error
	// DeleteAll removes every message for the session.
	DeleteAll(ctx context.Context, sessionID string) error
	// ActiveSessions returns distinct session ids ordered by most recent
	// append, capped at limit.
	ActiveSessions(ctx context.Context, limit int) ([]string, error)
}

// SessionStore persists InterviewSessions.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
}
