package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-process implementation of both store interfaces.
// It backs tests and single-node deployments without a database. Each
// instance is fully isolated; nothing is package-global.
type MemStore struct {
	mu       sync.Mutex
	seq      int64
	messages map[string][]memMessage
	lastSeq  map[string]int64
	sessions map[string]Session
}

type memMessage struct {
	seq int64
	msg Message
}

func NewMemStore() *MemStore {
	return &MemStore{
		messages: make(map[string][]memMessage),
		lastSeq:  make(map[string]int64),
		sessions: make(map[string]Session),
	}
}

func (s *MemStore) Append(ctx context.Context, m Message) error {
	if m.SessionID == "" {
		return fmt.Errorf("empty session id")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.messages[m.SessionID] = append(s.messages[m.SessionID], memMessage{seq: s.seq, msg: m})
	s.lastSeq[m.SessionID] = s.seq
	return nil
}

func (s *MemStore) ListBySession(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.messages[sessionID]
	out := make([]Message, 0, len(held))
	for _, mm := range held {
		out = append(out, mm.msg)
	}
	return out, nil
}

func (s *MemStore) PruneOldest(ctx context.Context, sessionID string, keep int) error {
	if keep < 0 {
		return fmt.Errorf("negative keep %d", keep)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.messages[sessionID]
	if len(held) <= keep {
		return nil
	}
	trimmed := make([]memMessage, keep)
	copy(trimmed, held[len(held)-keep:])
	s.messages[sessionID] = trimmed
	return nil
}

func (s *MemStore) DeleteAll(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, sessionID)
	delete(s.lastSeq, sessionID)
	return nil
}

func (s *MemStore) ActiveSessions(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type act struct {
		id  string
		seq int64
	}
	acts := make([]act, 0, len(s.lastSeq))
	for id, seq := range s.lastSeq {
		acts = append(acts, act{id: id, seq: seq})
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].seq > acts[j].seq })
	if limit > 0 && len(acts) > limit {
		acts = acts[:limit]
	}
	out := make([]string, 0, len(acts))
	for _, a := range acts {
		out = append(out, a.id)
	}
	return out, nil
}

func (s *MemStore) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("invalid session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := sess
	return &out, nil
}

func (s *MemStore) Update(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("invalid session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	s.sessions[sess.ID] = *sess
	return nil
}
