package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements MessageStore and SessionStore on Postgres via pgx.
// Message identity is the bigserial id, which preserves insertion order
// per session regardless of clock skew on created_at.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) Append(ctx context.Context, m Message) error {
	if m.SessionID == "" {
		return fmt.Errorf("empty session id")
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_messages (session_id, role, body, created_at) VALUES ($1, $2, $3, $4)`,
		m.SessionID, m.Role, m.Text, created)
	return err
}

func (s *PGStore) ListBySession(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, role, body, created_at FROM conversation_messages WHERE session_id = $1 ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.SessionID, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGStore) PruneOldest(ctx context.Context, sessionID string, keep int) error {
	if keep < 0 {
		return fmt.Errorf("negative keep %d", keep)
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_messages
		 WHERE session_id = $1
		   AND id NOT IN (
		     SELECT id FROM conversation_messages WHERE session_id = $1 ORDER BY id DESC LIMIT $2
		   )`,
		sessionID, keep)
	return err
}

func (s *PGStore) DeleteAll(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_messages WHERE session_id = $1`, sessionID)
	return err
}

func (s *PGStore) ActiveSessions(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id FROM conversation_messages GROUP BY session_id ORDER BY max(id) DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("invalid session")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interview_sessions (id, candidate_id, recruiter_id, status, scheduled_at, started_at, ended_at, stage, score, feedback)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)`,
		sess.ID, sess.CandidateID, sess.RecruiterID, sess.Status, sess.ScheduledAt,
		sess.StartedAt, sess.EndedAt, sess.Stage, sess.Score, sess.Feedback)
	return err
}

func (s *PGStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, candidate_id, COALESCE(recruiter_id, ''), status, scheduled_at, started_at, ended_at, stage, score, feedback
		 FROM interview_sessions WHERE id = $1`, id)
	var sess Session
	err := row.Scan(&sess.ID, &sess.CandidateID, &sess.RecruiterID, &sess.Status,
		&sess.ScheduledAt, &sess.StartedAt, &sess.EndedAt, &sess.Stage, &sess.Score, &sess.Feedback)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PGStore) Update(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("invalid session")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE interview_sessions
		 SET status = $2, started_at = $3, ended_at = $4, stage = $5, score = $6, feedback = $7
		 WHERE id = $1`,
		sess.ID, sess.Status, sess.StartedAt, sess.EndedAt, sess.Stage, sess.Score, sess.Feedback)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
