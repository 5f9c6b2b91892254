// Package session defines the conversational container a sequence of Runs
// belongs to. A Session groups related Runs (run.Context.SessionID) across
// restore/resume boundaries; its lifecycle is explicit and independent of
// any single Run's lifecycle, since a Session outlives any Checkpoint.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/agentkit/agentrt/run"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	// StatusActive indicates the session accepts new runs.
	StatusActive Status = "active"
	// StatusEnded indicates the session is terminal; new runs must not
	// start under it.
	StatusEnded Status = "ended"
)

// Session captures session lifecycle state. IDs are caller-provided and
// stable, typically owned by the host application (e.g. a chat thread id).
type Session struct {
	ID        string
	Status    Status
	CreatedAt time.Time
	EndedAt   *time.Time
}

var (
	// ErrNotFound indicates a session does not exist in the store.
	ErrNotFound = errors.New("session: not found")
	// ErrEnded indicates a session exists but is terminal.
	ErrEnded = errors.New("session: ended")
)

// Store persists Session lifecycle state and per-Run metadata
// (run.Record) grouped under a session. Implementations surface failures
// as errors rather than swallow them. The Runner itself ignores UpsertRun
// errors, so a session-store failure never fails a Run.
type Store interface {
	// Create creates (or, if already active, returns) a session.
	// Returns ErrEnded if the session exists but is terminal.
	Create(ctx context.Context, sessionID string, createdAt time.Time) (Session, error)

	// Load loads an existing session. Returns ErrNotFound if missing.
	Load(ctx context.Context, sessionID string) (Session, error)

	// End ends a session and returns its terminal state. Idempotent.
	End(ctx context.Context, sessionID string, endedAt time.Time) (Session, error)

	// UpsertRun inserts or updates a Run's lifecycle record.
	UpsertRun(ctx context.Context, rec run.Record) error

	// LoadRun loads a Run's lifecycle record by RunID.
	LoadRun(ctx context.Context, runID string) (run.Record, error)

	// ListRuns lists runs belonging to sessionID, optionally filtered to
	// the given statuses (all statuses when empty).
	ListRuns(ctx context.Context, sessionID string, statuses []run.Status) ([]run.Record, error)
}

// MemoryStore is an in-process reference Store implementation, the
// in-memory analog of checkpoint.MemoryStorage, suitable for tests and
// single-process hosts.
type MemoryStore struct {
	sessions map[string]Session
	runs     map[string]run.Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session), runs: make(map[string]run.Record)}
}

func (s *MemoryStore) Create(ctx context.Context, sessionID string, createdAt time.Time) (Session, error) {
	if existing, ok := s.sessions[sessionID]; ok {
		if existing.Status == StatusEnded {
			return Session{}, ErrEnded
		}
		return existing, nil
	}
	sess := Session{ID: sessionID, Status: StatusActive, CreatedAt: createdAt}
	s.sessions[sessionID] = sess
	return sess, nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) End(ctx context.Context, sessionID string, endedAt time.Time) (Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if sess.Status == StatusEnded {
		return sess, nil
	}
	sess.Status = StatusEnded
	ended := endedAt
	sess.EndedAt = &ended
	s.sessions[sessionID] = sess
	return sess, nil
}

func (s *MemoryStore) UpsertRun(ctx context.Context, rec run.Record) error {
	s.runs[rec.RunID] = rec
	return nil
}

func (s *MemoryStore) LoadRun(ctx context.Context, runID string) (run.Record, error) {
	rec, ok := s.runs[runID]
	if !ok {
		return run.Record{}, errors.New("session: run not found")
	}
	return rec, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, sessionID string, statuses []run.Status) ([]run.Record, error) {
	var allowed map[run.Status]bool
	if len(statuses) > 0 {
		allowed = make(map[run.Status]bool, len(statuses))
		for _, st := range statuses {
			allowed[st] = true
		}
	}
	var out []run.Record
	for _, rec := range s.runs {
		if rec.SessionID != sessionID {
			continue
		}
		if allowed != nil && !allowed[rec.Status] {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
