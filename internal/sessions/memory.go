// Package sessions implements the process-local Session Store (§4.3):
// get-or-create, append, and field-level mutation of conversation state,
// plus a per-session lock so concurrent chat turns for one session never
// interleave.
package sessions

import (
	"sync"
	"time"

	"github.com/utjfc/reg-agent/pkg/models"
)

// Store is the session store contract. All methods are safe for concurrent
// use across different session IDs; callers are responsible for holding a
// Locker lock around a single session's read-modify-write sequence within
// one chat turn.
type Store interface {
	GetOrCreate(id string) *models.Session
	Get(id string) (*models.Session, bool)
	Append(id string, turn models.Turn)
	SetAgent(id string, name models.AgentName)
	SetStep(id string, step *int)
	InjectMetadata(id string, fields map[string]string)
	Clear(id string)
}

// MemoryStore is an in-process, map-backed Store. It never persists to
// disk; a process restart loses all sessions, which is acceptable per the
// spec's single-process Non-goals.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

// GetOrCreate returns the session with the given ID, creating an empty one
// (agent=orchestrator, step=nil) if it doesn't exist yet. The returned
// session is a clone; mutate it through the other Store methods, not by
// editing the returned pointer's fields.
func (s *MemoryStore) GetOrCreate(id string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		now := time.Now()
		session = &models.Session{
			ID:        id,
			Agent:     models.AgentOrchestrator,
			Turns:     []models.Turn{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.sessions[id] = session
	}
	return session.Clone()
}

// Get returns the session if it exists, without creating it.
func (s *MemoryStore) Get(id string) (*models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

// Append adds turn to the session's history. Turns are append-only; the
// only permitted revision is the caller re-appending a corrected turn after
// a tool self-correct round (§4.1), which still goes through Append.
func (s *MemoryStore) Append(id string, turn models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.mustGet(id)
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	session.Turns = append(session.Turns, turn)
	session.UpdatedAt = time.Now()
}

// SetAgent sets which agent is active for the session.
func (s *MemoryStore) SetAgent(id string, name models.AgentName) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.mustGet(id)
	session.Agent = name
	session.UpdatedAt = time.Now()
}

// SetStep sets the session's current step pointer. A nil step means the
// conversation is at a terminal point and the next message re-enters
// through the orchestrator/request router.
func (s *MemoryStore) SetStep(id string, step *int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.mustGet(id)
	if step == nil {
		session.Step = nil
	} else {
		v := *step
		session.Step = &v
	}
	session.UpdatedAt = time.Now()
}

// InjectMetadata merges fields into the session's metadata map (e.g. the
// team/age_group/season parsed from a registration code, §4.4).
func (s *MemoryStore) InjectMetadata(id string, fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.mustGet(id)
	if session.Metadata == nil {
		session.Metadata = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		session.Metadata[k] = v
	}
	session.UpdatedAt = time.Now()
}

// Clear empties the named session back to its initial state, per the
// chat API's separate clearing endpoint (§4.9).
func (s *MemoryStore) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}

// mustGet returns the session for id, creating it if absent. Caller must
// hold s.mu.
func (s *MemoryStore) mustGet(id string) *models.Session {
	session, ok := s.sessions[id]
	if !ok {
		now := time.Now()
		session = &models.Session{
			ID:        id,
			Agent:     models.AgentOrchestrator,
			Turns:     []models.Turn{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.sessions[id] = session
	}
	return session
}
