package photo

import (
	"sync"
	"time"

	"github.com/utjfc/reg-agent/pkg/models"
)

// Store tracks the in-flight and most-recently-finished upload job per
// session (§4.3, §4.8 poll). Guarded by a single coarse lock, matching
// §5's "upload-status store... guarded by one coarse lock".
type Store struct {
	mu   sync.Mutex
	jobs map[string]*models.UploadJob
}

// NewStore returns an empty upload-job Store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*models.UploadJob)}
}

// Start creates a new incomplete job for sessionID, superseding any
// previous job for the same session (§3 "a second upload for the same
// session supersedes the first"). It returns the generation number the
// worker must present back to Finish/Fail for its write to take effect.
func (s *Store) Start(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.jobs[sessionID]
	generation := 1
	if prev != nil {
		generation = prev.Generation() + 1
	}
	job := &models.UploadJob{SessionID: sessionID, UpdatedAt: time.Now()}
	job.SetGeneration(generation)
	s.jobs[sessionID] = job
	return generation
}

// Finish records a successful upload outcome for sessionID, unless a later
// Start has already superseded this generation.
func (s *Store) Finish(sessionID string, generation int, response string, agent models.AgentName, step *int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[sessionID]
	if !ok || job.Generation() != generation {
		return
	}
	job.Complete = true
	job.Error = false
	job.Response = response
	job.AgentName = agent
	job.Step = step
	job.UpdatedAt = time.Now()
}

// Fail records a failed/rejected upload outcome for sessionID, unless a
// later Start has already superseded this generation.
func (s *Store) Fail(sessionID string, generation int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[sessionID]
	if !ok || job.Generation() != generation {
		return
	}
	job.Complete = true
	job.Error = true
	job.Response = reason
	job.UpdatedAt = time.Now()
}

// Poll returns the current job status for sessionID (§4.8 poll).
func (s *Store) Poll(sessionID string) (models.UploadJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[sessionID]
	if !ok {
		return models.UploadJob{}, false
	}
	return *job, true
}
