package models

import "time"

// UploadJob tracks one in-flight (or most-recently-finished) photo upload
// for a session (§3 Upload job, §4.8). Keyed by session ID; a second
// upload for the same session supersedes the first by overwriting the
// record the earlier worker writes to.
type UploadJob struct {
	SessionID string    `json:"session_id"`
	Complete  bool      `json:"complete"`
	Error     bool      `json:"error,omitempty"`
	Response  string    `json:"response,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	// AgentName/Step are carried through so the poll response can echo
	// last_agent/routine_number per §6.
	AgentName AgentName `json:"last_agent,omitempty"`
	Step      *int      `json:"routine_number,omitempty"`

	generation int
}

// SetGeneration stamps the job with the generation number its owning
// worker must present back to overwrite it. Supersession is detected by
// comparing generations, not by the job's presence/absence.
func (j *UploadJob) SetGeneration(n int) { j.generation = n }

// Generation returns the job's current generation number.
func (j *UploadJob) Generation() int { return j.generation }
