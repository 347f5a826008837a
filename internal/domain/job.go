package domain

import "time"

// JobState enumerates the generation lifecycle states.
type JobState string

const (
	JobStateQueued          JobState = "queued"
	JobStateGeneratingText  JobState = "generating_text"
	JobStateGeneratingAudio JobState = "generating_audio"
	JobStateReady           JobState = "ready"
	JobStateReadyNoAudio    JobState = "ready_no_audio"
	JobStateFailed          JobState = "failed"
	JobStateCancelled       JobState = "cancelled"
)

// Terminal reports whether the state permits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateReady, JobStateReadyNoAudio, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// stateRank orders states so readers can assert monotonic progression.
var stateRank = map[JobState]int{
	JobStateQueued:          0,
	JobStateGeneratingText:  1,
	JobStateGeneratingAudio: 2,
	JobStateReady:           3,
	JobStateReadyNoAudio:    3,
	JobStateFailed:          3,
	JobStateCancelled:       3,
}

// Rank returns the position of the state in the machine ordering.
func (s JobState) Rank() int {
	return stateRank[s]
}

// Progress maps a state onto a coarse percentage for polling clients.
func (s JobState) Progress() int {
	switch s {
	case JobStateQueued:
		return 0
	case JobStateGeneratingText:
		return 40
	case JobStateGeneratingAudio:
		return 80
	case JobStateReady, JobStateReadyNoAudio:
		return 100
	default:
		return 0
	}
}

// Job is the mutable record of one in-flight or completed generation. It is
// created at submission and mutated only by the background stage runner.
type Job struct {
	ID          string
	CallerID    string
	Fingerprint Fingerprint
	Request     GenerationRequest
	State       JobState
	Provider    string
	Artifact    *Artifact
	Error       string
	StageTimes  map[JobState]time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobStatusView is the cheap read returned to polling callers.
type JobStatusView struct {
	JobID           string    `json:"job_id"`
	State           JobState  `json:"state"`
	ProgressPercent int       `json:"progress_percent"`
	Provider        string    `json:"provider,omitempty"`
	Artifact        *Artifact `json:"artifact,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
