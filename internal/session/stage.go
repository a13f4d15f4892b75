package session

import "time"

// StageOutcome classifies how a stage ended. Failed and skipped stages keep
// their record; stages are append-only once started.
type StageOutcome string

const (
	OutcomeCompleted StageOutcome = "completed"
	OutcomeFailed    StageOutcome = "failed"
	OutcomeSkipped   StageOutcome = "skipped"
)

// Artifacts holds the peripheral outputs reported for a finished stage. The
// caller is responsible for having driven the hardware; the state machine
// only records what it is told.
type Artifacts struct {
	MediaPath  string `json:"media_path,omitempty"`
	MediaHash  string `json:"media_hash,omitempty"`
	PrintJobID string `json:"print_job_id,omitempty"`
}

// Stage is a named production step within a session.
type Stage struct {
	Name      string       `json:"name"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Outcome   StageOutcome `json:"outcome,omitempty"`
	Artifacts Artifacts    `json:"artifacts"`
}

// Open reports whether the stage has not ended yet.
func (s Stage) Open() bool {
	return s.EndedAt == nil
}

// Duration returns the stage wall-clock duration, zero while open.
func (s Stage) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}
