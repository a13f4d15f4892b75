package workbench

import (
	"time"

	"benchd/internal/session"
)

// Status is a point-in-time snapshot of the bench for the local API and CLI.
type Status struct {
	BenchID      string        `json:"bench_id"`
	State        session.State `json:"state"`
	SessionID    string        `json:"session_id,omitempty"`
	EmployeeName string        `json:"employee_name,omitempty"`
	UnitID       string        `json:"unit_id,omitempty"`
	OpenStage    string        `json:"open_stage,omitempty"`
	StagesClosed int           `json:"stages_closed"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	Recording    bool          `json:"recording"`
}

// Status reports the supervisor's current view of the bench.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		BenchID: s.cfg.Workbench.BenchID,
		State:   session.StateIdle,
	}
	sess := s.current
	if sess == nil {
		return st
	}

	st.State = sess.State
	st.SessionID = sess.ID
	st.EmployeeName = sess.EmployeeName
	st.UnitID = sess.UnitID
	startedAt := sess.CreatedAt
	st.StartedAt = &startedAt
	st.Recording = s.recording != nil

	for _, stage := range sess.Stages {
		if stage.Open() {
			st.OpenStage = stage.Name
		} else {
			st.StagesClosed++
		}
	}
	return st
}
