package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one operator's continuous work episode on one unit at one
// workbench. It is owned exclusively by its workbench supervisor while
// non-terminal; once finalized it is only read.
type Session struct {
	ID      string `json:"id"`
	BenchID string `json:"bench_id"`

	EmployeeID   string `json:"employee_id,omitempty"`
	EmployeeName string `json:"employee_name,omitempty"`

	UnitID      string `json:"unit_id,omitempty"`
	IsComposite bool   `json:"is_composite,omitempty"`

	Stages []Stage `json:"stages"`

	State       State      `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	AbortReason string     `json:"abort_reason,omitempty"`

	// Pauses records InProgress->Paused->InProgress intervals for the
	// passport; an open interval has a zero End.
	Pauses []PauseInterval `json:"pauses,omitempty"`
}

// PauseInterval is one pause episode during a session.
type PauseInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

// New creates a session for the given bench in the Idle state.
func New(benchID string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		BenchID:   benchID,
		State:     StateIdle,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Session) transition(to State) error {
	if s.State.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, s.State)
	}
	if !canTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	return nil
}

// BindOperator authorizes the employee at the bench. Valid from Idle or
// AwaitingOperator. The caller has already resolved the employee against the
// record store.
func (s *Session) BindOperator(employeeID, employeeName string) error {
	if s.State != StateIdle && s.State != StateAwaitingOperator {
		return fmt.Errorf("%w: bind operator in %s", ErrInvalidTransition, s.State)
	}
	if err := s.transition(StateAwaitingUnit); err != nil {
		return err
	}
	s.EmployeeID = employeeID
	s.EmployeeName = employeeName
	return nil
}

// Logout releases the operator binding before a unit is assigned.
func (s *Session) Logout() error {
	if s.State != StateAwaitingUnit {
		return fmt.Errorf("%w: logout in %s", ErrInvalidTransition, s.State)
	}
	if err := s.transition(StateAwaitingOperator); err != nil {
		return err
	}
	s.EmployeeID = ""
	s.EmployeeName = ""
	return nil
}

// BindUnit attaches the unit and moves the session to InProgress. The caller
// has already claimed the unit in the record store; a lost claim never
// reaches this method.
func (s *Session) BindUnit(unitID string, isComposite bool) error {
	if s.State != StateAwaitingUnit {
		return fmt.Errorf("%w: bind unit in %s", ErrInvalidTransition, s.State)
	}
	if err := s.transition(StateInProgress); err != nil {
		return err
	}
	s.UnitID = unitID
	s.IsComposite = isComposite
	return nil
}

// OpenStage returns the currently open stage, or nil.
func (s *Session) OpenStage() *Stage {
	if len(s.Stages) == 0 {
		return nil
	}
	last := &s.Stages[len(s.Stages)-1]
	if last.Open() {
		return last
	}
	return nil
}

// StartStage opens a new named stage. Only one stage may be open at a time.
func (s *Session) StartStage(name string) error {
	if s.State != StateInProgress {
		return fmt.Errorf("%w: start stage in %s", ErrInvalidTransition, s.State)
	}
	if s.OpenStage() != nil {
		return fmt.Errorf("%w: %q", ErrStageOpen, s.OpenStage().Name)
	}
	s.Stages = append(s.Stages, Stage{
		Name:      name,
		StartedAt: time.Now().UTC(),
	})
	return nil
}

// EndStage closes the open stage with the given outcome and the peripheral
// artifacts the supervisor collected for it.
func (s *Session) EndStage(outcome StageOutcome, artifacts Artifacts) error {
	if s.State != StateInProgress {
		return fmt.Errorf("%w: end stage in %s", ErrInvalidTransition, s.State)
	}
	open := s.OpenStage()
	if open == nil {
		return ErrNoOpenStage
	}
	now := time.Now().UTC()
	open.EndedAt = &now
	open.Outcome = outcome
	open.Artifacts = artifacts
	return nil
}

// Pause suspends work without closing the open stage.
func (s *Session) Pause() error {
	if err := s.transition(StatePaused); err != nil {
		return err
	}
	s.Pauses = append(s.Pauses, PauseInterval{Start: time.Now().UTC()})
	return nil
}

// Resume returns a paused session to InProgress.
func (s *Session) Resume() error {
	if err := s.transition(StateInProgress); err != nil {
		return err
	}
	if n := len(s.Pauses); n > 0 && s.Pauses[n-1].End.IsZero() {
		s.Pauses[n-1].End = time.Now().UTC()
	}
	return nil
}

// BeginFinalize moves the session into Finalizing. It fails while a stage is
// still open; evidence assembly happens between BeginFinalize and
// CompleteFinalize.
func (s *Session) BeginFinalize() error {
	if s.State != StateInProgress {
		return fmt.Errorf("%w: finalize in %s", ErrInvalidTransition, s.State)
	}
	if s.OpenStage() != nil {
		return fmt.Errorf("%w: %q", ErrOpenStage, s.OpenStage().Name)
	}
	return s.transition(StateFinalizing)
}

// CompleteFinalize marks the session Finalized after evidence assembly
// succeeded.
func (s *Session) CompleteFinalize() error {
	if err := s.transition(StateFinalized); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.FinalizedAt = &now
	return nil
}

// Abort discards the session from any non-terminal state.
func (s *Session) Abort(reason string) error {
	if err := s.transition(StateAborted); err != nil {
		return err
	}
	s.AbortReason = reason
	return nil
}

// TotalAssemblyTime sums the closed stage durations.
func (s *Session) TotalAssemblyTime() time.Duration {
	var total time.Duration
	for _, stage := range s.Stages {
		total += stage.Duration()
	}
	return total
}
