package session

import "errors"

var (
	// ErrInvalidTransition reports an operation issued in a state that does
	// not permit it. Sequencing errors are never retried automatically.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrTerminal reports an operation on a finalized or aborted session.
	ErrTerminal = errors.New("session is terminal")

	// ErrStageOpen reports an attempt to start a stage while another stage
	// of the same session is still open.
	ErrStageOpen = errors.New("a stage is already open")

	// ErrNoOpenStage reports an end-stage or finalize call with no open stage
	// where one was required.
	ErrNoOpenStage = errors.New("no open stage")

	// ErrOpenStage reports a finalize call while a stage is still open.
	ErrOpenStage = errors.New("session has an open stage")
)
