package workbench

import "errors"

var (
	// ErrSessionAlreadyActive reports a second session start while one is
	// still live at this bench.
	ErrSessionAlreadyActive = errors.New("a session is already active at this bench")

	// ErrNoSession reports a session command with no active session.
	ErrNoSession = errors.New("no active session at this bench")

	// ErrUnknownEmployee reports an RFID card absent from the registry.
	ErrUnknownEmployee = errors.New("employee card not registered")

	// ErrUnknownUnit reports a unit id absent from the registry.
	ErrUnknownUnit = errors.New("unit not registered")
)
