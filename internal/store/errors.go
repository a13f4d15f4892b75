package store

import "errors"

var (
	// ErrUnitBusy reports a claim on a unit another session already holds.
	ErrUnitBusy = errors.New("unit is held by another session")

	// ErrUnitFinalized reports a claim on a unit whose passport is already
	// frozen.
	ErrUnitFinalized = errors.New("unit is already finalized")

	// ErrDuplicateEvidence reports a second evidence insert for the same
	// session.
	ErrDuplicateEvidence = errors.New("evidence record already exists for session")
)
