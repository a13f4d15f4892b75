package session

// State represents the lifecycle of an assembly session.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingOperator State = "awaiting_operator"
	StateAwaitingUnit     State = "awaiting_unit"
	StateInProgress       State = "in_progress"
	StatePaused           State = "paused"
	StateFinalizing       State = "finalizing"
	StateFinalized        State = "finalized"
	StateAborted          State = "aborted"
)

// stateTransitions is the allowed transition map. A session only ever moves
// forward, with the single exception of the InProgress/Paused toggle.
// Aborted is reachable from every non-terminal state.
var stateTransitions = map[State][]State{
	StateIdle:             {StateAwaitingOperator, StateAwaitingUnit, StateAborted},
	StateAwaitingOperator: {StateAwaitingUnit, StateAborted},
	StateAwaitingUnit:     {StateInProgress, StateAwaitingOperator, StateAborted},
	StateInProgress:       {StatePaused, StateFinalizing, StateAborted},
	StatePaused:           {StateInProgress, StateAborted},
	StateFinalizing:       {StateFinalized, StateAborted},
	StateFinalized:        {},
	StateAborted:          {},
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateAborted
}

func canTransition(from, to State) bool {
	for _, allowed := range stateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
