package model

// CycleState is the state of the poll loop within one cycle.
type CycleState string

const (
	CycleStateIdle            CycleState = "IDLE"
	CycleStateSnapshotPending CycleState = "SNAPSHOT_PENDING"
	CycleStateNewTick         CycleState = "NEW_TICK_DETECTED"
	CycleStatePublished       CycleState = "PUBLISHED"
	CycleStateErrorLogged     CycleState = "ERROR_LOGGED"
)

// String returns the string representation of the cycle state.
func (s CycleState) String() string {
	return string(s)
}

// ValidCycleTransitions defines the allowed poll loop transitions.
// Every state eventually returns to IDLE; there is no terminal state.
var ValidCycleTransitions = map[CycleState][]CycleState{
	CycleStateIdle:            {CycleStateSnapshotPending},
	CycleStateSnapshotPending: {CycleStateNewTick, CycleStateIdle, CycleStateErrorLogged},
	CycleStateNewTick:         {CycleStatePublished, CycleStateErrorLogged},
	CycleStatePublished:       {CycleStateIdle},
	CycleStateErrorLogged:     {CycleStateIdle},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s CycleState) CanTransitionTo(next CycleState) bool {
	for _, allowed := range ValidCycleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outcome summarizes what a single poll cycle did.
type Outcome string

const (
	OutcomeNoData    Outcome = "no_data"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
)
