package model

import "testing"

func TestCycleState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  CycleState
		to    CycleState
		valid bool
	}{
		// Valid transitions
		{CycleStateIdle, CycleStateSnapshotPending, true},
		{CycleStateSnapshotPending, CycleStateNewTick, true},
		{CycleStateSnapshotPending, CycleStateIdle, true},
		{CycleStateSnapshotPending, CycleStateErrorLogged, true},
		{CycleStateNewTick, CycleStatePublished, true},
		{CycleStateNewTick, CycleStateErrorLogged, true},
		{CycleStatePublished, CycleStateIdle, true},
		{CycleStateErrorLogged, CycleStateIdle, true},

		// Invalid transitions
		{CycleStateIdle, CycleStatePublished, false},
		{CycleStateIdle, CycleStateNewTick, false},
		{CycleStateSnapshotPending, CycleStatePublished, false},
		{CycleStatePublished, CycleStateNewTick, false},
		{CycleStateErrorLogged, CycleStatePublished, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestCycleState_NoTerminalState(t *testing.T) {
	for state := range ValidCycleTransitions {
		if len(ValidCycleTransitions[state]) == 0 {
			t.Errorf("state %s has no outgoing transitions", state)
		}
	}
}
