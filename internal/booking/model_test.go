package booking

import "testing"

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from, to ReservationState
		ok       bool
	}{
		{StateHeld, StateVerified, true},
		{StateHeld, StateExpired, true},
		{StateHeld, StateFailed, true},
		{StateHeld, StateCommitted, false}, // must pass through verified
		{StateVerified, StateCommitted, true},
		{StateVerified, StateExpired, true},
		{StateVerified, StateHeld, false}, // no backward moves
		{StateVerified, StateFailed, false},
		{StateCommitted, StateExpired, false}, // terminal
		{StateCommitted, StateHeld, false},
		{StateExpired, StateHeld, false},
		{StateFailed, StateVerified, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestLiveStates(t *testing.T) {
	live := map[ReservationState]bool{
		StateHeld:      true,
		StateVerified:  true,
		StateCommitted: false,
		StateExpired:   false,
		StateFailed:    false,
	}
	for state, want := range live {
		if state.Live() != want {
			t.Errorf("%s.Live() = %v, want %v", state, state.Live(), want)
		}
	}
}
