package consensus

import "testing"

type fakeEntry struct{ bit uint }

func (f fakeEntry) HasBit(bit uint) bool { return f.bit == bit }

func TestGetState_DefinedUntilStartHeight(t *testing.T) {
	d := Deployment{StartHeight: 100, TimeoutHeight: 1000, Threshold: 2}
	if s := GetState(d, 50, StateDefined, nil); s != StateDefined {
		t.Errorf("state = %v, want defined", s)
	}
	if s := GetState(d, 100, StateDefined, nil); s != StateStarted {
		t.Errorf("state = %v, want started", s)
	}
}

func TestGetState_LocksInAtThreshold(t *testing.T) {
	d := Deployment{Bit: 1, StartHeight: 0, TimeoutHeight: 1000, Threshold: 2}
	ancestors := []SignalingEntry{fakeEntry{bit: 1}, fakeEntry{bit: 1}, fakeEntry{bit: 0}}
	if s := GetState(d, 10, StateStarted, ancestors); s != StateLockedIn {
		t.Errorf("state = %v, want locked_in", s)
	}
}

func TestGetState_TimesOut(t *testing.T) {
	d := Deployment{Bit: 1, StartHeight: 0, TimeoutHeight: 100, Threshold: 2}
	if s := GetState(d, 100, StateStarted, nil); s != StateFailed {
		t.Errorf("state = %v, want failed", s)
	}
}

func TestGetState_LockedInThenActive(t *testing.T) {
	d := Deployment{}
	if s := GetState(d, 1, StateLockedIn, nil); s != StateActive {
		t.Errorf("state = %v, want active", s)
	}
}

func TestGetState_ActiveIsAbsorbing(t *testing.T) {
	d := Deployment{TimeoutHeight: 0}
	if s := GetState(d, 999999, StateActive, nil); s != StateActive {
		t.Errorf("state = %v, want active to stay active", s)
	}
}

func TestDeploymentState_String(t *testing.T) {
	cases := map[DeploymentState]string{
		StateDefined:  "defined",
		StateStarted:  "started",
		StateLockedIn: "locked_in",
		StateActive:   "active",
		StateFailed:   "failed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
