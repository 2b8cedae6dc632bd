package domain

import "testing"

func TestLifecycleTable(t *testing.T) {
	legal := []struct {
		from, to SessionState
	}{
		{StateLobby, StateActiveQuestion},
		{StateLobby, StateEnded},
		{StateActiveQuestion, StateReveal},
		{StateActiveQuestion, StateEnded},
		{StateReveal, StateActiveQuestion},
		{StateReveal, StateEnded},
	}
	for _, edge := range legal {
		if !edge.from.CanTransitionTo(edge.to) {
			t.Errorf("expected %s -> %s to be legal", edge.from, edge.to)
		}
	}

	illegal := []struct {
		from, to SessionState
	}{
		{StateActiveQuestion, StateLobby},
		{StateReveal, StateLobby},
		{StateEnded, StateLobby},
		{StateEnded, StateActiveQuestion},
		{StateEnded, StateReveal},
		{StateEnded, StateEnded},
		{StateLobby, StateReveal},
	}
	for _, edge := range illegal {
		if edge.from.CanTransitionTo(edge.to) {
			t.Errorf("expected %s -> %s to be rejected", edge.from, edge.to)
		}
	}
}

func TestEndedIsTerminal(t *testing.T) {
	if !StateEnded.Terminal() {
		t.Fatal("ENDED must be terminal")
	}
	for _, s := range []SessionState{StateLobby, StateActiveQuestion, StateReveal} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestInvalidStateErrorMessages(t *testing.T) {
	err := &InvalidStateError{Op: "start", Current: StateActiveQuestion, Required: StateLobby}
	if got := err.Error(); got != "Cannot start quiz from ACTIVE_QUESTION state (requires LOBBY)" {
		t.Fatalf("unexpected message: %q", got)
	}

	ended := &InvalidStateError{Op: "end", Current: StateEnded}
	if got := ended.Error(); got != "Quiz has already ended." {
		t.Fatalf("unexpected terminal message: %q", got)
	}
}
