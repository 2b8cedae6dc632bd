package domain

// SessionState is the lifecycle state of a live session.
type SessionState string

const (
	StateLobby          SessionState = "LOBBY"
	StateActiveQuestion SessionState = "ACTIVE_QUESTION"
	StateReveal         SessionState = "REVEAL"
	StateEnded          SessionState = "ENDED"
)

// transitions is the closed set of legal lifecycle edges. ENDED is terminal
// and reachable from every other state.
var transitions = map[SessionState][]SessionState{
	StateLobby:          {StateActiveQuestion, StateEnded},
	StateActiveQuestion: {StateReveal, StateEnded},
	StateReveal:         {StateActiveQuestion, StateEnded},
	StateEnded:          {},
}

// Valid reports whether s is one of the known lifecycle states.
func (s SessionState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the edge s -> next is in the lifecycle table.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateEnded
}
