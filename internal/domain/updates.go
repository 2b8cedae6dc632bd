package domain

import "time"

// SessionUpdate is the delta applied by a lifecycle transition. Nil fields
// are left untouched by the store.
type SessionUpdate struct {
	State                SessionState
	CurrentQuestionIndex *int
	StartedAt            *time.Time
	EndedAt              *time.Time
}

// ParticipantFlags is a partial update of a participant's status flags.
// Nil fields are left untouched.
type ParticipantFlags struct {
	IsActive     *bool
	IsEliminated *bool
	IsSpectator  *bool
	IsBanned     *bool
}
