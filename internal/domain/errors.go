package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a session is absent from both stores.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAllocationExhausted means the join-code allocator ran out of retries.
	// It is fatal for the create operation and must never degrade to a
	// colliding code.
	ErrAllocationExhausted = errors.New("join code allocation exhausted")
	// ErrAnswerAlreadySubmitted rejects a second answer for the same question.
	ErrAnswerAlreadySubmitted = errors.New("answer already submitted for this question")
	// ErrStateConflict is the store-level signal that a conditional update
	// lost a race; callers re-read and report the post-transition state.
	ErrStateConflict = errors.New("session state changed concurrently")
	// ErrInvalidState is the sentinel behind InvalidStateError.
	ErrInvalidState = errors.New("invalid session state")
	// ErrValidation is the sentinel behind ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInappropriate flags content-filter rejections, distinct from
	// length/format validation.
	ErrInappropriate = errors.New("inappropriate content")
	// ErrRateLimited is the sentinel behind RateLimitedError.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidJoinCode is the sentinel behind JoinCodeError.
	ErrInvalidJoinCode = errors.New("invalid join code")
	// ErrSessionEnded rejects joins to a session that already finished.
	ErrSessionEnded = errors.New("quiz session has ended")
	// ErrSpectator rejects answer submissions from spectators.
	ErrSpectator = errors.New("spectators cannot submit answers")
	// ErrParticipantBanned rejects actions from banned participants.
	ErrParticipantBanned = errors.New("participant is banned")
)

// InvalidStateError reports an illegal lifecycle transition, naming both the
// offending and the required state.
type InvalidStateError struct {
	Op       string
	Current  SessionState
	Required SessionState
}

func (e *InvalidStateError) Error() string {
	if e.Current == StateEnded {
		return "Quiz has already ended."
	}
	return fmt.Sprintf("Cannot %s quiz from %s state (requires %s)", e.Op, e.Current, e.Required)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// RateLimitedError carries the remaining window so callers can surface a
// Retry-After hint.
type RateLimitedError struct {
	Action            string
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %ds", e.Action, e.RetryAfterSeconds)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// ValidationError reports malformed input on a named field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// JoinCodeError distinguishes malformed codes from well-formed but unknown
// ones; both echo the offending code for debuggability.
type JoinCodeError struct {
	Code      string
	Malformed bool
}

func (e *JoinCodeError) Error() string {
	if e.Malformed {
		return fmt.Sprintf("join code %q is not a valid 6-character code", e.Code)
	}
	return fmt.Sprintf("join code %q not found", e.Code)
}

func (e *JoinCodeError) Unwrap() error { return ErrInvalidJoinCode }
