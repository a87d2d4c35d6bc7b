package domain

import (
	"errors"
	"fmt"
)

// Error classes. Transport maps these to status codes; everything else is wrapped with %w.
var (
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrState        = errors.New("invalid state")
)

var (
	// ErrTestNotFound is returned for unknown mock tests.
	ErrTestNotFound = fmt.Errorf("%w: test not found", ErrNotFound)
	// ErrAttemptNotFound is returned for unknown attempts.
	ErrAttemptNotFound = fmt.Errorf("%w: attempt not found", ErrNotFound)
	// ErrQuestionNotFound is returned when a question id is unknown or outside the test/room.
	ErrQuestionNotFound = fmt.Errorf("%w: question not found", ErrNotFound)
	ErrRoomNotFound     = fmt.Errorf("%w: room not found", ErrNotFound)
	// ErrParticipantNotFound is returned when a user acts on a room they are not part of.
	ErrParticipantNotFound = fmt.Errorf("%w: participant not found", ErrNotFound)
	ErrStudentNotFound     = fmt.Errorf("%w: student not found", ErrNotFound)
	ErrReferralNotFound    = fmt.Errorf("%w: referral not found", ErrNotFound)

	ErrNotAttemptOwner   = fmt.Errorf("%w: attempt belongs to another student", ErrForbidden)
	ErrNotRoomHost       = fmt.Errorf("%w: only the host can do this", ErrForbidden)
	ErrNotParticipant    = fmt.Errorf("%w: you are not a participant of this room", ErrForbidden)
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient room credits", ErrForbidden)
	ErrWrongPassword     = fmt.Errorf("%w: invalid room password", ErrForbidden)
	ErrKicked            = fmt.Errorf("%w: you were removed from this room", ErrForbidden)

	ErrAlreadySubmitted = &StateError{Status: string(AttemptCompleted), Msg: "attempt already submitted"}

	// ErrDuplicate is returned by stores when a unique constraint rejects an insert.
	ErrDuplicate = fmt.Errorf("%w: duplicate record", ErrConflict)
)

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// DetailError carries extra fields for the error envelope.
type DetailError interface {
	error
	Details() map[string]any
}

// StateError rejects an operation because of the current lifecycle state.
type StateError struct {
	Status string
	Msg    string
	Extra  map[string]any
}

func (e *StateError) Error() string { return e.Msg }

func (e *StateError) Unwrap() error { return ErrState }

func (e *StateError) Details() map[string]any {
	out := map[string]any{"status": e.Status}
	for k, v := range e.Extra {
		out[k] = v
	}
	return out
}

// NewStateError builds a StateError for the given current status.
func NewStateError(status, msg string) *StateError {
	return &StateError{Status: status, Msg: msg}
}

// InsufficientQuestionsError reports that the bank cannot fill the requested question count.
type InsufficientQuestionsError struct {
	Available int
	Requested int
}

func (e *InsufficientQuestionsError) Error() string {
	return fmt.Sprintf("only %d questions available, %d requested", e.Available, e.Requested)
}

func (e *InsufficientQuestionsError) Unwrap() error { return ErrValidation }

func (e *InsufficientQuestionsError) Details() map[string]any {
	return map[string]any{"available": e.Available, "requested": e.Requested}
}
