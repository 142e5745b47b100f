package commstate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the actor is not a workspace member.
	ErrUnauthorized = errors.New("commstate: unauthorized")

	// ErrInvalidTransition is returned for a state change outside the
	// transition table. The concrete error is a *TransitionError.
	ErrInvalidTransition = errors.New("commstate: invalid transition")

	// ErrPersistence is returned when the mode row could not be read or written.
	ErrPersistence = errors.New("commstate: persistence failure")

	// ErrNotPaused is returned when acknowledging a workspace that is not paused.
	ErrNotPaused = errors.New("commstate: workspace is not paused")
)

// TransitionError names the rejected state pair.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("commstate: invalid transition %q -> %q", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// rejectionReason maps an error to a metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}
