package session

import (
	"errors"
	"fmt"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/gate"
)

var (
	// ErrTooEarly means the join arrived before the gate opened. Wrapped by
	// TooEarlyError, which carries the countdown.
	ErrTooEarly = errors.New("appointment not joinable yet")

	// ErrNotParticipant means the user is neither the doctor nor the
	// patient on the appointment.
	ErrNotParticipant = errors.New("not a participant of this appointment")

	// ErrSessionEnded means an operation arrived after Leave.
	ErrSessionEnded = errors.New("session already ended")

	// ErrVideoNotFailed guards Retry: only a failed video connection can be
	// retried.
	ErrVideoNotFailed = errors.New("video connection has not failed")
)

// TooEarlyError is the refusal for a premature join. The embedded decision
// tells the caller how long to show the countdown for.
type TooEarlyError struct {
	Decision gate.Decision
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("appointment joinable in %d minute(s)", e.Decision.WaitMinutes)
}

func (e *TooEarlyError) Unwrap() error { return ErrTooEarly }
