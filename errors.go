package tablebridge

import (
	"errors"
	"strings"
)

// Phase identifies the step of an invocation in which an error occurred.
type Phase string

const (
	PhaseTable     Phase = "table"     // table construction
	PhaseInit      Phase = "init"      // interpreter start and search path setup
	PhaseLoad      Phase = "load"      // module compile and execution
	PhaseAttribute Phase = "attribute" // attribute resolution
	PhaseMarshal   Phase = "marshal"   // argument conversion
	PhaseCall      Phase = "call"      // the callable raised
	PhaseTransport Phase = "transport" // pipe or protocol failure
)

var (
	// ErrAttributeNotFound is wrapped by attribute-phase errors when the
	// requested name does not exist on the object.
	ErrAttributeNotFound = errors.New("attribute not found")

	// ErrSessionClosed is returned by Session.Do after Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrInterpreterExited is returned for requests issued to, or pending on,
	// an interpreter process that has gone away.
	ErrInterpreterExited = errors.New("interpreter exited")
)

// Error is the error type returned by every bridge operation.
type Error struct {
	Cause  error
	Phase  Phase
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteByte(']')

	if e.Detail != "" {
		b.WriteByte(' ')
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		if e.Detail != "" {
			b.WriteString(": ")
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by phase, so callers can test
// errors.Is(err, &Error{Phase: PhaseLoad}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Phase == e.Phase
}

func newError(phase Phase, detail string, cause error) *Error {
	return &Error{Phase: phase, Detail: detail, Cause: cause}
}

// withPhase tags err with phase unless it already carries one.
func withPhase(phase Phase, detail string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return newError(phase, detail, err)
}

// PhaseOf reports the phase of err, or "" if err was not produced by this package.
func PhaseOf(err error) Phase {
	var be *Error
	if errors.As(err, &be) {
		return be.Phase
	}
	return ""
}
