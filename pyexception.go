package tablebridge

import (
	"fmt"
	"strings"
)

// PythonException represents an exception raised in the interpreter process.
// It captures the exception type, message, and full traceback for debugging.
type PythonException struct {
	// Exception is the exception class name (e.g., "ValueError", "KeyError").
	Exception string `json:"exception" msgpack:"exception"`

	// Message is the exception message/description.
	Message string `json:"message" msgpack:"message"`

	// Traceback is the full Python traceback string.
	Traceback string `json:"traceback" msgpack:"traceback"`

	// Cause is the exception's __cause__ (or __context__), if any.
	Cause *PythonException `json:"cause,omitempty" msgpack:"cause,omitempty"`

	// ExceptionArgs holds the exception's args tuple. Values that are not
	// plain scalars arrive as their repr.
	ExceptionArgs []interface{} `json:"args,omitempty" msgpack:"args,omitempty"`
}

// ToString formats the exception with its traceback, followed by each cause.
func (e *PythonException) ToString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n%s", e.Exception, e.Message, e.Traceback)
	for c := e.Cause; c != nil; c = c.Cause {
		fmt.Fprintf(&b, "\nCaused by: %s: %s\n%s", c.Exception, c.Message, c.Traceback)
	}
	return b.String()
}

// Error implements the error interface with a one-line summary.
func (e *PythonException) Error() string {
	return fmt.Sprintf("%s: %s", e.Exception, e.Message)
}
