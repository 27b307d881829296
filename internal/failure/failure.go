// Package failure defines the typed errors returned by every core operation.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so front-ends can react without parsing messages.
type Kind int

const (
	// Internal is an unexpected I/O or programming error.
	Internal Kind = iota
	// Configuration errors need an external fix (missing runtime, bad environment).
	Configuration
	// Precondition errors are checked before any mutation and never corrupt state.
	Precondition
	// Bootstrap errors come from first boots and loader installs; they trigger rollback.
	Bootstrap
	// Launch errors come from background launches that never acknowledged.
	Launch
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Precondition:
		return "precondition"
	case Bootstrap:
		return "bootstrap"
	case Launch:
		return "launch"
	default:
		return "internal"
	}
}

// Error is a classified failure. Hint, when set, is the command that fixes it.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += " " + e.Hint
	}
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Preconditionf builds a precondition failure with a corrective hint.
func Preconditionf(hint, format string, args ...interface{}) *Error {
	return &Error{Kind: Precondition, Message: fmt.Sprintf(format, args...), Hint: hint}
}

// Configurationf builds a configuration failure.
func Configurationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Configuration, Message: fmt.Sprintf(format, args...)}
}

// Bootstrapf wraps the cause of a failed first boot or install.
func Bootstrapf(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: Bootstrap, Message: fmt.Sprintf(format, args...), Err: err}
}

// Launchf wraps the cause of a failed background launch.
func Launchf(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: Launch, Message: fmt.Sprintf(format, args...), Err: err}
}

// Run formats a corrective command hint.
func Run(format string, args ...interface{}) string {
	return "To fix it, run: $ easyservers " + fmt.Sprintf(format, args...)
}

// KindOf returns the kind of the first *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
