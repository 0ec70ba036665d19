// Package finderr defines the error taxonomy shared by pattern loading,
// matching, region searches and observers.
package finderr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindImageMissing: a pattern's image could not be resolved or decoded.
	KindImageMissing Kind = iota + 1
	// KindFindFailed: a pattern was not located before the timeout.
	KindFindFailed
	// KindInvalidInput: malformed region, empty image, needle larger than haystack.
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindImageMissing:
		return "image missing"
	case KindFindFailed:
		return "find failed"
	case KindInvalidInput:
		return "invalid input"
	}
	return "unknown"
}

// Sentinels for errors.Is checks.
var (
	ErrImageMissing = errors.New("image missing")
	ErrFindFailed   = errors.New("find failed")
	ErrInvalidInput = errors.New("invalid input")
)

func (k Kind) sentinel() error {
	switch k {
	case KindImageMissing:
		return ErrImageMissing
	case KindFindFailed:
		return ErrFindFailed
	case KindInvalidInput:
		return ErrInvalidInput
	}
	return nil
}

// Error is the structured error carried through the search stack.
type Error struct {
	Kind   Kind
	Op     string // e.g. "region.find", "pattern.load"
	Target string // pattern path or description, may be empty
	Err    error  // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Target != "" {
		s += fmt.Sprintf(" %q", e.Target)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// New returns an Error without a cause.
func New(kind Kind, op, target string) *Error {
	return &Error{Kind: kind, Op: op, Target: target}
}

// Wrap returns an Error wrapping cause.
func Wrap(kind Kind, op, target string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Target: target, Err: cause}
}

// Invalid is shorthand for an input error with a formatted message.
func Invalid(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
