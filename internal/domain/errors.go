package domain

import (
	"errors"
	"fmt"
)

// Kind classifies domain errors so boundary layers can map them uniformly.
type Kind int

const (
	KindNotFound Kind = iota
	KindInvalidTransition
	KindConflict
	KindOutOfWindow
	KindValidation
	KindGradingUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindConflict:
		return "conflict"
	case KindOutOfWindow:
		return "out_of_window"
	case KindValidation:
		return "validation"
	case KindGradingUnavailable:
		return "grading_unavailable"
	default:
		return "unknown"
	}
}

// Error is a domain error carrying a Kind and a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two domain errors by Kind alone.
func (e *Error) Is(target error) bool {
	var de *Error
	if errors.As(target, &de) {
		return de.Kind == e.Kind
	}
	return false
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func OutOfWindowf(format string, args ...any) error {
	return &Error{Kind: KindOutOfWindow, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func GradingUnavailable(err error) error {
	return &Error{Kind: KindGradingUnavailable, Msg: "grading service unavailable", Err: err}
}

// InvalidTransitionError names the rejected state change.
func InvalidTransitionError(entity, from, to string) error {
	return &Error{
		Kind: KindInvalidTransition,
		Msg:  fmt.Sprintf("%s cannot transition from %q to %q", entity, from, to),
	}
}

// KindOf extracts the Kind of a domain error, or false for foreign errors.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ErrQuizClaimed signals that a quiz could not be claimed for aggregation
// because another worker holds it or its status already advanced. Callers
// treat it as a benign no-op, never as a failure.
var ErrQuizClaimed = errors.New("quiz already claimed or processed")
