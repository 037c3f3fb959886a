// Package apperrors tags pipeline failures with the kind of degradation they cause.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the pipeline must react to it.
type Kind int

const (
	// KindUnknown marks an untagged error. At the top of a run it is fatal.
	KindUnknown Kind = iota
	// LoadFailure means the dataset is unreadable or empty. Fatal.
	LoadFailure
	// StageFailure means a cleaning/profiling sub-step failed; the stage continues.
	StageFailure
	// RenderFailure means a chart could not be rendered; the slot is skipped.
	RenderFailure
	// CapabilityUnavailable means the narrative runtime timed out or errored; fallback text is used.
	CapabilityUnavailable
)

func (k Kind) String() string {
	switch k {
	case LoadFailure:
		return "load_failure"
	case StageFailure:
		return "stage_failure"
	case RenderFailure:
		return "render_failure"
	case CapabilityUnavailable:
		return "capability_unavailable"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New tags err with kind. A nil err still yields a non-nil *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// KindOf returns the Kind of the first tagged error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err must abort a run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case StageFailure, RenderFailure, CapabilityUnavailable:
		return false
	default:
		return true
	}
}
