package backend

import (
	"errors"
	"fmt"
)

// Stage classifies where in the call lifecycle a failure happened.
type Stage string

const (
	StageAuth          Stage = "auth"
	StageRequest       Stage = "request"
	StageParse         Stage = "parse"
	StageTransport     Stage = "transport"
	StageConfiguration Stage = "configuration"
)

// Error is a failure record tagged with its backend and stage. Adapters
// never let a lower-level error escape unclassified.
type Error struct {
	Backend ID
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Backend, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a stage-classified error for the given backend.
func Errf(id ID, stage Stage, format string, args ...any) *Error {
	return &Error{Backend: id, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// WrapErr classifies an underlying error. If err is already a *Error it
// is returned unchanged so the original classification wins.
func WrapErr(id ID, stage Stage, message string, err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return &Error{Backend: id, Stage: stage, Message: message, Err: err}
}

// StageOf extracts the stage from a classified error, or empty.
func StageOf(err error) Stage {
	var be *Error
	if errors.As(err, &be) {
		return be.Stage
	}
	return ""
}
