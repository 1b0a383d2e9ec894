package mix

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyMixing is returned when Mix is called while another mix is
	// in flight on the same instance.
	ErrAlreadyMixing = errors.New("mix already in progress")

	// ErrMixCancelled is returned after Cancel resolved an in-flight mix.
	// It is a distinct sentinel so callers can tell cancellation apart from
	// a render failure.
	ErrMixCancelled = errors.New("mix cancelled")
)

// ValidationError reports invalid mix input. It is raised synchronously,
// before any decode or render work starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DecodeError identifies the source that could not be decoded or loaded.
// One decode failure aborts the whole mix.
type DecodeError struct {
	Index  int    // position in the submitted track list
	Source string // the opaque source handle
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode source %d (%s): %v", e.Index, e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RenderError wraps a failure in the combine, render or encode stage.
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render stage %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
