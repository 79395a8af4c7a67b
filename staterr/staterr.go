// Package staterr defines the error taxonomy shared by the statesync packages.
//
// Every failure the core reports belongs to one of three kinds:
//
//   - Usage: the caller did something the core cannot honor (wrapping nil,
//     deriving a one-way prop from an object value, registering a key twice).
//     The operation is a no-op and the error is returned.
//   - Dangling: a notification targeted an identity that is no longer in the
//     subscriber registry. It is logged and skipped, never returned.
//   - Invariant: internal state that should not occur under correct use, such
//     as a link whose source has already been torn down.
package staterr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Usage Kind = iota + 1
	Dangling
	Invariant
)

func (k Kind) String() string {
	switch k {
	case Usage:
		return "usage"
	case Dangling:
		return "dangling reference"
	case Invariant:
		return "state invariant violation"
	default:
		return "unknown"
	}
}

// Error is a classified statesync error. Sentinel errors in the other
// packages are *Error values so they work with errors.Is directly.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "property.CreateProp".
	Op  string
	Msg string
	// Err is an optional underlying cause.
	Err error
}

func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func (e *Error) Error() string {
	s := fmt.Sprintf("statesync(%s): %s", e.Op, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns a copy of e carrying cause. errors.Is(result, e) still holds.
func (e *Error) Wrap(cause error) error {
	return &wrapped{err: &Error{Kind: e.Kind, Op: e.Op, Msg: e.Msg, Err: cause}, sentinel: e}
}

type wrapped struct {
	err      *Error
	sentinel *Error
}

func (w *wrapped) Error() string {
	return w.err.Error()
}

func (w *wrapped) Is(target error) bool {
	return target == error(w.sentinel)
}

func (w *wrapped) Unwrap() error {
	return w.err.Err
}

// KindOf reports the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var w *wrapped
	if errors.As(err, &w) {
		return w.err.Kind
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsUsage(err error) bool     { return KindOf(err) == Usage }
func IsDangling(err error) bool  { return KindOf(err) == Dangling }
func IsInvariant(err error) bool { return KindOf(err) == Invariant }
