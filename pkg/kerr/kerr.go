// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package kerr defines the error-kind taxonomy shared by the tablet's
// mutation and read path: delta memstore, log anchor registry, delta
// iterator merger and leader election all report failures through it
// instead of ad hoc sentinel errors.
package kerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies why an operation failed, so callers can decide whether
// to retry without string-matching error messages.
type Kind int

const (
	// Unknown is the zero value; it should never be constructed directly.
	Unknown Kind = iota
	// InvalidArgument means the caller violated a protocol invariant,
	// such as a voter flipping its vote or a malformed request.
	InvalidArgument
	// NotFound means an expected-missing condition was hit, such as a
	// snapshot that excludes every delta in a store, or an empty anchor
	// registry.
	NotFound
	// IllegalState means a state-machine guard failed, such as querying
	// a decision before one has been reached.
	IllegalState
	// Corruption means on-disk or wire data failed a structural check.
	Corruption
	// ServiceUnavailable means the component is shutting down.
	ServiceUnavailable
	// TimedOut means a deadline elapsed while waiting for a result.
	TimedOut
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case IllegalState:
		return "illegal_state"
	case Corruption:
		return "corruption"
	case ServiceUnavailable:
		return "service_unavailable"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Error is a kinded error with an optional wrapped cause.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a kinded error with a formatted message. Only the message
// text is kept; no stack trace is attached.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{
		Kind: kind,
		msg:  pkgerrors.Errorf(format, args...).Error(),
	}
}

// Wrap attaches a kind and a message to an existing cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return New(kind, format, args...)
	}
	return &Error{
		Kind:  kind,
		msg:   fmt.Sprintf(format, args...),
		cause: pkgerrors.WithStack(cause),
	}
}

// Is reports whether the first *Error found in err's chain carries the
// given kind; kinded errors further down that chain are not checked.
func Is(err error, kind Kind) bool {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind == kind
	}
	return false
}
