// Copyright 2025 The vtd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vtderr defines the closed set of semantic error kinds shared by
// every core component (event loop, input pipeline, VT backend, seat
// scheduler). Kinds are transport-independent: a caller across package
// boundaries checks Kind, not a package-specific sentinel.
package vtderr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories named in the error handling design.
type Kind int

const (
	// InvalidArgument indicates a caller passed a value outside the
	// documented domain (e.g. activating a disabled session).
	InvalidArgument Kind = iota

	// OutOfMemory indicates an allocation failed.
	OutOfMemory

	// AlreadyRegistered indicates a watcher or device was already attached.
	AlreadyRegistered

	// NotRegistered indicates an operation referenced a watcher, device,
	// or callback that is not currently registered.
	NotRegistered

	// InProgress indicates an asynchronous VT switch was queued and is
	// awaiting a kernel acknowledgement; it is not a failure.
	InProgress

	// NoSuchKey indicates KeyboardState.process produced no event for the
	// given key state (a release, a code with no keysyms, a repeat).
	NoSuchKey

	// CapExceeded indicates a seat's session cap was reached.
	CapExceeded

	// Refused indicates a client vetoed a non-forced deactivation.
	Refused

	// HungUp indicates a watched fd reported HUP.
	HungUp

	// NotSupported indicates a VT backend type was disallowed by the caller.
	NotSupported

	// OSError wraps a failure reported by the underlying readiness
	// multiplexer, ioctl, or other syscall.
	OSError
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid-argument"
	case OutOfMemory:
		return "out-of-memory"
	case AlreadyRegistered:
		return "already-registered"
	case NotRegistered:
		return "not-registered"
	case InProgress:
		return "in-progress"
	case NoSuchKey:
		return "no-such-key"
	case CapExceeded:
		return "cap-exceeded"
	case Refused:
		return "refused"
	case HungUp:
		return "hung-up"
	case NotSupported:
		return "not-supported"
	case OSError:
		return "os-error"
	default:
		return "unknown-error"
	}
}

// Error is a typed error carrying a Kind, the failing operation name, and
// an optional underlying cause.
type Error struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap lets errors.Is/errors.As see through to the underlying cause,
// e.g. a syscall.Errno from golang.org/x/sys/unix.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error for op with the given kind and optional cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Is reports whether err wraps a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
