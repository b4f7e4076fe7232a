// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by stores, the codec, and the
// engine wraps exactly one of these, so callers classify failures with
// errors.Is rather than by inspecting messages.
var (
	// ErrNotFound: the named object does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrIO: a local filesystem operation failed.
	ErrIO = errors.New("i/o error")

	// ErrNetwork: a remote store request failed.
	ErrNetwork = errors.New("network error")

	// ErrIntegrity: object content does not match its declared size
	// or hash, or a patch chain's hashes do not line up.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrPatch: the patch codec rejected a patch.
	ErrPatch = errors.New("patch application failed")

	// ErrCodec: an object envelope or compressed payload is malformed.
	ErrCodec = errors.New("malformed object")

	// ErrUnreachable: no path in the graph leads to the requested
	// version.
	ErrUnreachable = errors.New("target unreachable")
)

// Error carries a kind together with the operation and object it
// concerns. errors.Is matches both the kind and the wrapped cause.
type Error struct {
	Kind error
	Op   string
	Name string
	Err  error
}

// NewError returns an Error of the given kind.
func NewError(kind error, op, name string, err error) *Error {
	return &Error{Kind: kind, Op: op, Name: name, Err: err}
}

// Errorf returns an Error of the given kind whose cause is a formatted
// message.
func Errorf(kind error, op, name, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Name: name, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	prefix := e.Op
	if e.Name != "" {
		if prefix != "" {
			prefix += " "
		}
		prefix += e.Name
	}
	message := e.Kind.Error()
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	if prefix == "" {
		return message
	}
	return prefix + ": " + message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsIntegrity reports whether err means the data itself is bad:
// corrupt content, a malformed envelope, or a rejected patch. Such
// failures are never retried against another copy of the same object
// by the engine; the caller decides whether to exclude the object and
// plan again.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity) || errors.Is(err, ErrCodec) || errors.Is(err, ErrPatch)
}

// IsUnavailable reports whether err means an object could not be
// obtained from one location, so another location may be tried.
func IsUnavailable(err error) bool {
	if IsIntegrity(err) {
		return false
	}
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrIO) || errors.Is(err, ErrNetwork)
}
