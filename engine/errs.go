// Copyright 2021 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package engine

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Kind distinguishes the engine's three error categories (spec.md §7).
// ChainBroken is deliberately absent here: an unaccepted bundle is reported
// via AddBundle's accepted bool, never as an error.
type Kind int

const (
	// KindInvalidArgument marks a caller bug - e.g. get_reset_changes with a
	// key but no container - raised immediately, never retryable.
	KindInvalidArgument Kind = iota
	// KindCorruptBundle marks a change that is neither a container nor an
	// entry, or a muid reference that cannot be resolved; the write
	// transaction this occurred in is aborted wholesale.
	KindCorruptBundle
	// KindBackendError marks an I/O or transaction failure from the
	// underlying kv.RwDB.
	KindBackendError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindCorruptBundle:
		return "corrupt bundle"
	case KindBackendError:
		return "backend error"
	default:
		return "unknown"
	}
}

// Error is the engine's error type; Kind lets callers branch on the
// category spec.md §7 defines without string-matching messages.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

func invalidArgf(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidArgument, err: pkgerrors.Errorf(format, args...)}
}

func corrupt(err error, msg string) error {
	return &Error{Kind: KindCorruptBundle, err: pkgerrors.Wrap(err, msg)}
}

func corruptf(format string, args ...interface{}) error {
	return &Error{Kind: KindCorruptBundle, err: pkgerrors.Errorf(format, args...)}
}

func backend(err error) error {
	return &Error{Kind: KindBackendError, err: pkgerrors.Wrap(err, "backend")}
}
