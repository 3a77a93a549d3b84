// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquire

import (
	"context"
	"errors"
)

// ErrorKind classifies why an acquisition attempt failed.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorUnsupported
	ErrorPermissionDenied
	ErrorPositionUnavailable
	ErrorTimeout
	ErrorUnknown
)

var (
	// ErrUnsupported is returned when the host offers no location-sensing capability.
	ErrUnsupported = errors.New("location sensing is not supported")
	// ErrPermissionDenied is reported by sources when access to the position was denied.
	ErrPermissionDenied = errors.New("permission to access the location was denied")
	// ErrPositionUnavailable is reported by sources that cannot determine a position.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrTimeout is reported when no usable position arrived in time.
	ErrTimeout = errors.New("timed out waiting for a position")
)

var errorKindNames = map[ErrorKind]string{
	ErrorNone:                "",
	ErrorUnsupported:         "unsupported",
	ErrorPermissionDenied:    "permission_denied",
	ErrorPositionUnavailable: "position_unavailable",
	ErrorTimeout:             "timeout",
	ErrorUnknown:             "unknown",
}

// String returns the snake_case name of the ErrorKind. ErrorNone is the empty string.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return errorKindNames[ErrorUnknown]
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseErrorKind maps a snake_case name back to its ErrorKind. Unknown names map to ErrorUnknown.
func ParseErrorKind(name string) ErrorKind {
	for kind, n := range errorKindNames {
		if n == name {
			return kind
		}
	}
	return ErrorUnknown
}

// Err returns the sentinel error for the kind, or nil for ErrorNone and ErrorUnknown.
func (k ErrorKind) Err() error {
	switch k {
	case ErrorUnsupported:
		return ErrUnsupported
	case ErrorPermissionDenied:
		return ErrPermissionDenied
	case ErrorPositionUnavailable:
		return ErrPositionUnavailable
	case ErrorTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// Classify maps a source failure to an ErrorKind. A nil error is ErrorNone.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorNone
	case errors.Is(err, ErrUnsupported):
		return ErrorUnsupported
	case errors.Is(err, ErrPermissionDenied):
		return ErrorPermissionDenied
	case errors.Is(err, ErrPositionUnavailable):
		return ErrorPositionUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	default:
		return ErrorUnknown
	}
}
