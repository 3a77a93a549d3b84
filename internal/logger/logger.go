// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package logger provides the structured logger shared by all geofix components.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps a slog.Logger so components can depend on a single concrete type.
type Logger struct {
	*slog.Logger
}

// New returns a Logger that writes text records of at least the given level to stderr.
func New(level slog.Level) *Logger {
	return NewLogger(level, os.Stderr)
}

// NewLogger returns a Logger that writes text records of at least the given level to output.
func NewLogger(level slog.Level, output io.Writer) *Logger {
	return &Logger{slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))}
}

// Discard returns a Logger that drops every record. Useful in tests.
func Discard() *Logger {
	return &Logger{slog.New(slog.DiscardHandler)}
}

// Err returns the error as a log attribute.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
