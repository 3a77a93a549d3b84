// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquire

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of an acquisition attempt.
type Status int

const (
	StatusIdle Status = iota
	StatusSearching
	StatusSucceeded
	StatusFailed
)

var statusNames = map[Status]string{
	StatusIdle:      "idle",
	StatusSearching: "searching",
	StatusSucceeded: "succeeded",
	StatusFailed:    "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the status ends an attempt.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// State is an immutable snapshot of the controller. A new State is published on every
// transition; callers may keep and share snapshots freely.
type State struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	Status     Status    `json:"status"`
	Best       *Sample   `json:"best,omitempty"`
	Error      ErrorKind `json:"error,omitempty"`
	Err        error     `json:"-"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// Received counts samples delivered by the source, Accepted the ones that replaced Best and
	// Dropped the ones discarded for carrying invalid coordinates.
	Received int `json:"received"`
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// HasBest reports whether a sample was accepted in this attempt.
func (s State) HasBest() bool {
	return s.Best != nil
}

// Elapsed returns how long the attempt ran, or has been running so far.
func (s State) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
