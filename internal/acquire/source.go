// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquire

import (
	"context"
	"time"
)

const (
	// DefaultTimeout is the hard deadline of an acquisition attempt.
	DefaultTimeout = 30 * time.Second
	// FreshnessTolerance is added to WatchOptions.MaximumAge to absorb receiver latency and
	// clock offsets between the host and the sensor.
	FreshnessTolerance = 5 * time.Second
)

// Source is a host location-sensing capability that supplies a continuous position stream.
type Source interface {
	// Name returns a short identifier of the source.
	Name() string
	// Supported reports whether the capability exists on this host at all.
	Supported(ctx context.Context) bool
	// Watch opens a position stream. The stream ends and the channel is closed once ctx is
	// cancelled. Sources must not block on sends after ctx is done.
	Watch(ctx context.Context, opts WatchOptions) (<-chan Event, error)
}

// WatchOptions configure a position stream.
type WatchOptions struct {
	// HighAccuracy asks the source for its most precise positioning method.
	HighAccuracy bool
	// Timeout is the longest time the source waits for a sample before reporting ErrTimeout.
	// Zero disables the source side timeout.
	Timeout time.Duration
	// MaximumAge is the oldest a sample may be when emitted. Zero means no cached positions.
	MaximumAge time.Duration
}

// DefaultWatchOptions returns the options used by the controller: high accuracy, a 30 second
// timeout and no cached positions.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		HighAccuracy: true,
		Timeout:      DefaultTimeout,
		MaximumAge:   0,
	}
}

// Fresh reports whether a sample captured at capturedAt may still be emitted at now.
func (o WatchOptions) Fresh(capturedAt, now time.Time) bool {
	if capturedAt.IsZero() {
		return true
	}
	return now.Sub(capturedAt) <= o.MaximumAge+FreshnessTolerance
}

// Emit sends ev on out unless ctx is done first. It returns false if the event was not sent.
func Emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// Watchdog fires when no sample was emitted within a timeout. Sources use it to honour
// WatchOptions.Timeout.
type Watchdog struct {
	timeout time.Duration
	timer   *time.Timer
}

// NewWatchdog returns an armed Watchdog. A non-positive timeout returns a Watchdog that never
// fires.
func NewWatchdog(timeout time.Duration) *Watchdog {
	w := &Watchdog{timeout: timeout}
	if timeout > 0 {
		w.timer = time.NewTimer(timeout)
	}
	return w
}

// C returns the channel the Watchdog fires on. It is nil for a disabled Watchdog, so a select
// on it blocks forever.
func (w *Watchdog) C() <-chan time.Time {
	if w.timer == nil {
		return nil
	}
	return w.timer.C
}

// Reset re-arms the Watchdog for another full timeout.
func (w *Watchdog) Reset() {
	if w.timer != nil {
		w.timer.Reset(w.timeout)
	}
}

// Stop disarms the Watchdog.
func (w *Watchdog) Stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
