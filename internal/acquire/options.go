// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquire

import "time"

const (
	// DefaultAcceptThreshold is the accuracy in meters below which a sample is good enough to
	// display.
	DefaultAcceptThreshold = 50.0
	// DefaultExcellentThreshold is the accuracy in meters below which an attempt succeeds at once.
	DefaultExcellentThreshold = 20.0
)

type options struct {
	timeout            time.Duration
	acceptThreshold    float64
	excellentThreshold float64
	strictImprovement  bool
	watch              WatchOptions
}

func defaultOptions() options {
	return options{
		timeout:            DefaultTimeout,
		acceptThreshold:    DefaultAcceptThreshold,
		excellentThreshold: DefaultExcellentThreshold,
		watch:              DefaultWatchOptions(),
	}
}

// Option configures a Controller.
type Option func(*options)

// WithTimeout sets the hard deadline of every attempt. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithAcceptThreshold sets the accuracy in meters a follow-up sample must beat to be accepted.
func WithAcceptThreshold(meters float64) Option {
	return func(o *options) {
		if meters > 0 {
			o.acceptThreshold = meters
		}
	}
}

// WithExcellentThreshold sets the accuracy in meters that ends an attempt successfully.
func WithExcellentThreshold(meters float64) Option {
	return func(o *options) {
		if meters > 0 {
			o.excellentThreshold = meters
		}
	}
}

// WithStrictImprovement makes the controller accept a follow-up sample only if it is also more
// accurate than the current best one. By default any sample under the accept threshold replaces
// the best sample, even a less accurate one.
func WithStrictImprovement(strict bool) Option {
	return func(o *options) {
		o.strictImprovement = strict
	}
}

// WithWatchOptions sets the options passed to Source.Watch.
func WithWatchOptions(w WatchOptions) Option {
	return func(o *options) {
		o.watch = w
	}
}
