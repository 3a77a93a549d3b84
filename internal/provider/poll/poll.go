// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package poll turns one-shot network geolocation lookups into a position stream.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/logger"
)

// LocateFunc performs a single position lookup.
type LocateFunc func(ctx context.Context) (acquire.Sample, error)

// Stream calls locate right away and then once per period until ctx is done. Lookup errors
// that classify as an acquisition failure end the stream, any other error is logged and the
// lookup is retried on the next tick.
func Stream(ctx context.Context, name string, period time.Duration, opts acquire.WatchOptions, locate LocateFunc,
	log *logger.Logger,
) <-chan acquire.Event {
	out := make(chan acquire.Event)
	go func() {
		defer close(out)
		watchdog := acquire.NewWatchdog(opts.Timeout)
		defer watchdog.Stop()
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			sample, err := locate(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil && acquire.Classify(err) != acquire.ErrorUnknown:
				acquire.Emit(ctx, out, acquire.Event{Err: err})
				return
			case err != nil:
				log.Warn("position lookup failed, retrying", slog.String("source", name),
					slog.Duration("period", period), logger.Err(err))
			default:
				if !acquire.Emit(ctx, out, acquire.Event{Sample: sample}) {
					return
				}
				watchdog.Reset()
			}

			select {
			case <-ctx.Done():
				return
			case <-watchdog.C():
				acquire.Emit(ctx, out, acquire.Event{
					Err: fmt.Errorf("%w: no %s position within %s", acquire.ErrTimeout, name, opts.Timeout),
				})
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}
