// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/logger"
)

const (
	name = "gpsd"

	watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"
	probeTimeout = time.Second * 2

	// unknownAccuracy is reported for fixes that carry no error estimate at all.
	unknownAccuracy = 100.0
)

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Provider streams TPV reports of a gpsd daemon.
type Provider struct {
	addr   string
	dial   dialFunc
	logger *logger.Logger
}

// tpvReport extends the gpsd TPV report with fields newer gpsd releases send. Speed and Track
// shadow the embedded fields so that an omitted value stays absent.
type tpvReport struct {
	gpsd.TPVReport
	Time  time.Time `json:"time"`
	Eph   float64   `json:"eph"`
	Speed *float64  `json:"speed"`
	Track *float64  `json:"track"`
}

type envelope struct {
	Class string `json:"class"`
}

func New(host, port string, log *logger.Logger) *Provider {
	dialer := &net.Dialer{}
	return &Provider{
		addr:   net.JoinHostPort(host, port),
		dial:   dialer.DialContext,
		logger: log,
	}
}

func (p *Provider) Name() string {
	return name
}

// Supported reports whether a gpsd daemon accepts connections on the configured address.
func (p *Provider) Supported(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", p.addr)
	if err != nil {
		p.logger.Debug("gpsd not reachable", slog.String("addr", p.addr), logger.Err(err))
		return false
	}
	_ = conn.Close()
	return true
}

func (p *Provider) Watch(ctx context.Context, opts acquire.WatchOptions) (<-chan acquire.Event, error) {
	conn, err := p.dial(ctx, "tcp", p.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to gpsd at %q: %w", acquire.ErrPositionUnavailable,
			p.addr, err)
	}
	if _, err = io.WriteString(conn, watchCommand); err != nil {
		return nil, errors.Join(fmt.Errorf("%w: failed to enable gpsd watch mode: %w",
			acquire.ErrPositionUnavailable, err), conn.Close())
	}

	out := make(chan acquire.Event)
	go p.stream(ctx, conn, opts, out)
	return out, nil
}

func (p *Provider) stream(ctx context.Context, conn net.Conn, opts acquire.WatchOptions, out chan<- acquire.Event) {
	defer close(out)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			p.logger.Error("failed to close gpsd connection", logger.Err(err))
		}
	})
	defer stop()
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
			p.logger.Error("failed to close gpsd connection", logger.Err(err))
		}
	}()

	reports := make(chan tpvReport)
	readErr := make(chan error, 1)
	go p.readReports(ctx, conn, reports, readErr)

	watchdog := acquire.NewWatchdog(opts.Timeout)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watchdog.C():
			acquire.Emit(ctx, out, acquire.Event{
				Err: fmt.Errorf("%w: no gpsd fix within %s", acquire.ErrTimeout, opts.Timeout),
			})
			return
		case err := <-readErr:
			if ctx.Err() != nil {
				return
			}
			acquire.Emit(ctx, out, acquire.Event{
				Err: fmt.Errorf("%w: gpsd stream ended: %w", acquire.ErrPositionUnavailable, err),
			})
			return
		case report := <-reports:
			now := time.Now()
			sample, ok := report.sample(now)
			if !ok {
				continue
			}
			if !opts.Fresh(sample.CapturedAt, now) {
				p.logger.Debug("dropping stale gpsd fix", slog.Time("fix_time", sample.CapturedAt))
				continue
			}
			if !acquire.Emit(ctx, out, acquire.Event{Sample: sample}) {
				return
			}
			watchdog.Reset()
		}
	}
}

// readReports decodes the gpsd JSON line protocol and forwards TPV reports. It ends with an
// error on readErr once the connection fails or is closed.
func (p *Provider) readReports(ctx context.Context, conn net.Conn, reports chan<- tpvReport, readErr chan<- error) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			p.logger.Debug("skipping malformed gpsd report", logger.Err(err))
			continue
		}
		if env.Class != "TPV" {
			continue
		}
		var report tpvReport
		if err := json.Unmarshal(line, &report); err != nil {
			p.logger.Debug("skipping malformed TPV report", logger.Err(err))
			continue
		}
		select {
		case <-ctx.Done():
			return
		case reports <- report:
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	readErr <- err
}

// sample converts a TPV report into a Sample. Reports without at least a 2D fix are ignored.
func (r tpvReport) sample(now time.Time) (acquire.Sample, bool) {
	if r.Mode < gpsd.Mode2D {
		return acquire.Sample{}, false
	}
	sample := acquire.Sample{
		Latitude:       r.Lat,
		Longitude:      r.Lon,
		AccuracyMeters: r.accuracy(),
		CapturedAt:     r.Time,
		Source:         name,
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = now
	}
	if r.Mode == gpsd.Mode3D {
		sample.Altitude.Set(r.Alt)
		if r.Epv > 0 {
			sample.AltitudeAccuracy.Set(r.Epv)
		}
	}
	if r.Speed != nil {
		sample.Speed.Set(*r.Speed)
		if *r.Speed > 0 && r.Track != nil {
			sample.Heading.Set(*r.Track)
		}
	}
	return sample, true
}

func (r tpvReport) accuracy() float64 {
	switch {
	case r.Eph > 0:
		return r.Eph
	case r.Epx > 0 || r.Epy > 0:
		return math.Hypot(r.Epx, r.Epy)
	default:
		return unknownAccuracy
	}
}
