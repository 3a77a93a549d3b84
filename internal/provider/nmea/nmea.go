// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nmea

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/logger"
)

const (
	name = "nmea"

	// userEquivalentRangeError converts dilution of precision values into meters.
	userEquivalentRangeError = 5.0
	unknownAccuracy          = 100.0
)

type openFunc func(device string, baud int) (io.ReadCloser, error)

// Provider reads NMEA 0183 sentences from a serial GNSS receiver.
type Provider struct {
	device string
	baud   int
	open   openFunc
	logger *logger.Logger
}

// fixState collects the sentences of one receiver epoch. GGA sentences complete a fix, RMC and
// GSA sentences contribute motion and vertical precision.
type fixState struct {
	rmc    *nmea.RMC
	vdop   float64
	hasGSA bool
}

func New(device string, baud int, log *logger.Logger) *Provider {
	return &Provider{
		device: device,
		baud:   baud,
		open:   openSerial,
		logger: log,
	}
}

func openSerial(device string, baud int) (io.ReadCloser, error) {
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, err
	}
	return port, nil
}

func (p *Provider) Name() string {
	return name
}

// Supported reports whether the configured serial device exists.
func (p *Provider) Supported(context.Context) bool {
	if _, err := os.Stat(p.device); err != nil {
		p.logger.Debug("NMEA device not available", slog.String("device", p.device), logger.Err(err))
		return false
	}
	return true
}

func (p *Provider) Watch(ctx context.Context, opts acquire.WatchOptions) (<-chan acquire.Event, error) {
	port, err := p.open(p.device, p.baud)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("%w: failed to open %s: %w", acquire.ErrPermissionDenied, p.device, err)
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("%w: failed to open %s: %w", acquire.ErrUnsupported, p.device, err)
		default:
			return nil, fmt.Errorf("%w: failed to open %s: %w", acquire.ErrPositionUnavailable, p.device, err)
		}
	}

	out := make(chan acquire.Event)
	go p.stream(ctx, port, opts, out)
	return out, nil
}

func (p *Provider) stream(ctx context.Context, port io.ReadCloser, opts acquire.WatchOptions, out chan<- acquire.Event) {
	defer close(out)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the port is the only way to interrupt a pending read
	stop := context.AfterFunc(ctx, func() {
		if err := port.Close(); err != nil {
			p.logger.Debug("failed to close serial port", slog.String("device", p.device), logger.Err(err))
		}
	})
	defer stop()

	sentences := make(chan nmea.Sentence)
	readErr := make(chan error, 1)
	go p.readSentences(ctx, port, sentences, readErr)

	watchdog := acquire.NewWatchdog(opts.Timeout)
	defer watchdog.Stop()

	var state fixState
	for {
		select {
		case <-ctx.Done():
			return
		case <-watchdog.C():
			acquire.Emit(ctx, out, acquire.Event{
				Err: fmt.Errorf("%w: no NMEA fix within %s", acquire.ErrTimeout, opts.Timeout),
			})
			return
		case err := <-readErr:
			if ctx.Err() != nil {
				return
			}
			acquire.Emit(ctx, out, acquire.Event{
				Err: fmt.Errorf("%w: NMEA stream ended: %w", acquire.ErrPositionUnavailable, err),
			})
			return
		case sentence := <-sentences:
			sample, ok := state.apply(sentence, time.Now())
			if !ok {
				continue
			}
			if !acquire.Emit(ctx, out, acquire.Event{Sample: sample}) {
				return
			}
			watchdog.Reset()
		}
	}
}

func (p *Provider) readSentences(ctx context.Context, port io.Reader, sentences chan<- nmea.Sentence, readErr chan<- error) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			p.logger.Debug("skipping unparsable NMEA sentence", slog.String("sentence", line), logger.Err(err))
			continue
		}
		select {
		case <-ctx.Done():
			return
		case sentences <- sentence:
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	readErr <- err
}

// apply folds a sentence into the epoch state. It returns a Sample for every GGA sentence that
// carries a valid fix.
func (f *fixState) apply(sentence nmea.Sentence, now time.Time) (acquire.Sample, bool) {
	switch sentence.DataType() {
	case nmea.TypeRMC:
		rmc, ok := sentence.(nmea.RMC)
		if !ok {
			return acquire.Sample{}, false
		}
		f.rmc = nil
		if rmc.Validity == nmea.ValidRMC {
			f.rmc = &rmc
		}
	case nmea.TypeGSA:
		gsa, ok := sentence.(nmea.GSA)
		if !ok {
			return acquire.Sample{}, false
		}
		f.vdop, f.hasGSA = gsa.VDOP, gsa.VDOP > 0
	case nmea.TypeGGA:
		gga, ok := sentence.(nmea.GGA)
		if !ok || gga.FixQuality == nmea.Invalid || gga.FixQuality == "" {
			return acquire.Sample{}, false
		}
		return f.sample(gga, now), true
	}
	return acquire.Sample{}, false
}

func (f *fixState) sample(gga nmea.GGA, now time.Time) acquire.Sample {
	sample := acquire.Sample{
		Latitude:       gga.Latitude,
		Longitude:      gga.Longitude,
		AccuracyMeters: unknownAccuracy,
		CapturedAt:     now,
		Source:         name,
	}
	if gga.HDOP > 0 {
		sample.AccuracyMeters = gga.HDOP * userEquivalentRangeError
	}
	if gga.NumSatellites >= 4 {
		sample.Altitude.Set(gga.Altitude)
		if f.hasGSA {
			sample.AltitudeAccuracy.Set(f.vdop * userEquivalentRangeError)
		}
	}
	if f.rmc != nil {
		speed := f.rmc.Speed * acquire.KnotsToMetersPerSecond
		sample.Speed.Set(speed)
		if speed > 0 {
			sample.Heading.Set(f.rmc.Course)
		}
	}
	return sample
}
