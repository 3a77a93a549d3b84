// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nmea

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/logger"
)

const (
	sentenceRMC         = "$GPRMC,123519,A,0612.5280,S,10650.7360,E,010.0,084.4,191026,,,A*6E"
	sentenceGSA         = "$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39"
	sentenceGGA         = "$GPGGA,123519,0612.5280,S,10650.7360,E,1,08,0.9,12.4,M,4.0,M,,*5A"
	sentenceGGANoFix    = "$GPGGA,123520,0612.5280,S,10650.7360,E,0,00,,,M,,M,,*4D"
	sentenceGGADiff     = "$GPGGA,123521,0612.5290,S,10650.7370,E,2,10,2.0,13.0,M,4.0,M,,*55"
	sentenceBadChecksum = "$GPGGA,123519,0612.5280,S,10650.7360,E,1,08,0.9,12.4,M,4.0,M,,*00"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// pipeOpener returns an openFunc that serves the given sentences. With keepOpen the stream
// stays open after the last sentence.
func pipeOpener(lines []string, keepOpen bool) openFunc {
	return func(string, int) (io.ReadCloser, error) {
		reader, writer := io.Pipe()
		go func() {
			for _, line := range lines {
				if _, err := fmt.Fprintf(writer, "%s\r\n", line); err != nil {
					return
				}
			}
			if !keepOpen {
				_ = writer.Close()
			}
		}()
		return reader, nil
	}
}

func testProvider(open openFunc) *Provider {
	p := New("/dev/ttyACM0", 9600, logger.Discard())
	p.open = open
	return p
}

func TestProvider_Name(t *testing.T) {
	p := New("/dev/ttyACM0", 9600, logger.Discard())
	if p.Name() != name {
		t.Errorf("expected provider name to be %s, got %s", name, p.Name())
	}
}

func TestProvider_Supported(t *testing.T) {
	t.Run("existing device is supported", func(t *testing.T) {
		device := filepath.Join(t.TempDir(), "ttyACM0")
		if err := os.WriteFile(device, nil, 0o600); err != nil {
			t.Fatalf("failed to create fake device: %s", err)
		}
		p := New(device, 9600, logger.Discard())
		if !p.Supported(t.Context()) {
			t.Error("expected existing device to be supported")
		}
	})
	t.Run("missing device is not supported", func(t *testing.T) {
		p := New(filepath.Join(t.TempDir(), "missing"), 9600, logger.Discard())
		if p.Supported(t.Context()) {
			t.Error("expected missing device to be unsupported")
		}
	})
}

func TestProvider_Watch(t *testing.T) {
	t.Run("GGA fixes are enriched with RMC and GSA data", func(t *testing.T) {
		lines := []string{sentenceRMC, sentenceGSA, sentenceBadChecksum, sentenceGGA, sentenceGGANoFix, sentenceGGADiff}
		p := testProvider(pipeOpener(lines, true))
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		events, err := p.Watch(ctx, acquire.DefaultWatchOptions())
		if err != nil {
			t.Fatalf("failed to watch NMEA device: %s", err)
		}

		first := <-events
		if first.Err != nil {
			t.Fatalf("unexpected stream error: %s", first.Err)
		}
		s := first.Sample
		if !almostEqual(s.Latitude, -6.2088) || !almostEqual(s.Longitude, 106.8456) {
			t.Errorf("unexpected coordinates %f,%f", s.Latitude, s.Longitude)
		}
		if !almostEqual(s.AccuracyMeters, 4.5) {
			t.Errorf("expected accuracy to be 4.5, got %f", s.AccuracyMeters)
		}
		if alt, ok := s.Altitude.Get(); !ok || !almostEqual(alt, 12.4) {
			t.Errorf("expected altitude to be 12.4, got %v", s.Altitude)
		}
		if acc, ok := s.AltitudeAccuracy.Get(); !ok || !almostEqual(acc, 10.5) {
			t.Errorf("expected altitude accuracy to be 10.5, got %v", s.AltitudeAccuracy)
		}
		if speed, ok := s.Speed.Get(); !ok || !almostEqual(speed, 10*acquire.KnotsToMetersPerSecond) {
			t.Errorf("expected speed to be %f, got %v", 10*acquire.KnotsToMetersPerSecond, s.Speed)
		}
		if heading, ok := s.Heading.Get(); !ok || !almostEqual(heading, 84.4) {
			t.Errorf("expected heading to be 84.4, got %v", s.Heading)
		}

		second := <-events
		if !almostEqual(second.Sample.AccuracyMeters, 10) {
			t.Errorf("expected the invalid fix to be skipped and accuracy to be 10, got %f",
				second.Sample.AccuracyMeters)
		}
		cancel()
		for range events {
		}
	})
	t.Run("end of stream reports position unavailable", func(t *testing.T) {
		p := testProvider(pipeOpener([]string{sentenceGGA}, false))
		events, err := p.Watch(t.Context(), acquire.DefaultWatchOptions())
		if err != nil {
			t.Fatalf("failed to watch NMEA device: %s", err)
		}
		if ev := <-events; ev.Err != nil {
			t.Fatalf("expected a sample first, got error %s", ev.Err)
		}
		ev := <-events
		if !errors.Is(ev.Err, acquire.ErrPositionUnavailable) {
			t.Errorf("expected error to be %s, got %v", acquire.ErrPositionUnavailable, ev.Err)
		}
	})
	t.Run("open errors are classified", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			want error
		}{
			{"permission", os.ErrPermission, acquire.ErrPermissionDenied},
			{"missing device", os.ErrNotExist, acquire.ErrUnsupported},
			{"other", errors.New("device busy"), acquire.ErrPositionUnavailable},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				p := testProvider(func(string, int) (io.ReadCloser, error) {
					return nil, fmt.Errorf("open /dev/ttyACM0: %w", tc.err)
				})
				_, err := p.Watch(t.Context(), acquire.DefaultWatchOptions())
				if !errors.Is(err, tc.want) {
					t.Errorf("expected error to be %s, got %v", tc.want, err)
				}
			})
		}
	})
	t.Run("receiver without fix triggers the watchdog", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			p := testProvider(pipeOpener([]string{sentenceGGANoFix}, true))
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			opts := acquire.DefaultWatchOptions()
			opts.Timeout = time.Second * 10
			start := time.Now()
			events, err := p.Watch(ctx, opts)
			if err != nil {
				t.Fatalf("failed to watch NMEA device: %s", err)
			}
			ev := <-events
			if !errors.Is(ev.Err, acquire.ErrTimeout) {
				t.Errorf("expected error to be %s, got %v", acquire.ErrTimeout, ev.Err)
			}
			if elapsed := time.Since(start); elapsed != opts.Timeout {
				t.Errorf("expected watchdog to fire after %s, got %s", opts.Timeout, elapsed)
			}
		})
	})
}

func TestFixState_apply(t *testing.T) {
	now := time.Now()
	t.Run("GGA without RMC carries no motion", func(t *testing.T) {
		var state fixState
		sentence, err := nmea.Parse(sentenceGGA)
		if err != nil {
			t.Fatalf("failed to parse sentence: %s", err)
		}
		sample, ok := state.apply(sentence, now)
		if !ok {
			t.Fatal("expected a sample")
		}
		if sample.Speed.IsSet() || sample.Heading.IsSet() || sample.AltitudeAccuracy.IsSet() {
			t.Error("expected no motion or vertical accuracy without RMC and GSA")
		}
		if !sample.CapturedAt.Equal(now) {
			t.Errorf("expected capture time to be now")
		}
	})
	t.Run("RMC and GSA alone produce no sample", func(t *testing.T) {
		var state fixState
		for _, raw := range []string{sentenceRMC, sentenceGSA} {
			sentence, err := nmea.Parse(raw)
			if err != nil {
				t.Fatalf("failed to parse sentence: %s", err)
			}
			if _, ok := state.apply(sentence, now); ok {
				t.Errorf("expected no sample for %s", sentence.DataType())
			}
		}
		if state.rmc == nil || !state.hasGSA {
			t.Error("expected RMC and GSA to be recorded")
		}
	})
}

func TestFixState_sample(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name         string
		satellites   int64
		hdop         float64
		wantAcc      float64
		wantAltitude bool
	}{
		{"hdop with enough satellites", 8, 0.9, 4.5, true},
		{"hdop with few satellites", 3, 1.2, 6, false},
		{"no hdop", 8, 0, unknownAccuracy, true},
		{"no hdop and few satellites", 2, 0, unknownAccuracy, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var state fixState
			gga := nmea.GGA{
				Latitude: -6.2088, Longitude: 106.8456, FixQuality: nmea.GPS,
				NumSatellites: tc.satellites, HDOP: tc.hdop, Altitude: 12.4,
			}
			sample := state.sample(gga, now)
			if math.Abs(sample.AccuracyMeters-tc.wantAcc) > 1e-9 {
				t.Errorf("expected accuracy to be %f, got %f", tc.wantAcc, sample.AccuracyMeters)
			}
			if sample.Altitude.IsSet() != tc.wantAltitude {
				t.Errorf("expected altitude set to be %t, got %t", tc.wantAltitude, sample.Altitude.IsSet())
			}
		})
	}
}
