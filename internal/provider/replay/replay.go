// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/logger"
)

const name = "replay"

// Script is a deterministic position stream description. Step times are offsets from the
// start of the watch and must not decrease.
//
// YAML schema (v1):
//
//	version: 1
//	steps:
//	  - t: 1s
//	    lat_deg: -6.2088
//	    lon_deg: 106.8456
//	    accuracy_m: 80
//	    altitude_m: 12.5
//	  - t: 4s
//	    error: permission_denied
//	  - t: 6s
//	    end: true
type Script struct {
	Version int    `yaml:"version"`
	Steps   []Step `yaml:"steps"`
}

// Step emits a sample, a failure or ends the stream at offset T.
type Step struct {
	T          time.Duration `yaml:"t"`
	LatDeg     float64       `yaml:"lat_deg"`
	LonDeg     float64       `yaml:"lon_deg"`
	AccuracyM  float64       `yaml:"accuracy_m"`
	AltitudeM  *float64      `yaml:"altitude_m"`
	SpeedMS    *float64      `yaml:"speed_ms"`
	HeadingDeg *float64      `yaml:"heading_deg"`
	// Error is the snake_case name of an acquisition error kind
	Error string `yaml:"error"`
	End   bool   `yaml:"end"`
}

// Provider replays a Script as a position stream.
type Provider struct {
	script Script
	logger *logger.Logger
}

// LoadScript reads and validates a YAML script from path.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read replay script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript unmarshals and validates a YAML script.
func ParseScript(data []byte) (Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return Script{}, fmt.Errorf("failed to parse replay script: %w", err)
	}
	if err := script.Validate(); err != nil {
		return Script{}, err
	}
	return script, nil
}

func (s *Script) Validate() error {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Version != 1 {
		return fmt.Errorf("unsupported replay script version: %d", s.Version)
	}
	if len(s.Steps) == 0 {
		return errors.New("replay script has no steps")
	}
	var last time.Duration
	for i, step := range s.Steps {
		if step.T < 0 || step.T < last {
			return fmt.Errorf("step %d: time %s must not be negative or decrease", i, step.T)
		}
		last = step.T
		if step.Error != "" && acquire.ParseErrorKind(step.Error) == acquire.ErrorUnknown && step.Error != "unknown" {
			return fmt.Errorf("step %d: unknown error kind %q", i, step.Error)
		}
		if step.Error == "" && !step.End && !step.sample(time.Time{}).Valid() {
			return fmt.Errorf("step %d: invalid sample", i)
		}
	}
	return nil
}

func (s Step) sample(now time.Time) acquire.Sample {
	sample := acquire.Sample{
		Latitude:       s.LatDeg,
		Longitude:      s.LonDeg,
		AccuracyMeters: s.AccuracyM,
		CapturedAt:     now,
		Source:         name,
	}
	if s.AltitudeM != nil {
		sample.Altitude.Set(*s.AltitudeM)
	}
	if s.SpeedMS != nil {
		sample.Speed.Set(*s.SpeedMS)
	}
	if s.HeadingDeg != nil {
		sample.Heading.Set(*s.HeadingDeg)
	}
	return sample
}

func (s Step) err() error {
	if err := acquire.ParseErrorKind(s.Error).Err(); err != nil {
		return fmt.Errorf("%w: replayed at %s", err, s.T)
	}
	return fmt.Errorf("replayed failure at %s", s.T)
}

func New(path string, log *logger.Logger) (*Provider, error) {
	script, err := LoadScript(path)
	if err != nil {
		return nil, err
	}
	return NewFromScript(script, log), nil
}

func NewFromScript(script Script, log *logger.Logger) *Provider {
	return &Provider{script: script, logger: log}
}

func (p *Provider) Name() string {
	return name
}

func (p *Provider) Supported(context.Context) bool {
	return true
}

// Watch replays the script. After the last step the stream stays open and silent until ctx is
// done, unless the script ended it explicitly.
func (p *Provider) Watch(ctx context.Context, opts acquire.WatchOptions) (<-chan acquire.Event, error) {
	out := make(chan acquire.Event)
	go p.replay(ctx, opts, out)
	return out, nil
}

func (p *Provider) replay(ctx context.Context, opts acquire.WatchOptions, out chan<- acquire.Event) {
	defer close(out)
	watchdog := acquire.NewWatchdog(opts.Timeout)
	defer watchdog.Stop()
	start := time.Now()

	for _, step := range p.script.Steps {
		wait := time.NewTimer(time.Until(start.Add(step.T)))
		select {
		case <-ctx.Done():
			wait.Stop()
			return
		case <-watchdog.C():
			wait.Stop()
			acquire.Emit(ctx, out, acquire.Event{
				Err: fmt.Errorf("%w: no replayed sample within %s", acquire.ErrTimeout, opts.Timeout),
			})
			return
		case <-wait.C:
		}

		switch {
		case step.End:
			p.logger.Debug("replay script ended the stream", slog.Duration("t", step.T))
			return
		case step.Error != "":
			acquire.Emit(ctx, out, acquire.Event{Err: step.err()})
			return
		default:
			if !acquire.Emit(ctx, out, acquire.Event{Sample: step.sample(time.Now())}) {
				return
			}
			watchdog.Reset()
		}
	}

	select {
	case <-ctx.Done():
	case <-watchdog.C():
		acquire.Emit(ctx, out, acquire.Event{
			Err: fmt.Errorf("%w: no replayed sample within %s", acquire.ErrTimeout, opts.Timeout),
		})
	}
}
