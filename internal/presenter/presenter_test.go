// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/vorlif/spreak"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/config"
	"github.com/wneessen/geofix/internal/i18n"
)

var capturedAt = time.Date(2026, 10, 19, 12, 35, 19, 0, time.UTC)

func TestNew(t *testing.T) {
	t.Run("creating a new presenter succeeds", func(t *testing.T) {
		conf, lang := testConfLang(t)
		pres, err := New(conf, lang)
		if err != nil {
			t.Fatalf("failed to create presenter: %s", err)
		}
		if pres == nil {
			t.Fatal("expected presenter to be non-nil")
		}
	})
	t.Run("creating presenter with invalid templates fails", func(t *testing.T) {
		tests := []struct {
			name       string
			templateFn func(conf *config.Config)
		}{
			{"text", func(conf *config.Config) { conf.Templates.Text = "{{invalid" }},
			{"tooltip", func(conf *config.Config) { conf.Templates.Tooltip = "{{invalid" }},
			{"map_url", func(conf *config.Config) { conf.Map.URL = "{{invalid" }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				conf, lang := testConfLang(t)
				tt.templateFn(conf)
				_, err := New(conf, lang)
				if err == nil {
					t.Fatal("expected presenter to fail, but didn't")
				}
				wantErr := "failed to parse"
				if !strings.Contains(err.Error(), wantErr) {
					t.Errorf("expected error to contain %q, got %q", wantErr, err)
				}
			})
		}
	})
	t.Run("creating presenter with template execution errors fails", func(t *testing.T) {
		tests := []struct {
			name       string
			templateFn func(conf *config.Config)
		}{
			{"text", func(conf *config.Config) { conf.Templates.Text = "{{.Data}}" }},
			{"tooltip", func(conf *config.Config) { conf.Templates.Tooltip = "{{.Data}}" }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				conf, lang := testConfLang(t)
				tt.templateFn(conf)
				_, err := New(conf, lang)
				if err == nil {
					t.Fatal("expected presenter to fail, but didn't")
				}
				wantErr := "failed to render"
				if !strings.Contains(err.Error(), wantErr) {
					t.Errorf("expected error to contain %q, got %q", wantErr, err)
				}
			})
		}
	})
}

func TestPresenter_BuildView(t *testing.T) {
	t.Run("building a view for a successful attempt", func(t *testing.T) {
		pres := testPresenter(t)
		view := pres.BuildView(testState())

		if !view.HasLocation {
			t.Fatal("expected view to have a location")
		}
		if view.Status != "succeeded" {
			t.Errorf("expected status to be %q, got %q", "succeeded", view.Status)
		}
		if view.StatusText != "Location found" {
			t.Errorf("expected status text to be %q, got %q", "Location found", view.StatusText)
		}
		if view.Icon != StatusIcons[acquire.StatusSucceeded] {
			t.Errorf("expected icon to be %q, got %q", StatusIcons[acquire.StatusSucceeded], view.Icon)
		}
		if view.Latitude != "-6.20880000" {
			t.Errorf("expected latitude to be %q, got %q", "-6.20880000", view.Latitude)
		}
		if view.Longitude != "106.84560000" {
			t.Errorf("expected longitude to be %q, got %q", "106.84560000", view.Longitude)
		}
		if view.Accuracy != "12.50 m" {
			t.Errorf("expected accuracy to be %q, got %q", "12.50 m", view.Accuracy)
		}
		if view.AccuracyClass != AccuracyAccurate {
			t.Errorf("expected accuracy class to be %q, got %q", AccuracyAccurate, view.AccuracyClass)
		}
		if view.AccuracyLabel != "Accurate" {
			t.Errorf("expected accuracy label to be %q, got %q", "Accurate", view.AccuracyLabel)
		}
		if view.Altitude != "8.00 m" {
			t.Errorf("expected altitude to be %q, got %q", "8.00 m", view.Altitude)
		}
		if view.Speed != "3.6 km/h" {
			t.Errorf("expected speed to be %q, got %q", "3.6 km/h", view.Speed)
		}
		if view.Heading != "84°" {
			t.Errorf("expected heading to be %q, got %q", "84°", view.Heading)
		}
		if view.Source != "replay" {
			t.Errorf("expected source to be %q, got %q", "replay", view.Source)
		}
		if view.CapturedAt == "" {
			t.Error("expected captured at to be set")
		}
		if !view.CapturedTime.Equal(capturedAt) {
			t.Errorf("expected captured time to be %s, got %s", capturedAt, view.CapturedTime)
		}
		wantMap := "https://www.google.com/maps?q=-6.20880000,106.84560000&z=18&output=embed"
		if view.MapURL != wantMap {
			t.Errorf("expected map URL to be %q, got %q", wantMap, view.MapURL)
		}
		wantOSM := "https://www.openstreetmap.org/?mlat=-6.20880000&mlon=106.84560000#map=18/-6.20880000/106.84560000"
		if view.OSMURL != wantOSM {
			t.Errorf("expected OSM URL to be %q, got %q", wantOSM, view.OSMURL)
		}
		if view.Error != "" {
			t.Errorf("expected no error, got %q", view.Error)
		}
		if view.Hint != "" {
			t.Errorf("expected no hint, got %q", view.Hint)
		}
	})
	t.Run("building a view while searching shows the hint", func(t *testing.T) {
		pres := testPresenter(t)
		view := pres.BuildView(acquire.State{Status: acquire.StatusSearching, StartedAt: time.Now()})
		if view.HasLocation {
			t.Error("expected view to have no location")
		}
		if !strings.HasPrefix(view.Hint, "Searching for the best GPS signal") {
			t.Errorf("expected searching hint, got %q", view.Hint)
		}
		if view.AccuracyClass != "" {
			t.Errorf("expected no accuracy class, got %q", view.AccuracyClass)
		}
	})
	t.Run("refining with an accepted sample hides the hint", func(t *testing.T) {
		pres := testPresenter(t)
		state := acquire.State{
			Status:    acquire.StatusSearching,
			StartedAt: time.Now(),
			Best: &acquire.Sample{
				Latitude: -6.2088, Longitude: 106.8456, AccuracyMeters: 40,
				CapturedAt: capturedAt, Source: "replay",
			},
		}
		view := pres.BuildView(state)
		if view.Hint != "" {
			t.Errorf("expected no hint once a sample was accepted, got %q", view.Hint)
		}
		out, err := pres.Render(view)
		if err != nil {
			t.Fatalf("failed to render view: %s", err)
		}
		if strings.Contains(out.Tooltip, "Searching for the best GPS signal") {
			t.Errorf("expected tooltip without searching hint, got %q", out.Tooltip)
		}
		if !strings.HasSuffix(out.Tooltip, "Source: replay") {
			t.Errorf("expected tooltip to end with the source line, got %q", out.Tooltip)
		}

		view.Hint = "Keep still"
		out, err = pres.Render(view)
		if err != nil {
			t.Fatalf("failed to render view: %s", err)
		}
		if !strings.HasSuffix(out.Tooltip, "Source: replay\nKeep still") {
			t.Errorf("expected hint on its own line, got %q", out.Tooltip)
		}
	})
	t.Run("unknown and zero values are hidden", func(t *testing.T) {
		pres := testPresenter(t)
		state := acquire.State{
			Status: acquire.StatusSucceeded,
			Best: &acquire.Sample{
				Latitude: 52.52, Longitude: 13.405, AccuracyMeters: 5,
				CapturedAt: capturedAt, Source: "gpsd",
			},
		}
		state.Best.Altitude.Set(0)
		state.Best.Speed.Set(0)
		state.Best.Heading.Set(90)
		view := pres.BuildView(state)
		if view.Altitude != "" {
			t.Errorf("expected altitude to be hidden, got %q", view.Altitude)
		}
		if view.Speed != "" {
			t.Errorf("expected speed to be hidden, got %q", view.Speed)
		}
		if view.Heading != "" {
			t.Errorf("expected heading to be hidden while not moving, got %q", view.Heading)
		}
	})
	t.Run("error messages per error kind", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			want string
		}{
			{"unsupported", acquire.ErrUnsupported, "Geolocation is not supported on this system"},
			{
				"permission denied", fmt.Errorf("geoclue: %w", acquire.ErrPermissionDenied),
				"Location permission denied. Enable location access for this application.",
			},
			{"position unavailable", acquire.ErrStreamClosed, "Location information is unavailable."},
			{"source timeout", acquire.ErrTimeout, "The location request timed out. Try again."},
			{"deadline", acquire.ErrDeadline, "Timeout: could not get an accurate location within 30 seconds"},
			{"interrupted", acquire.ErrInterrupted, "The location request timed out. Try again."},
			{"unknown", fmt.Errorf("intentionally failing"), "An error occurred while retrieving the location."},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				pres := testPresenter(t)
				view := pres.BuildView(acquire.State{
					Status: acquire.StatusFailed, Err: tc.err, Error: acquire.Classify(tc.err),
				})
				if view.Error != tc.want {
					t.Errorf("expected error message to be %q, got %q", tc.want, view.Error)
				}
				if view.ErrorKind != acquire.Classify(tc.err).String() {
					t.Errorf("expected error kind to be %q, got %q", acquire.Classify(tc.err), view.ErrorKind)
				}
			})
		}
	})
	t.Run("indonesian view is localized", func(t *testing.T) {
		conf, err := config.New()
		if err != nil {
			t.Fatalf("failed to create config: %s", err)
		}
		lang, err := i18n.New("id-ID")
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		pres, err := New(conf, lang)
		if err != nil {
			t.Fatalf("failed to create presenter: %s", err)
		}
		view := pres.BuildView(acquire.State{Status: acquire.StatusFailed, Err: acquire.ErrDeadline,
			Error: acquire.ErrorTimeout})
		want := "Timeout: Tidak bisa mendapatkan lokasi akurat dalam 30 detik"
		if view.Error != want {
			t.Errorf("expected error message to be %q, got %q", want, view.Error)
		}
		if view.StatusText != "Lokasi gagal" {
			t.Errorf("expected status text to be %q, got %q", "Lokasi gagal", view.StatusText)
		}
	})
}

func TestPresenter_accuracy(t *testing.T) {
	tests := []struct {
		name   string
		meters float64
		class  string
		color  string
	}{
		{"zero", 0, AccuracyVeryAccurate, "#22c55e"},
		{"very accurate", 9.99, AccuracyVeryAccurate, "#22c55e"},
		{"lower bound of accurate", 10, AccuracyAccurate, "#eab308"},
		{"accurate", 49.9, AccuracyAccurate, "#eab308"},
		{"lower bound of less accurate", 50, AccuracyLessAccurate, "#ef4444"},
		{"less accurate", 1500, AccuracyLessAccurate, "#ef4444"},
	}
	pres := testPresenter(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			class, label, color := pres.accuracy(tc.meters)
			if class != tc.class {
				t.Errorf("expected class to be %q, got %q", tc.class, class)
			}
			if color != tc.color {
				t.Errorf("expected color to be %q, got %q", tc.color, color)
			}
			if label == "" {
				t.Error("expected label to be set")
			}
		})
	}
}

func TestPresenter_Render(t *testing.T) {
	t.Run("rendering succeeds", func(t *testing.T) {
		pres := testPresenter(t)
		out, err := pres.Render(pres.BuildView(testState()))
		if err != nil {
			t.Fatalf("failed to render: %s", err)
		}
		wantText := "📍 -6.20880000, 106.84560000"
		if out.Text != wantText {
			t.Errorf("expected text output to be %q, got %q", wantText, out.Text)
		}
		for _, want := range []string{
			"Latitude: -6.20880000", "Longitude: 106.84560000", "Accuracy: 12.50 m (Accurate)",
			"Altitude: 8.00 m", "Speed: 3.6 km/h", "Source: replay",
		} {
			if !strings.Contains(out.Tooltip, want) {
				t.Errorf("expected tooltip to contain %q, got %q", want, out.Tooltip)
			}
		}
		wantClass := []string{"geofix", "succeeded", AccuracyAccurate}
		if !slices.Equal(out.Class, wantClass) {
			t.Errorf("expected class to be %v, got %v", wantClass, out.Class)
		}
		if out.Alt != "succeeded" {
			t.Errorf("expected alt to be %q, got %q", "succeeded", out.Alt)
		}
	})
	t.Run("rendering without a location shows the status", func(t *testing.T) {
		pres := testPresenter(t)
		out, err := pres.Render(pres.BuildView(acquire.State{}))
		if err != nil {
			t.Fatalf("failed to render: %s", err)
		}
		if !strings.HasSuffix(out.Text, "No location yet") {
			t.Errorf("expected text to end with the status text, got %q", out.Text)
		}
		if out.Tooltip != "" {
			t.Errorf("expected empty tooltip, got %q", out.Tooltip)
		}
	})
	t.Run("rendering with localized template functions", func(t *testing.T) {
		conf, lang := testConfLang(t)
		conf.Templates.Text = `{{loc "accuracy"}} {{floatFormat .AccuracyMeters 1}} {{uc .Source}}`
		pres, err := New(conf, lang)
		if err != nil {
			t.Fatalf("failed to create presenter: %s", err)
		}
		out, err := pres.Render(pres.BuildView(testState()))
		if err != nil {
			t.Fatalf("failed to render: %s", err)
		}
		want := "Accuracy 12.5 REPLAY"
		if out.Text != want {
			t.Errorf("expected text output to be %q, got %q", want, out.Text)
		}
	})
	t.Run("rendering with invalid templates fails", func(t *testing.T) {
		tests := []struct {
			name string
			set  func(*Presenter, *template.Template)
		}{
			{"text", func(p *Presenter, tpl *template.Template) { p.templates.Text = tpl }},
			{"tooltip", func(p *Presenter, tpl *template.Template) { p.templates.Tooltip = tpl }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				pres := testPresenter(t)
				tpl, err := template.New(tt.name).Parse("{{.Data}}")
				if err != nil {
					t.Fatalf("failed to parse template: %s", err)
				}
				tt.set(pres, tpl)
				if _, err = pres.Render(pres.BuildView(testState())); err == nil {
					t.Error("expected rendering to fail, but didn't")
				}
			})
		}
	})
}

func testState() acquire.State {
	sample := &acquire.Sample{
		Latitude:       -6.2088,
		Longitude:      106.8456,
		AccuracyMeters: 12.5,
		CapturedAt:     capturedAt,
		Source:         "replay",
	}
	sample.Altitude.Set(8)
	sample.Speed.Set(1)
	sample.Heading.Set(84.4)
	return acquire.State{
		Status:   acquire.StatusSucceeded,
		Best:     sample,
		Received: 3,
		Accepted: 2,
	}
}

func testPresenter(t *testing.T) *Presenter {
	t.Helper()
	conf, lang := testConfLang(t)
	pres, err := New(conf, lang)
	if err != nil {
		t.Fatalf("failed to create presenter: %s", err)
	}
	return pres
}

func testConfLang(t *testing.T) (*config.Config, *spreak.Localizer) {
	t.Helper()
	conf, err := config.New()
	if err != nil {
		t.Fatalf("failed to create config: %s", err)
	}
	conf.Locale = "en"
	lang, err := i18n.New(conf.Locale)
	if err != nil {
		t.Fatalf("failed to create localizer: %s", err)
	}
	return conf, lang
}
