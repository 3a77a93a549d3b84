// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/config"
	"github.com/wneessen/geofix/internal/template"
)

// View is the template context for a single State snapshot. String fields are pre-formatted
// and empty when the value is not available.
type View struct {
	Status        string
	StatusText    string
	Icon          string
	IconWithSpace string

	HasLocation    bool
	Lat            float64
	Lon            float64
	Latitude       string
	Longitude      string
	AccuracyMeters float64
	Accuracy       string
	AccuracyClass  string
	AccuracyLabel  string
	AccuracyColor  string
	Altitude       string
	Speed          string
	Heading        string
	CapturedTime   time.Time
	CapturedAt     string
	Source         string
	MapURL         string
	OSMURL         string

	ErrorKind string
	Error     string
	Hint      string

	Elapsed  time.Duration
	Received int
	Accepted int
}

// Output is the rendered result in the custom module format of waybar.
type Output struct {
	Text    string   `json:"text"`
	Tooltip string   `json:"tooltip"`
	Class   []string `json:"class"`
	Alt     string   `json:"alt"`
}

type Presenter struct {
	templates *template.Templates
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
	zoom      int
	timeout   time.Duration
}

func New(conf *config.Config, lang *spreak.Localizer) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	pres := &Presenter{
		localizer: lang,
		humanizer: collection.CreateHumanizer(lang.Language()),
		zoom:      conf.Map.Zoom,
		timeout:   conf.Acquisition.Timeout,
	}

	tpls, err := template.New(conf, lang, pres.humanizer)
	if err != nil {
		return nil, err
	}
	pres.templates = tpls

	// Dry run with a fully populated view to catch template execution errors early.
	sample := &acquire.Sample{
		Latitude: -6.2088, Longitude: 106.8456, AccuracyMeters: 12.5,
		CapturedAt: time.Now(), Source: "startup",
	}
	sample.Altitude.Set(8.0)
	sample.Speed.Set(1.0)
	if _, err = pres.Render(pres.BuildView(acquire.State{Status: acquire.StatusSucceeded, Best: sample})); err != nil {
		return nil, fmt.Errorf("failed to render templates: %w", err)
	}

	return pres, nil
}

// BuildView converts a State snapshot into its localized template context.
func (p *Presenter) BuildView(state acquire.State) View {
	icon := StatusIcons[state.Status]
	view := View{
		Status:        state.Status.String(),
		StatusText:    p.localizer.Get(StatusTexts[state.Status]),
		Icon:          icon,
		IconWithSpace: template.EmojiWithSpace(icon),
		ErrorKind:     state.Error.String(),
		Elapsed:       state.Elapsed(),
		Received:      state.Received,
		Accepted:      state.Accepted,
	}

	if state.Status == acquire.StatusSearching && state.Best == nil {
		view.Hint = p.localizer.Get(searchingHint)
	}
	if state.Status == acquire.StatusFailed {
		view.Error = p.errorMessage(state)
	}

	if best := state.Best; best != nil {
		view.HasLocation = true
		view.Lat = best.Latitude
		view.Lon = best.Longitude
		view.Latitude = formatCoordinate(best.Latitude)
		view.Longitude = formatCoordinate(best.Longitude)
		view.AccuracyMeters = best.AccuracyMeters
		view.Accuracy = formatMeters(best.AccuracyMeters)
		view.AccuracyClass, view.AccuracyLabel, view.AccuracyColor = p.accuracy(best.AccuracyMeters)
		view.Altitude = formatAltitude(best.Altitude)
		view.Speed = formatSpeed(best.Speed)
		view.Heading = formatHeading(best.Heading, best.Speed)
		view.CapturedTime = best.CapturedAt
		view.CapturedAt = p.humanizer.FormatTime(best.CapturedAt, humanize.DateTimeFormat)
		view.Source = best.Source
		view.MapURL = p.mapURL(best.Latitude, best.Longitude)
		view.OSMURL = osmURL(best.Latitude, best.Longitude, p.zoom)
	}

	return view
}

// Render executes the text and tooltip templates for the given view.
func (p *Presenter) Render(view View) (Output, error) {
	out := Output{
		Alt:   view.Status,
		Class: []string{"geofix", view.Status},
	}
	if view.AccuracyClass != "" {
		out.Class = append(out.Class, view.AccuracyClass)
	}

	buf := bytes.NewBuffer(nil)
	if err := p.templates.Text.Execute(buf, view); err != nil {
		return out, fmt.Errorf("failed to render text template: %w", err)
	}
	out.Text = buf.String()

	buf.Reset()
	if err := p.templates.Tooltip.Execute(buf, view); err != nil {
		return out, fmt.Errorf("failed to render tooltip template: %w", err)
	}
	out.Tooltip = buf.String()

	return out, nil
}

func (p *Presenter) errorMessage(state acquire.State) string {
	if errors.Is(state.Err, acquire.ErrDeadline) {
		return p.localizer.Getf(deadlineMessage, int(p.timeout.Seconds()))
	}
	msg, ok := ErrorMessages[state.Error]
	if !ok {
		msg = ErrorMessages[acquire.ErrorUnknown]
	}
	return p.localizer.Get(msg)
}

func (p *Presenter) accuracy(meters float64) (string, string, string) {
	for _, class := range accuracyClasses {
		if class.below == 0 || meters < class.below {
			return class.class, p.localizer.Get(class.label), class.color
		}
	}
	return "", "", ""
}

func (p *Presenter) mapURL(lat, lon float64) string {
	buf := bytes.NewBuffer(nil)
	data := template.MapData{Lat: formatCoordinate(lat), Lon: formatCoordinate(lon), Zoom: p.zoom}
	if err := p.templates.MapURL.Execute(buf, data); err != nil {
		return ""
	}
	return buf.String()
}
