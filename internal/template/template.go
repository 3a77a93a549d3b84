// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package template

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak"
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/geofix/internal/config"
)

// MapData is the context of the map URL template.
type MapData struct {
	Lat  string
	Lon  string
	Zoom int
}

type Templates struct {
	Text    *template.Template
	Tooltip *template.Template
	MapURL  *template.Template

	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
}

var i18nVars = map[string]localize.MsgID{
	"latitude":  "Latitude",
	"longitude": "Longitude",
	"accuracy":  "Accuracy",
	"altitude":  "Altitude",
	"speed":     "Speed",
	"time":      "Time",
	"source":    "Source",
}

func New(conf *config.Config, loc *spreak.Localizer, hum *humanize.Humanizer) (*Templates, error) {
	tpls := &Templates{localizer: loc, humanizer: hum}

	tpl, err := template.New("text").Funcs(tpls.templateFuncMap()).Parse(conf.Templates.Text)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse text template: %w", err)
	}
	tpls.Text = tpl

	tpl, err = template.New("tooltip").Funcs(tpls.templateFuncMap()).Parse(conf.Templates.Tooltip)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse tooltip template: %w", err)
	}
	tpls.Tooltip = tpl

	tpl, err = template.New("map_url").Parse(conf.Map.URL)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse map URL template: %w", err)
	}
	tpls.MapURL = tpl

	return tpls, nil
}

func (t *Templates) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    timeFormat,
		"localizedTime": t.localizedTime,
		"naturalTime":   t.naturalTime,
		"floatFormat":   floatFormat,
		"loc":           t.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (t *Templates) loc(val string) string {
	val = strings.ToLower(val)
	if raw, ok := i18nVars[val]; ok && t.localizer != nil {
		return t.localizer.Get(raw)
	}
	return val
}

func (t *Templates) localizedTime(val time.Time) string {
	if t.humanizer == nil {
		return val.Format(time.DateTime)
	}
	return t.humanizer.FormatTime(val, humanize.DateTimeFormat)
}

func (t *Templates) naturalTime(val time.Time) string {
	if t.humanizer == nil {
		return val.Format(time.DateTime)
	}
	return t.humanizer.NaturalTime(val)
}

func timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

// floatFormat truncates val to the given precision instead of rounding it.
func floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

// EmojiWithSpace pads an emoji so that it is followed by one visible space regardless of its
// terminal width.
func EmojiWithSpace(emoji string) string {
	if emoji == "" {
		return ""
	}
	width := runewidth.StringWidth(emoji)
	return fmt.Sprintf("%s%s", emoji, strings.Repeat(" ", max(1, 3-width)))
}
