// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv         = "GEOFIX"
	DefaultTextTpl    = "{{.IconWithSpace}}{{if .HasLocation}}{{.Latitude}}, {{.Longitude}}{{else}}{{.StatusText}}{{end}}"
	DefaultTooltipTpl = "{{if .HasLocation}}{{loc \"latitude\"}}: {{.Latitude}}\n{{loc \"longitude\"}}: {{.Longitude}}\n" +
		"{{loc \"accuracy\"}}: {{.Accuracy}} ({{.AccuracyLabel}})" +
		"{{if .Altitude}}\n{{loc \"altitude\"}}: {{.Altitude}}{{end}}" +
		"{{if .Speed}}\n{{loc \"speed\"}}: {{.Speed}}{{end}}" +
		"\n{{loc \"time\"}}: {{.CapturedAt}}\n{{loc \"source\"}}: {{.Source}}{{end}}" +
		"{{if .Error}}{{if .HasLocation}}\n{{end}}{{.Error}}{{end}}" +
		"{{if .Hint}}{{if .HasLocation}}\n{{end}}{{.Hint}}{{end}}"
	DefaultMapURLTpl = "https://www.google.com/maps?q={{.Lat}},{{.Lon}}&z={{.Zoom}}&output=embed"
)

var sources = []string{"auto", "gpsd", "geoclue", "nmea", "ichnaea", "google", "replay"}

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	// Allowed values: auto, gpsd, geoclue, nmea, ichnaea, google, replay
	Source string `fig:"source" default:"auto"`

	Acquisition struct {
		Timeout            time.Duration `fig:"timeout" default:"30s"`
		AcceptThreshold    float64       `fig:"accept_threshold" default:"50"`
		ExcellentThreshold float64       `fig:"excellent_threshold" default:"20"`
		StrictImprovement  bool          `fig:"strict_improvement"`
		// Zero means cached positions are never used
		MaximumAge          time.Duration `fig:"maximum_age"`
		DisableHighAccuracy bool          `fig:"disable_high_accuracy"`
	} `fig:"acquisition"`

	Intervals struct {
		Output time.Duration `fig:"output" default:"5s"`
		// Zero disables periodic re-acquisition
		Reacquire time.Duration `fig:"reacquire"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	Map struct {
		URL  string `fig:"url"`
		Zoom int    `fig:"zoom" default:"18"`
	} `fig:"map"`

	GPSD struct {
		Host string `fig:"host" default:"localhost"`
		Port string `fig:"port" default:"2947"`
	} `fig:"gpsd"`

	GeoClue struct {
		DesktopID string `fig:"desktop_id" default:"geofix"`
	} `fig:"geoclue"`

	NMEA struct {
		Device string `fig:"device" default:"/dev/ttyACM0"`
		Baud   int    `fig:"baud" default:"9600"`
	} `fig:"nmea"`

	Ichnaea struct {
		Endpoint string        `fig:"endpoint" default:"https://api.beacondb.net/v1/geolocate"`
		Period   time.Duration `fig:"period" default:"10s"`
	} `fig:"ichnaea"`

	Google struct {
		APIKey string        `fig:"apikey"`
		Period time.Duration `fig:"period" default:"10s"`
	} `fig:"google"`

	Replay struct {
		File string `fig:"file"`
	} `fig:"replay"`

	Web struct {
		// Empty disables the web interface
		Listen string `fig:"listen"`
	} `fig:"web"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if !validSource(c.Source) {
		return fmt.Errorf("invalid source: %s", c.Source)
	}
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Acquisition.Timeout <= 0 {
		return fmt.Errorf("invalid acquisition timeout: %s", c.Acquisition.Timeout)
	}
	if c.Acquisition.ExcellentThreshold <= 0 || c.Acquisition.AcceptThreshold <= 0 {
		return fmt.Errorf("accuracy thresholds must be positive")
	}
	if c.Acquisition.ExcellentThreshold > c.Acquisition.AcceptThreshold {
		return fmt.Errorf("excellent threshold %.1fm exceeds accept threshold %.1fm",
			c.Acquisition.ExcellentThreshold, c.Acquisition.AcceptThreshold)
	}
	if c.Acquisition.MaximumAge < 0 {
		return fmt.Errorf("invalid maximum sample age: %s", c.Acquisition.MaximumAge)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	if c.Intervals.Reacquire < 0 {
		return fmt.Errorf("invalid reacquire interval: %s", c.Intervals.Reacquire)
	}
	if c.Intervals.Reacquire > 0 && c.Intervals.Reacquire <= c.Acquisition.Timeout {
		return fmt.Errorf("reacquire interval %s must be longer than the acquisition timeout %s",
			c.Intervals.Reacquire, c.Acquisition.Timeout)
	}
	if c.Map.Zoom < 1 || c.Map.Zoom > 21 {
		return fmt.Errorf("invalid map zoom level: %d", c.Map.Zoom)
	}
	if c.NMEA.Baud <= 0 {
		return fmt.Errorf("invalid NMEA baud rate: %d", c.NMEA.Baud)
	}
	if c.Source == "google" && c.Google.APIKey == "" {
		return fmt.Errorf("google source requires an API key")
	}
	if c.Source == "replay" && c.Replay.File == "" {
		return fmt.Errorf("replay source requires a replay file")
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.Map.URL == "" {
		c.Map.URL = DefaultMapURLTpl
	}

	return nil
}

func validSource(source string) bool {
	for _, s := range sources {
		if s == source {
			return true
		}
	}
	return false
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
