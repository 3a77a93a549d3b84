// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/config"
	"github.com/wneessen/geofix/internal/http"
	"github.com/wneessen/geofix/internal/logger"
	"github.com/wneessen/geofix/internal/provider/auto"
	"github.com/wneessen/geofix/internal/provider/geoclue"
	"github.com/wneessen/geofix/internal/provider/google"
	"github.com/wneessen/geofix/internal/provider/gpsd"
	"github.com/wneessen/geofix/internal/provider/ichnaea"
	"github.com/wneessen/geofix/internal/provider/nmea"
	"github.com/wneessen/geofix/internal/provider/replay"
	"github.com/wneessen/geofix/internal/wlan"
)

// selectSource creates the location source configured in conf.Source.
func selectSource(conf *config.Config, log *logger.Logger) (acquire.Source, error) {
	switch conf.Source {
	case "gpsd":
		return gpsd.New(conf.GPSD.Host, conf.GPSD.Port, log), nil
	case "geoclue":
		return geoclue.New(conf.GeoClue.DesktopID, log), nil
	case "nmea":
		return nmea.New(conf.NMEA.Device, conf.NMEA.Baud, log), nil
	case "ichnaea":
		return newIchnaea(conf, log)
	case "google":
		src, err := google.New(conf.Google.APIKey, conf.Google.Period, http.New(log), wlan.New(), log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Google geolocation source: %w", err)
		}
		return src, nil
	case "replay":
		src, err := replay.New(conf.Replay.File, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create replay source: %w", err)
		}
		return src, nil
	case "auto":
		return selectAutoSource(conf, log)
	default:
		return nil, fmt.Errorf("unsupported location source: %s", conf.Source)
	}
}

// selectAutoSource probes the local receivers first and falls back to the WiFi based network
// lookup, which is always available.
func selectAutoSource(conf *config.Config, log *logger.Logger) (acquire.Source, error) {
	network, err := newIchnaea(conf, log)
	if err != nil {
		return nil, err
	}
	return auto.New(log,
		gpsd.New(conf.GPSD.Host, conf.GPSD.Port, log),
		nmea.New(conf.NMEA.Device, conf.NMEA.Baud, log),
		geoclue.New(conf.GeoClue.DesktopID, log),
		network,
	), nil
}

func newIchnaea(conf *config.Config, log *logger.Logger) (acquire.Source, error) {
	src, err := ichnaea.New(conf.Ichnaea.Endpoint, conf.Ichnaea.Period, http.New(log), wlan.New(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create ichnaea source: %w", err)
	}
	return src, nil
}
