// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package wlan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mdlayher/wifi"
)

// AccessPoint is a WiFi access point seen by a station interface.
type AccessPoint struct {
	BSSID string
	SSID  string
	// Signal strength in dBm
	Signal int32
	Age    time.Duration
}

// Scanner lists access points visible to the local WiFi station interfaces.
type Scanner struct {
	open func() (client, error)
}

// client is the subset of the nl80211 client used by the Scanner.
type client interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(ifi *wifi.Interface) ([]*wifi.BSS, error)
	Close() error
}

func New() *Scanner {
	return &Scanner{open: func() (client, error) {
		c, err := wifi.New()
		if err != nil {
			return nil, err
		}
		return c, nil
	}}
}

// AccessPoints returns the access points that may be used for network geolocation. Hidden
// networks and networks opted out with the "_nomap" suffix are skipped.
func (s *Scanner) AccessPoints() (list []AccessPoint, err error) {
	wlan, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	defer func() {
		if closeErr := wlan.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close wifi client: %w", closeErr))
		}
	}()

	ifaces, err := wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if !usable(ap) {
				continue
			}
			list = append(list, AccessPoint{
				BSSID:  ap.BSSID.String(),
				SSID:   ap.SSID,
				Signal: ap.Signal / 100,
				Age:    ap.LastSeen,
			})
		}
	}
	return list, nil
}

func usable(ap *wifi.BSS) bool {
	if ap == nil || len(ap.BSSID) == 0 {
		return false
	}
	return ap.SSID != "" && ap.SSID[0] != '\x00' && !strings.HasSuffix(ap.SSID, "_nomap")
}
