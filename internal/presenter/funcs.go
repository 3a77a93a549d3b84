// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"

	"github.com/wneessen/geofix/internal/vartype"
)

const msToKmh = 3.6

func formatCoordinate(val float64) string {
	return fmt.Sprintf("%.8f", val)
}

func formatMeters(val float64) string {
	return fmt.Sprintf("%.2f m", val)
}

// formatAltitude hides unknown altitudes as well as an altitude of exactly zero, which most
// receivers report in place of an unknown value.
func formatAltitude(val vartype.VarFloat64) string {
	alt, ok := val.Get()
	if !ok || alt == 0 {
		return ""
	}
	return formatMeters(alt)
}

func formatSpeed(val vartype.VarFloat64) string {
	speed, ok := val.Get()
	if !ok || speed <= 0 {
		return ""
	}
	return fmt.Sprintf("%.1f km/h", speed*msToKmh)
}

// formatHeading only reports a heading while moving.
func formatHeading(heading, speed vartype.VarFloat64) string {
	deg, ok := heading.Get()
	if !ok || speed.Value() <= 0 {
		return ""
	}
	return fmt.Sprintf("%.0f°", deg)
}

func osmURL(lat, lon float64, zoom int) string {
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%[1]s&mlon=%[2]s#map=%[3]d/%[1]s/%[2]s",
		formatCoordinate(lat), formatCoordinate(lon), zoom)
}
