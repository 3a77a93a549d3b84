// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/geofix/internal/acquire"
)

const (
	AccuracyVeryAccurate = "very_accurate"
	AccuracyAccurate     = "accurate"
	AccuracyLessAccurate = "less_accurate"
)

// StatusIcons maps the acquisition status to the icon shown in the bar.
var StatusIcons = map[acquire.Status]string{
	acquire.StatusIdle:      "🧭",
	acquire.StatusSearching: "🛰️",
	acquire.StatusSucceeded: "📍",
	acquire.StatusFailed:    "⚠️",
}

// StatusTexts maps the acquisition status to its human readable description.
var StatusTexts = map[acquire.Status]localize.MsgID{
	acquire.StatusIdle:      "No location yet",
	acquire.StatusSearching: "Searching for location",
	acquire.StatusSucceeded: "Location found",
	acquire.StatusFailed:    "Location failed",
}

// ErrorMessages maps error kinds to the message shown to the user. ErrorTimeout caused by the
// acquisition deadline uses deadlineMessage instead.
var ErrorMessages = map[acquire.ErrorKind]localize.MsgID{
	acquire.ErrorUnsupported:         "Geolocation is not supported on this system",
	acquire.ErrorPermissionDenied:    "Location permission denied. Enable location access for this application.",
	acquire.ErrorPositionUnavailable: "Location information is unavailable.",
	acquire.ErrorTimeout:             "The location request timed out. Try again.",
	acquire.ErrorUnknown:             "An error occurred while retrieving the location.",
}

const (
	deadlineMessage localize.MsgID = "Timeout: could not get an accurate location within %d seconds"
	searchingHint   localize.MsgID = "Searching for the best GPS signal... Make sure you are in an open area " +
		"for optimal results."
)

// accuracyClasses are ordered by their upper bound in meters. The last entry has no bound.
var accuracyClasses = []struct {
	below float64
	class string
	label localize.MsgID
	color string
}{
	{10, AccuracyVeryAccurate, "Very accurate", "#22c55e"},
	{50, AccuracyAccurate, "Accurate", "#eab308"},
	{0, AccuracyLessAccurate, "Less accurate", "#ef4444"},
}
