// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package google

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/http"
	"github.com/wneessen/geofix/internal/logger"
	"github.com/wneessen/geofix/internal/provider/poll"
	"github.com/wneessen/geofix/internal/wlan"
)

const (
	name          = "google"
	lookupTimeout = time.Second * 10
)

// AccessPointLister lists WiFi access points for the lookup request.
type AccessPointLister interface {
	AccessPoints() ([]wlan.AccessPoint, error)
}

// Provider locates the host through the Google Maps Geolocation API.
type Provider struct {
	client *maps.Client
	period time.Duration
	wlan   AccessPointLister
	logger *logger.Logger
}

// New returns a Google geolocation provider. Additional client options, such as a custom
// base URL, are passed to the Maps client.
func New(apiKey string, period time.Duration, httpClient *http.Client, scanner AccessPointLister,
	log *logger.Logger, opts ...maps.ClientOption,
) (*Provider, error) {
	options := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if httpClient != nil {
		options = append(options, maps.WithHTTPClient(httpClient.Client))
	}
	options = append(options, opts...)
	client, err := maps.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}
	return &Provider{
		client: client,
		period: period,
		wlan:   scanner,
		logger: log,
	}, nil
}

func (p *Provider) Name() string {
	return name
}

// Supported always reports true, the API falls back to an IP based position.
func (p *Provider) Supported(context.Context) bool {
	return true
}

func (p *Provider) Watch(ctx context.Context, opts acquire.WatchOptions) (<-chan acquire.Event, error) {
	return poll.Stream(ctx, name, p.period, opts, p.locate, p.logger), nil
}

func (p *Provider) locate(ctx context.Context) (acquire.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req := &maps.GeolocationRequest{
		ConsiderIP:       true,
		WiFiAccessPoints: p.accessPoints(),
	}
	resp, err := p.client.Geolocate(ctx, req)
	if err != nil {
		return acquire.Sample{}, classifyError(err)
	}
	return acquire.Sample{
		Latitude:       resp.Location.Lat,
		Longitude:      resp.Location.Lng,
		AccuracyMeters: resp.Accuracy,
		CapturedAt:     time.Now(),
		Source:         name,
	}, nil
}

func (p *Provider) accessPoints() []maps.WiFiAccessPoint {
	if p.wlan == nil {
		return nil
	}
	aps, err := p.wlan.AccessPoints()
	if err != nil {
		p.logger.Debug("failed to scan WiFi access points, using IP based lookup", logger.Err(err))
		return nil
	}
	list := make([]maps.WiFiAccessPoint, 0, len(aps))
	for _, ap := range aps {
		list = append(list, maps.WiFiAccessPoint{
			MACAddress:     ap.BSSID,
			SignalStrength: float64(ap.Signal),
		})
	}
	p.logger.Debug("WiFi access points collected", slog.Int("count", len(list)))
	return list
}

// classifyError maps the reasons reported by the Geolocation API to acquisition errors.
func classifyError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "notFound"):
		return fmt.Errorf("%w: %w", acquire.ErrPositionUnavailable, err)
	case strings.Contains(msg, "keyInvalid"), strings.Contains(msg, "accessNotConfigured"),
		strings.Contains(msg, "REQUEST_DENIED"):
		return fmt.Errorf("%w: %w", acquire.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("failed to get geolocation from Google: %w", err)
	}
}
