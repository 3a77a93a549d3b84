// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wneessen/geofix/internal/acquire"
	httpclient "github.com/wneessen/geofix/internal/http"
	"github.com/wneessen/geofix/internal/logger"
	"github.com/wneessen/geofix/internal/provider/poll"
	"github.com/wneessen/geofix/internal/wlan"
)

const (
	name          = "ichnaea"
	lookupTimeout = time.Second * 5

	// minAccessPoints is the number of access points an Ichnaea service needs for a WiFi based
	// position. Fewer are not sent at all.
	minAccessPoints = 2
)

// AccessPointLister lists WiFi access points for the lookup request.
type AccessPointLister interface {
	AccessPoints() ([]wlan.AccessPoint, error)
}

// Provider locates the host through an Ichnaea compatible geolocation service like BeaconDB.
type Provider struct {
	endpoint string
	period   time.Duration
	http     *httpclient.Client
	wlan     AccessPointLister
	logger   *logger.Logger
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	Age            int64  `json:"age,omitempty"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength,omitempty"`
}

type request struct {
	ConsiderIP   bool              `json:"considerIp"`
	Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
}

func New(endpoint string, period time.Duration, client *httpclient.Client, scanner AccessPointLister,
	log *logger.Logger,
) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("geolocation endpoint is required")
	}
	return &Provider{
		endpoint: endpoint,
		period:   period,
		http:     client,
		wlan:     scanner,
		logger:   log,
	}, nil
}

func (p *Provider) Name() string {
	return name
}

// Supported always reports true, the service falls back to an IP based position.
func (p *Provider) Supported(context.Context) bool {
	return true
}

func (p *Provider) Watch(ctx context.Context, opts acquire.WatchOptions) (<-chan acquire.Event, error) {
	return poll.Stream(ctx, name, p.period, opts, p.locate, p.logger), nil
}

func (p *Provider) locate(ctx context.Context) (acquire.Sample, error) {
	req := request{ConsiderIP: true, Accesspoints: p.wirelessNetworks()}

	ctxHTTP, cancelHTTP := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHTTP()
	result := new(APIResult)
	code, err := p.http.PostJSON(ctxHTTP, p.endpoint, result, req, nil)
	if err != nil {
		return acquire.Sample{}, classifyResponse(code, err)
	}

	return acquire.Sample{
		Latitude:       result.Location.Latitude,
		Longitude:      result.Location.Longitude,
		AccuracyMeters: result.Accuracy,
		CapturedAt:     time.Now(),
		Source:         name,
	}, nil
}

func (p *Provider) wirelessNetworks() []WirelessNetwork {
	if p.wlan == nil {
		return nil
	}
	aps, err := p.wlan.AccessPoints()
	if err != nil {
		p.logger.Debug("failed to scan WiFi access points, using IP based lookup", logger.Err(err))
		return nil
	}
	if len(aps) < minAccessPoints {
		p.logger.Debug("not enough WiFi access points, using IP based lookup", slog.Int("count", len(aps)))
		return nil
	}
	list := make([]WirelessNetwork, 0, len(aps))
	for _, ap := range aps {
		list = append(list, WirelessNetwork{
			Age:            ap.Age.Milliseconds(),
			MACAddress:     ap.BSSID,
			SignalStrength: ap.Signal,
		})
	}
	return list
}

// classifyResponse maps lookup failures to acquisition errors. A 404 means the service has no
// position for the submitted data, 401 and 403 mean the service refused the request.
func classifyResponse(code int, err error) error {
	if !errors.Is(err, httpclient.ErrUnexpectedStatus) {
		return fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", acquire.ErrPositionUnavailable, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", acquire.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
}
