// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/logger"
)

const (
	name = "geoclue"

	serviceName     = "org.freedesktop.GeoClue2"
	managerPath     = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerIface    = "org.freedesktop.GeoClue2.Manager"
	clientIface     = "org.freedesktop.GeoClue2.Client"
	locationIface   = "org.freedesktop.GeoClue2.Location"
	propertiesIface = "org.freedesktop.DBus.Properties"
	locationUpdated = "LocationUpdated"

	dbusListNames            = "org.freedesktop.DBus.ListNames"
	dbusListActivatableNames = "org.freedesktop.DBus.ListActivatableNames"
	dbusErrAccessDenied      = "org.freedesktop.DBus.Error.AccessDenied"
	dbusErrServiceUnknown    = "org.freedesktop.DBus.Error.ServiceUnknown"

	// Accuracy levels as defined by the GClueAccuracyLevel enum
	accuracyLevelCity  uint32 = 4
	accuracyLevelExact uint32 = 8

	signalBufferSize = 8
	cleanupTimeout   = time.Second * 2
)

// Provider follows the location updates of a GeoClue2 client on the system bus.
type Provider struct {
	desktopID string
	logger    *logger.Logger
	connect   func() (*dbus.Conn, error)
}

func New(desktopID string, log *logger.Logger) *Provider {
	return &Provider{
		desktopID: desktopID,
		logger:    log,
		connect:   func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() },
	}
}

func (p *Provider) Name() string {
	return name
}

// Supported reports whether GeoClue2 is running or activatable on the system bus.
func (p *Provider) Supported(ctx context.Context) bool {
	conn, err := p.connect()
	if err != nil {
		p.logger.Debug("system bus not available", logger.Err(err))
		return false
	}
	defer func() {
		if err := conn.Close(); err != nil {
			p.logger.Error("failed to close system bus connection", logger.Err(err))
		}
	}()

	for _, method := range []string{dbusListNames, dbusListActivatableNames} {
		var names []string
		if err = conn.BusObject().CallWithContext(ctx, method, 0).Store(&names); err != nil {
			p.logger.Debug("failed to list bus names", slog.String("method", method), logger.Err(err))
			continue
		}
		if slices.Contains(names, serviceName) {
			return true
		}
	}
	return false
}

func (p *Provider) Watch(ctx context.Context, opts acquire.WatchOptions) (<-chan acquire.Event, error) {
	conn, err := p.connect()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to system bus: %w", acquire.ErrUnsupported, err)
	}
	clientPath, err := p.startClient(ctx, conn, opts)
	if err != nil {
		return nil, errors.Join(err, conn.Close())
	}

	out := make(chan acquire.Event)
	go p.stream(ctx, conn, clientPath, opts, out)
	return out, nil
}

// startClient creates and starts a GeoClue2 client and subscribes to its location updates.
func (p *Provider) startClient(ctx context.Context, conn *dbus.Conn, opts acquire.WatchOptions) (dbus.ObjectPath, error) {
	var clientPath dbus.ObjectPath
	manager := conn.Object(serviceName, managerPath)
	if err := manager.CallWithContext(ctx, managerIface+".GetClient", 0).Store(&clientPath); err != nil {
		return "", fmt.Errorf("failed to get geoclue client: %w", classifyDBusError(err))
	}

	level := accuracyLevelExact
	if !opts.HighAccuracy {
		level = accuracyLevelCity
	}
	client := conn.Object(serviceName, clientPath)
	if err := client.SetProperty(clientIface+".DesktopId", dbus.MakeVariant(p.desktopID)); err != nil {
		return "", fmt.Errorf("failed to set desktop id: %w", classifyDBusError(err))
	}
	if err := client.SetProperty(clientIface+".RequestedAccuracyLevel", dbus.MakeVariant(level)); err != nil {
		return "", fmt.Errorf("failed to set requested accuracy level: %w", classifyDBusError(err))
	}

	if err := conn.AddMatchSignal(dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientIface), dbus.WithMatchMember(locationUpdated)); err != nil {
		return "", fmt.Errorf("%w: failed to subscribe to location updates: %w", acquire.ErrPositionUnavailable, err)
	}
	if err := client.CallWithContext(ctx, clientIface+".Start", 0).Err; err != nil {
		return "", fmt.Errorf("failed to start geoclue client: %w", classifyDBusError(err))
	}
	return clientPath, nil
}

func (p *Provider) stream(ctx context.Context, conn *dbus.Conn, clientPath dbus.ObjectPath,
	opts acquire.WatchOptions, out chan<- acquire.Event,
) {
	defer close(out)
	sigCh := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sigCh)
	defer p.stopClient(ctx, conn, clientPath, sigCh)

	watchdog := acquire.NewWatchdog(opts.Timeout)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watchdog.C():
			acquire.Emit(ctx, out, acquire.Event{
				Err: fmt.Errorf("%w: no geoclue location within %s", acquire.ErrTimeout, opts.Timeout),
			})
			return
		case sig, ok := <-sigCh:
			if !ok {
				acquire.Emit(ctx, out, acquire.Event{
					Err: fmt.Errorf("%w: system bus connection closed", acquire.ErrPositionUnavailable),
				})
				return
			}
			path, ok := locationPath(sig, clientPath)
			if !ok {
				continue
			}
			props := make(map[string]dbus.Variant)
			if err := conn.Object(serviceName, path).CallWithContext(ctx, propertiesIface+".GetAll", 0,
				locationIface).Store(&props); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("failed to read geoclue location", slog.String("path", string(path)), logger.Err(err))
				continue
			}
			now := time.Now()
			sample, err := sampleFromProperties(props, now)
			if err != nil {
				p.logger.Error("failed to decode geoclue location", logger.Err(err))
				continue
			}
			if !opts.Fresh(sample.CapturedAt, now) {
				p.logger.Debug("dropping stale geoclue location", slog.Time("timestamp", sample.CapturedAt))
				continue
			}
			if !acquire.Emit(ctx, out, acquire.Event{Sample: sample}) {
				return
			}
			watchdog.Reset()
		}
	}
}

// stopClient stops and deletes the GeoClue2 client and closes the bus connection.
func (p *Provider) stopClient(ctx context.Context, conn *dbus.Conn, clientPath dbus.ObjectPath, sigCh chan *dbus.Signal) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	conn.RemoveSignal(sigCh)
	if err := conn.Object(serviceName, clientPath).CallWithContext(ctx, clientIface+".Stop", 0).Err; err != nil {
		p.logger.Debug("failed to stop geoclue client", logger.Err(err))
	}
	if err := conn.Object(serviceName, managerPath).CallWithContext(ctx, managerIface+".DeleteClient", 0,
		clientPath).Err; err != nil {
		p.logger.Debug("failed to delete geoclue client", logger.Err(err))
	}
	if err := conn.Close(); err != nil {
		p.logger.Error("failed to close system bus connection", logger.Err(err))
	}
}

// locationPath extracts the new location object path of a LocationUpdated signal for the given client.
func locationPath(sig *dbus.Signal, clientPath dbus.ObjectPath) (dbus.ObjectPath, bool) {
	if sig == nil || sig.Path != clientPath || sig.Name != clientIface+"."+locationUpdated {
		return "", false
	}
	if len(sig.Body) != 2 {
		return "", false
	}
	path, ok := sig.Body[1].(dbus.ObjectPath)
	if !ok || !path.IsValid() {
		return "", false
	}
	return path, true
}

// sampleFromProperties converts the properties of a GeoClue2 Location object into a Sample.
func sampleFromProperties(props map[string]dbus.Variant, now time.Time) (acquire.Sample, error) {
	sample := acquire.Sample{Source: name, CapturedAt: now}
	var err error
	if sample.Latitude, err = floatProperty(props, "Latitude"); err != nil {
		return sample, err
	}
	if sample.Longitude, err = floatProperty(props, "Longitude"); err != nil {
		return sample, err
	}
	if sample.AccuracyMeters, err = floatProperty(props, "Accuracy"); err != nil {
		return sample, err
	}

	// GeoClue2 marks unknown values with -DBL_MAX for the altitude and negative values otherwise
	if alt, err := floatProperty(props, "Altitude"); err == nil && alt != -math.MaxFloat64 {
		sample.Altitude.Set(alt)
	}
	if speed, err := floatProperty(props, "Speed"); err == nil && speed >= 0 {
		sample.Speed.Set(speed)
	}
	if heading, err := floatProperty(props, "Heading"); err == nil && heading >= 0 {
		sample.Heading.Set(heading)
	}
	if ts, ok := timestampProperty(props); ok {
		sample.CapturedAt = ts
	}
	return sample, nil
}

func floatProperty(props map[string]dbus.Variant, key string) (float64, error) {
	v, ok := props[key]
	if !ok {
		return 0, fmt.Errorf("location property %q missing", key)
	}
	f, ok := v.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("location property %q has unexpected type %s", key, v.Signature())
	}
	return f, nil
}

// timestampProperty decodes the (tt) Timestamp property holding seconds and microseconds.
func timestampProperty(props map[string]dbus.Variant) (time.Time, bool) {
	v, ok := props["Timestamp"]
	if !ok {
		return time.Time{}, false
	}
	fields, ok := v.Value().([]interface{})
	if !ok || len(fields) != 2 {
		return time.Time{}, false
	}
	sec, ok := fields[0].(uint64)
	if !ok {
		return time.Time{}, false
	}
	usec, ok := fields[1].(uint64)
	if !ok || sec == 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)), true //nolint:gosec
}

// classifyDBusError wraps a D-Bus error with the matching acquisition error kind.
func classifyDBusError(err error) error {
	switch dbusErrorName(err) {
	case dbusErrAccessDenied:
		return fmt.Errorf("%w: %w", acquire.ErrPermissionDenied, err)
	case dbusErrServiceUnknown:
		return fmt.Errorf("%w: %w", acquire.ErrUnsupported, err)
	default:
		return fmt.Errorf("%w: %w", acquire.ErrPositionUnavailable, err)
	}
}

func dbusErrorName(err error) string {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) && dbusErrPtr != nil {
		return dbusErrPtr.Name
	}
	return ""
}
