// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/geofix/internal/logger"
)

const (
	logindInterface = "org.freedesktop.login1.Manager"
	logindMember    = "PrepareForSleep"

	debounceWindow   = 2 * time.Second
	signalBufferSize = 8

	busReconnectDelay   = 5 * time.Second
	resumeSettleDelay   = 10 * time.Second
	reconnectDelay      = 2 * time.Second
	subscribeRetryDelay = 10 * time.Second
)

// monitorSleepResume re-acquires the location whenever logind reports that the system woke up.
// A lost bus connection is re-established until ctx is cancelled.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResume atomic.Int64

	for {
		conn := s.connectToSystemBus(ctx)
		if conn == nil {
			return
		}
		if !s.subscribeSleepSignal(ctx, conn) {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		s.logger.Debug("watching for system resume", slog.String("interface", logindInterface),
			slog.String("member", logindMember))
		s.handleSleepSignals(ctx, sigCh, &lastResume)

		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func connectSystemBus(ctx context.Context) (*dbus.Conn, error) {
	return dbus.ConnectSystemBus(dbus.WithContext(ctx))
}

// connectToSystemBus retries until a system bus connection is established. It returns nil once
// ctx is cancelled.
func (s *Service) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := s.connectBus(ctx)
		if err == nil {
			return conn
		}
		s.logger.Debug("system bus unavailable, retrying", logger.Err(err))
		select {
		case <-time.After(busReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// subscribeSleepSignal adds the match rule for the logind sleep signal. On failure the connection
// is closed and false is returned after a retry delay.
func (s *Service) subscribeSleepSignal(ctx context.Context, conn *dbus.Conn) bool {
	err := conn.AddMatchSignal(dbus.WithMatchInterface(logindInterface), dbus.WithMatchMember(logindMember))
	if err == nil {
		return true
	}

	s.logger.Error("failed to subscribe to sleep signal", slog.String("interface", logindInterface),
		slog.String("member", logindMember), logger.Err(err))
	if err = conn.Close(); err != nil {
		s.logger.Debug("failed to close system bus connection", logger.Err(err))
	}
	select {
	case <-time.After(subscribeRetryDelay):
	case <-ctx.Done():
	}
	return false
}

func (s *Service) handleSleepSignals(ctx context.Context, sigCh <-chan *dbus.Signal, lastResume *atomic.Int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			if resumed(sig) {
				s.handleResumeEvent(ctx, lastResume)
			}
		}
	}
}

// resumed reports whether sig is a PrepareForSleep(false) signal, sent after the system woke up.
func resumed(sig *dbus.Signal) bool {
	if sig == nil || sig.Name != logindInterface+"."+logindMember || len(sig.Body) != 1 {
		return false
	}
	sleeping, ok := sig.Body[0].(bool)
	return ok && !sleeping
}

// handleResumeEvent starts a new attempt once the system had time to bring its location
// hardware and network back up. Resume events within the debounce window are ignored.
func (s *Service) handleResumeEvent(ctx context.Context, lastResume *atomic.Int64) {
	now := time.Now().UnixNano()
	if now-lastResume.Load() < int64(debounceWindow) {
		return
	}
	lastResume.Store(now)

	select {
	case <-ctx.Done():
		return
	case <-time.After(resumeSettleDelay):
	}
	s.logger.Debug("system resumed from sleep, re-acquiring location")
	s.acquire(ctx)
}
