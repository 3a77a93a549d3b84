// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wneessen/geofix/internal/acquire"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals handles the user signals until ctx is cancelled. SIGUSR1 starts a new
// acquisition attempt, SIGUSR2 logs the current state.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				s.logger.Debug("received signal, starting location acquisition", slog.String("signal", sig.String()))
				s.acquire(ctx)
			case syscall.SIGUSR2:
				s.logState()
			}
		}
	}
}

func (s *Service) logState() {
	state := s.controller.State()
	attrs := []any{
		slog.String("status", state.Status.String()), slog.String("source", s.controller.SourceName()),
		slog.Int("received", state.Received), slog.Int("accepted", state.Accepted),
	}
	if best := state.Best; best != nil {
		attrs = append(attrs, slog.Float64("latitude", best.Latitude), slog.Float64("longitude", best.Longitude),
			slog.Float64("accuracy", best.AccuracyMeters))
	}
	if state.Error != acquire.ErrorNone {
		attrs = append(attrs, slog.String("error", state.Error.String()))
	}
	s.logger.Info("current location state", attrs...)
}
