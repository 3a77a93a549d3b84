// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package auto selects the most precise location source available on the host.
package auto

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/logger"
)

const name = "auto"

// Source delegates to the first supported candidate. Candidates are probed in order on every
// Supported call, so a receiver plugged in between two attempts is picked up.
type Source struct {
	candidates []acquire.Source
	logger     *logger.Logger

	mu       sync.RWMutex
	selected acquire.Source
}

// New returns a Source probing the candidates in the given order, most precise first.
func New(log *logger.Logger, candidates ...acquire.Source) *Source {
	return &Source{candidates: candidates, logger: log}
}

// Name returns the name of the selected candidate, or "auto" before the first selection.
func (s *Source) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return name
	}
	return s.selected.Name()
}

func (s *Source) Supported(ctx context.Context) bool {
	for _, candidate := range s.candidates {
		if candidate == nil || !candidate.Supported(ctx) {
			continue
		}
		s.mu.Lock()
		changed := s.selected != candidate
		s.selected = candidate
		s.mu.Unlock()
		if changed {
			s.logger.Info("location source selected", slog.String("source", candidate.Name()))
		}
		return true
	}
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	return false
}

func (s *Source) Watch(ctx context.Context, opts acquire.WatchOptions) (<-chan acquire.Event, error) {
	s.mu.RLock()
	selected := s.selected
	s.mu.RUnlock()
	if selected == nil && s.Supported(ctx) {
		s.mu.RLock()
		selected = s.selected
		s.mu.RUnlock()
	}
	if selected == nil {
		return nil, fmt.Errorf("no supported location source: %w", acquire.ErrUnsupported)
	}
	return selected.Watch(ctx, opts)
}
