// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package web serves a small browser interface for the location controller. The page shows the
// current state, receives live updates over a websocket and can trigger a new attempt.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vorlif/spreak"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/job"
	"github.com/wneessen/geofix/internal/logger"
	"github.com/wneessen/geofix/internal/presenter"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	subscriberBuffer  = 8
)

//go:embed static/index.html
var static embed.FS

// Controller is the part of the acquisition controller the web interface needs.
type Controller interface {
	Start(ctx context.Context) error
	State() acquire.State
	Subscribe(size int) (<-chan acquire.State, func())
}

// Payload is the JSON document served by the state endpoints and pushed over the websocket.
type Payload struct {
	State acquire.State  `json:"state"`
	View  presenter.View `json:"view"`
}

type Server struct {
	listen     string
	controller Controller
	presenter  *presenter.Presenter
	localizer  *spreak.Localizer
	logger     *logger.Logger
	hub        *hub
	page       *template.Template
	upgrader   websocket.Upgrader
}

func New(listen string, ctrl Controller, pres *presenter.Presenter, lang *spreak.Localizer,
	log *logger.Logger,
) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("controller is required")
	}
	if pres == nil {
		return nil, errors.New("presenter is required")
	}
	if log == nil {
		log = logger.Discard()
	}
	page, err := template.ParseFS(static, "static/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page: %w", err)
	}

	return &Server{
		listen:     listen,
		controller: ctrl,
		presenter:  pres,
		localizer:  lang,
		logger:     log,
		hub:        newHub(log),
		page:       page,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

// Handler returns the routes of the web interface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/acquire", s.handleAcquire)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Run serves the web interface until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go s.forwardStates(ctx)
	go job.New("websocket_ping", pingInterval, s.hub.ping, s.logger).Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web interface listening", slog.String("address", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.hub.closeAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down web interface: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve web interface: %w", err)
	}
}

// forwardStates broadcasts every published snapshot to the websocket clients.
func (s *Server) forwardStates(ctx context.Context) {
	states, unsubscribe := s.controller.Subscribe(subscriberBuffer)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			s.hub.broadcast(s.payload(state))
		}
	}
}

func (s *Server) payload(state acquire.State) Payload {
	return Payload{State: state, View: s.presenter.BuildView(state)}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data := map[string]string{
		"Title":       "geofix",
		"GetLocation": s.localize("Get location"),
		"GoogleMaps":  s.localize("Open in Google Maps"),
		"OSM":         s.localize("Open in OpenStreetMap"),
		"Latitude":    s.localize("Latitude"),
		"Longitude":   s.localize("Longitude"),
		"Accuracy":    s.localize("Accuracy"),
		"Altitude":    s.localize("Altitude"),
		"Speed":       s.localize("Speed"),
		"Time":        s.localize("Time"),
		"Source":      s.localize("Source"),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		s.logger.Error("failed to render index page", logger.Err(err))
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.payload(s.controller.State()))
}

// handleAcquire starts a new attempt. While an attempt is searching the request is refused,
// the page keeps its button disabled in that case.
func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	if s.controller.State().Status == acquire.StatusSearching {
		s.writeJSON(w, http.StatusConflict, s.payload(s.controller.State()))
		return
	}
	if err := s.controller.Start(r.Context()); err != nil {
		s.logger.Warn("failed to start location acquisition", logger.Err(err))
	}
	s.writeJSON(w, http.StatusAccepted, s.payload(s.controller.State()))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logger.Err(err))
		return
	}
	s.hub.add(conn, s.payload(s.controller.State()))
	go s.hub.readPump(conn)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", logger.Err(err))
	}
}

func (s *Server) localize(msg string) string {
	if s.localizer == nil {
		return msg
	}
	return s.localizer.Get(msg)
}
