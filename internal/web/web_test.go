// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/config"
	"github.com/wneessen/geofix/internal/i18n"
	"github.com/wneessen/geofix/internal/logger"
	"github.com/wneessen/geofix/internal/presenter"
)

type response struct {
	State struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"state"`
	View presenter.View `json:"view"`
}

func TestNew(t *testing.T) {
	t.Run("new server succeeds", func(t *testing.T) {
		srv := testServer(t, &fakeController{})
		if srv == nil {
			t.Fatal("expected server to be non-nil")
		}
	})
	t.Run("new server without controller fails", func(t *testing.T) {
		if _, err := New(":0", nil, testPresenter(t), nil, logger.Discard()); err == nil {
			t.Fatal("expected server creation to fail")
		}
	})
	t.Run("new server without presenter fails", func(t *testing.T) {
		if _, err := New(":0", &fakeController{}, nil, nil, logger.Discard()); err == nil {
			t.Fatal("expected server creation to fail")
		}
	})
}

func TestServer_Handler(t *testing.T) {
	t.Run("index page is served", func(t *testing.T) {
		srv := testServer(t, &fakeController{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		for _, want := range []string{"Get location", "Open in Google Maps", "Open in OpenStreetMap"} {
			if !strings.Contains(rec.Body.String(), want) {
				t.Errorf("expected index page to contain %q", want)
			}
		}
	})
	t.Run("unknown paths are not found", func(t *testing.T) {
		srv := testServer(t, &fakeController{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
	t.Run("state endpoint returns the current state", func(t *testing.T) {
		ctrl := &fakeController{state: testState()}
		srv := testServer(t, ctrl)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		resp := decode(t, rec.Body)
		if resp.State.Status != "succeeded" {
			t.Errorf("expected status to be %q, got %q", "succeeded", resp.State.Status)
		}
		if resp.View.Latitude != "-6.20880000" {
			t.Errorf("expected latitude to be %q, got %q", "-6.20880000", resp.View.Latitude)
		}
		if resp.View.AccuracyClass != presenter.AccuracyVeryAccurate {
			t.Errorf("expected accuracy class to be %q, got %q", presenter.AccuracyVeryAccurate,
				resp.View.AccuracyClass)
		}
	})
	t.Run("acquire endpoint starts an attempt", func(t *testing.T) {
		ctrl := &fakeController{}
		srv := testServer(t, ctrl)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/acquire", nil))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
		}
		if ctrl.startCount() != 1 {
			t.Errorf("expected one start, got %d", ctrl.startCount())
		}
		resp := decode(t, rec.Body)
		if resp.State.Status != "searching" {
			t.Errorf("expected status to be %q, got %q", "searching", resp.State.Status)
		}
	})
	t.Run("acquire endpoint refuses while searching", func(t *testing.T) {
		ctrl := &fakeController{state: acquire.State{Status: acquire.StatusSearching}}
		srv := testServer(t, ctrl)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/acquire", nil))
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
		}
		if ctrl.startCount() != 0 {
			t.Errorf("expected no start, got %d", ctrl.startCount())
		}
	})
	t.Run("acquire endpoint requires POST", func(t *testing.T) {
		srv := testServer(t, &fakeController{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/acquire", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestServer_WebSocket(t *testing.T) {
	t.Run("clients receive the current state and updates", func(t *testing.T) {
		ctrl := &fakeController{updates: make(chan acquire.State, 1)}
		srv := testServer(t, ctrl)
		httpSrv := httptest.NewServer(srv.Handler())
		defer httpSrv.Close()

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		go srv.forwardStates(ctx)

		wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to dial websocket: %s", err)
		}
		defer func() { _ = conn.Close() }()
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var initial response
		if err = conn.ReadJSON(&initial); err != nil {
			t.Fatalf("failed to read initial message: %s", err)
		}
		if initial.State.Status != "idle" {
			t.Errorf("expected initial status to be %q, got %q", "idle", initial.State.Status)
		}

		ctrl.updates <- testState()
		var update response
		if err = conn.ReadJSON(&update); err != nil {
			t.Fatalf("failed to read update: %s", err)
		}
		if !update.View.HasLocation {
			t.Error("expected update to carry a location")
		}
		if update.View.Source != "gpsd" {
			t.Errorf("expected source to be %q, got %q", "gpsd", update.View.Source)
		}
	})
	t.Run("closed clients are removed from the hub", func(t *testing.T) {
		srv := testServer(t, &fakeController{})
		httpSrv := httptest.NewServer(srv.Handler())
		defer httpSrv.Close()

		wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to dial websocket: %s", err)
		}
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err = conn.ReadMessage(); err != nil {
			t.Fatalf("failed to read initial message: %s", err)
		}
		_ = conn.Close()

		deadline := time.Now().Add(5 * time.Second)
		for srv.hub.count() > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if srv.hub.count() != 0 {
			t.Errorf("expected hub to be empty, got %d clients", srv.hub.count())
		}
	})
}

func TestServer_Run(t *testing.T) {
	t.Run("server shuts down on context cancel", func(t *testing.T) {
		srv := testServer(t, &fakeController{})
		srv.listen = "127.0.0.1:0"
		ctx, cancel := context.WithCancel(t.Context())
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Run(ctx) }()

		time.Sleep(50 * time.Millisecond)
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("expected clean shutdown, got %s", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("server did not shut down")
		}
	})
	t.Run("invalid listen address fails", func(t *testing.T) {
		srv := testServer(t, &fakeController{})
		srv.listen = "invalid-address"
		if err := srv.Run(t.Context()); err == nil {
			t.Fatal("expected server to fail")
		}
	})
}

type fakeController struct {
	mu      sync.Mutex
	state   acquire.State
	starts  int
	updates chan acquire.State
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.state = acquire.State{Status: acquire.StatusSearching, StartedAt: time.Now()}
	return nil
}

func (f *fakeController) State() acquire.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Subscribe(int) (<-chan acquire.State, func()) {
	if f.updates == nil {
		f.updates = make(chan acquire.State)
	}
	return f.updates, func() {}
}

func (f *fakeController) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func testState() acquire.State {
	return acquire.State{
		Status: acquire.StatusSucceeded,
		Best: &acquire.Sample{
			Latitude: -6.2088, Longitude: 106.8456, AccuracyMeters: 4.2,
			CapturedAt: time.Now(), Source: "gpsd",
		},
	}
}

func decode(t *testing.T, body io.Reader) response {
	t.Helper()
	var resp response
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %s", err)
	}
	return resp
}

func testPresenter(t *testing.T) *presenter.Presenter {
	t.Helper()
	conf, err := config.New()
	if err != nil {
		t.Fatalf("failed to create config: %s", err)
	}
	lang, err := i18n.New("en")
	if err != nil {
		t.Fatalf("failed to create localizer: %s", err)
	}
	pres, err := presenter.New(conf, lang)
	if err != nil {
		t.Fatalf("failed to create presenter: %s", err)
	}
	return pres
}

func testServer(t *testing.T, ctrl Controller) *Server {
	t.Helper()
	lang, err := i18n.New("en")
	if err != nil {
		t.Fatalf("failed to create localizer: %s", err)
	}
	srv, err := New(":0", ctrl, testPresenter(t), lang, logger.Discard())
	if err != nil {
		t.Fatalf("failed to create server: %s", err)
	}
	return srv
}
