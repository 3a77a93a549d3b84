// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/godbus/dbus/v5"
	"github.com/vorlif/spreak"

	"github.com/wneessen/geofix/internal/acquire"
	"github.com/wneessen/geofix/internal/config"
	"github.com/wneessen/geofix/internal/logger"
	"github.com/wneessen/geofix/internal/presenter"
	"github.com/wneessen/geofix/internal/web"
)

const subscriberBuffer = 8

// ErrAcquisitionFailed is returned by Once when the attempt did not produce a position.
var ErrAcquisitionFailed = errors.New("location acquisition failed")

type Service struct {
	config     *config.Config
	controller *acquire.Controller
	logger     *logger.Logger
	presenter  *presenter.Presenter
	scheduler  gocron.Scheduler
	web        *web.Server
	SignalSrc  signalSource
	connectBus func(context.Context) (*dbus.Conn, error)

	outputLock sync.Mutex
	output     io.Writer
}

func New(conf *config.Config, log *logger.Logger, lang *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if conf == nil {
		return nil, errors.New("config is required")
	}

	pres, err := presenter.New(conf, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	source, err := selectSource(conf, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create location source: %w", err)
	}

	service := &Service{
		config:     conf,
		controller: acquire.New(source, log, controllerOptions(conf)...),
		logger:     log,
		presenter:  pres,
		SignalSrc:  stdLibSignalSource{},
		connectBus: connectSystemBus,
		output:     os.Stdout,
	}

	if conf.Web.Listen != "" {
		service.web, err = web.New(conf.Web.Listen, service.controller, pres, lang, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create web interface: %w", err)
		}
	}

	return service, nil
}

func controllerOptions(conf *config.Config) []acquire.Option {
	return []acquire.Option{
		acquire.WithTimeout(conf.Acquisition.Timeout),
		acquire.WithAcceptThreshold(conf.Acquisition.AcceptThreshold),
		acquire.WithExcellentThreshold(conf.Acquisition.ExcellentThreshold),
		acquire.WithStrictImprovement(conf.Acquisition.StrictImprovement),
		acquire.WithWatchOptions(acquire.WatchOptions{
			HighAccuracy: !conf.Acquisition.DisableHighAccuracy,
			Timeout:      conf.Acquisition.Timeout,
			MaximumAge:   conf.Acquisition.MaximumAge,
		}),
	}
}

// Run starts the first acquisition attempt and keeps the bar module updated until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.scheduler = scheduler
	if err = s.createScheduledJobs(ctx); err != nil {
		if shutdownErr := s.scheduler.Shutdown(); shutdownErr != nil {
			s.logger.Debug("failed to shut down scheduler", logger.Err(shutdownErr))
		}
		return err
	}
	s.scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	defer s.SignalSrc.Stop(sigChan)
	go s.HandleSignals(ctx, sigChan)

	go s.monitorSleepResume(ctx)

	var wg sync.WaitGroup
	if s.web != nil {
		wg.Go(func() {
			if err := s.web.Run(ctx); err != nil {
				s.logger.Error("web interface failed", logger.Err(err))
			}
		})
	}

	states, unsubscribe := s.controller.Subscribe(subscriberBuffer)
	go s.processStateUpdates(ctx, states)

	s.acquire(ctx)

	<-ctx.Done()
	s.controller.CancelWithReason(acquire.CancelReasonTimeout)
	unsubscribe()
	wg.Wait()
	return s.scheduler.Shutdown()
}

// Once runs a single acquisition attempt, writes the final state as JSON and returns
// ErrAcquisitionFailed if no position was found.
func (s *Service) Once(ctx context.Context) (acquire.State, error) {
	if err := s.controller.Start(ctx); err != nil {
		s.logger.Debug("location acquisition could not be started", logger.Err(err))
	}
	state, err := s.controller.Wait(ctx)
	if err != nil {
		s.controller.CancelWithReason(acquire.CancelReasonTimeout)
		state = s.controller.State()
	}

	view := s.presenter.BuildView(state)
	result := struct {
		acquire.State
		Message string `json:"message,omitempty"`
		MapURL  string `json:"map_url,omitempty"`
	}{State: state, Message: view.Error, MapURL: view.MapURL}
	s.outputLock.Lock()
	encErr := json.NewEncoder(s.output).Encode(result)
	s.outputLock.Unlock()
	if encErr != nil {
		return state, fmt.Errorf("failed to encode state: %w", encErr)
	}

	if state.Status != acquire.StatusSucceeded {
		if state.Err != nil {
			return state, fmt.Errorf("%w: %w", ErrAcquisitionFailed, state.Err)
		}
		return state, ErrAcquisitionFailed
	}
	return state, nil
}

func (s *Service) createScheduledJobs(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Intervals.Output, s.printState,
		"state_output_job"); err != nil {
		return err
	}
	if s.config.Intervals.Reacquire > 0 {
		return s.createScheduledJob(ctx, s.config.Intervals.Reacquire, s.acquire, "reacquire_job")
	}
	return nil
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// acquire starts a new attempt, replacing a running one.
func (s *Service) acquire(ctx context.Context) {
	if err := s.controller.Start(ctx); err != nil {
		s.logger.Warn("failed to start location acquisition", slog.String("source", s.controller.SourceName()),
			logger.Err(err))
	}
}

// printState renders the current state and writes it to the output as a waybar JSON line.
func (s *Service) printState(context.Context) {
	s.printFor(s.controller.State())
}

func (s *Service) printFor(state acquire.State) {
	out, err := s.presenter.Render(s.presenter.BuildView(state))
	if err != nil {
		s.logger.Error("failed to render state", logger.Err(err))
		return
	}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if err = json.NewEncoder(s.output).Encode(out); err != nil {
		s.logger.Error("failed to encode output", logger.Err(err))
	}
}

// processStateUpdates prints every state transition right away instead of waiting for the next
// output tick.
func (s *Service) processStateUpdates(ctx context.Context, states <-chan acquire.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			s.printFor(state)
		}
	}
}
