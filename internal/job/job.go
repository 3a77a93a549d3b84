// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package job runs lightweight periodic tasks that live outside the gocron scheduler, like the
// websocket keep-alive of the web interface.
package job

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wneessen/geofix/internal/logger"
)

// Job runs a task at a fixed interval. A tick that fires while the previous run is still in
// progress is skipped.
type Job struct {
	name     string
	interval time.Duration
	task     func(context.Context)
	logger   *logger.Logger

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
}

func New(name string, interval time.Duration, task func(context.Context), log *logger.Logger) *Job {
	if log == nil {
		log = logger.Discard()
	}
	return &Job{
		name:     name,
		interval: interval,
		task:     task,
		logger:   log,
	}
}

// Start runs the job until ctx is cancelled. It returns once a run in progress has finished.
func (j *Job) Start(ctx context.Context) {
	if j.task == nil || j.interval <= 0 {
		j.logger.Debug("job not started", slog.String("job", j.name), slog.Duration("interval", j.interval))
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !j.running.CompareAndSwap(false, true) {
				j.skipped.Add(1)
				j.logger.Debug("job still running, skipping tick", slog.String("job", j.name))
				continue
			}
			j.runs.Add(1)
			wg.Go(func() {
				defer j.running.Store(false)
				j.task(ctx)
			})
		}
	}
}

// Runs returns the number of started runs.
func (j *Job) Runs() uint64 {
	return j.runs.Load()
}

// Skipped returns the number of ticks dropped because the previous run was still in progress.
func (j *Job) Skipped() uint64 {
	return j.skipped.Load()
}
