// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package acquire implements the location acquisition controller. A Controller drives exactly
// one position stream at a time, refines the position until it is accurate enough or the
// deadline passes, and publishes immutable State snapshots for the presentation layer.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/geofix/internal/logger"
)

// ErrStreamClosed is reported when a source ends its stream while an attempt is still searching.
var ErrStreamClosed = fmt.Errorf("position stream closed unexpectedly: %w", ErrPositionUnavailable)

// ErrDeadline is reported when the attempt deadline passed without any accepted sample. It
// classifies as ErrorTimeout.
var ErrDeadline = fmt.Errorf("acquisition deadline exceeded: %w", ErrTimeout)

// ErrInterrupted is reported when an attempt without an accepted sample is cancelled with
// CancelReasonTimeout before its deadline. It classifies as ErrorTimeout.
var ErrInterrupted = fmt.Errorf("acquisition interrupted: %w", ErrTimeout)

// CancelReason tells Cancel why the attempt is being stopped.
type CancelReason int

const (
	// CancelReasonAbort is a user abort. An attempt without a sample returns to idle.
	CancelReasonAbort CancelReason = iota
	// CancelReasonTimeout treats the cancellation like a timeout. An attempt without a sample fails
	// with ErrInterrupted.
	CancelReasonTimeout
)

// Controller owns the lifecycle of location acquisition attempts.
type Controller struct {
	source Source
	logger *logger.Logger
	opts   options

	// mu serializes every transition. Events carry the generation of the attempt they belong
	// to and are dropped once that attempt was superseded or reached a terminal state.
	mu      sync.Mutex
	gen     uint64
	attempt *attempt
	done    chan struct{}

	state atomic.Pointer[State]

	subMu sync.Mutex
	subs  map[chan State]struct{}
}

type attempt struct {
	gen    uint64
	cancel context.CancelFunc
	timer  *time.Timer
	done   chan struct{}
}

// New returns an idle Controller for the given source. A nil source makes every attempt fail
// with ErrorUnsupported.
func New(source Source, log *logger.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logger.Discard()
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	done := make(chan struct{})
	close(done)
	c := &Controller{
		source: source,
		logger: log,
		opts:   o,
		done:   done,
		subs:   make(map[chan State]struct{}),
	}
	c.state.Store(&State{Status: StatusIdle})
	return c
}

// SourceName returns the name of the controller's source.
func (c *Controller) SourceName() string {
	if c.source == nil {
		return "none"
	}
	return c.source.Name()
}

// State returns the current snapshot. It never blocks on an ongoing transition.
func (c *Controller) State() State {
	return *c.state.Load()
}

// Start begins a new attempt. A running attempt is cancelled first and its stream and timer
// are released before the new stream is opened. The position stream is owned by the controller
// and outlives ctx, which is only used while opening the stream.
//
// Start returns ErrUnsupported if the host has no location-sensing capability; the attempt then
// fails without ever searching. The capability probe runs without holding the controller lock.
func (c *Controller) Start(ctx context.Context) error {
	supported := c.source != nil && c.source.Supported(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.gen++
	gen := c.gen
	done := make(chan struct{})
	c.done = done
	now := time.Now()
	base := State{AttemptID: uuid.New(), StartedAt: now}

	if !supported {
		c.logger.Warn("no location source available", slog.String("source", c.SourceName()))
		c.failLocked(base, done, ErrUnsupported)
		return ErrUnsupported
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events, err := c.source.Watch(streamCtx, c.opts.watch)
	if err != nil {
		cancel()
		c.failLocked(base, done, err)
		return fmt.Errorf("failed to open %s position stream: %w", c.source.Name(), err)
	}

	c.attempt = &attempt{
		gen:    gen,
		cancel: cancel,
		done:   done,
		timer:  time.AfterFunc(c.opts.timeout, func() { c.expire(gen) }),
	}
	base.Status = StatusSearching
	c.publishLocked(base)
	c.logger.Debug("location acquisition started", slog.String("attempt", base.AttemptID.String()),
		slog.String("source", c.source.Name()), slog.Duration("timeout", c.opts.timeout))

	go c.consume(gen, events)
	return nil
}

// Cancel stops a running attempt as a user abort. It is a no-op if no attempt is running.
func (c *Controller) Cancel() {
	c.CancelWithReason(CancelReasonAbort)
}

// CancelWithReason stops the running attempt's stream and timer. An attempt that already
// accepted a sample succeeds with it. Without a sample the attempt returns to idle for
// CancelReasonAbort and fails with ErrInterrupted for CancelReasonTimeout.
func (c *Controller) CancelWithReason(reason CancelReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt == nil {
		return
	}

	cur := c.State()
	switch {
	case cur.HasBest():
		c.finishLocked(cur, StatusSucceeded, nil)
	case reason == CancelReasonTimeout:
		c.finishLocked(cur, StatusFailed, ErrInterrupted)
	default:
		a := c.attempt
		c.stopLocked()
		next := State{AttemptID: cur.AttemptID, Status: StatusIdle, Received: cur.Received, Dropped: cur.Dropped}
		c.publishLocked(next)
		close(a.done)
	}
	c.logger.Debug("location acquisition cancelled", slog.String("attempt", cur.AttemptID.String()))
}

// Wait blocks until the current attempt reaches a terminal state, the controller becomes idle,
// or ctx is done. It returns the latest snapshot.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Subscribe returns a channel that receives every published snapshot, starting with the
// current one, and a function that ends the subscription. A slow subscriber loses
// intermediate snapshots but always sees the latest one.
func (c *Controller) Subscribe(size int) (<-chan State, func()) {
	if size < 1 {
		size = 1
	}
	ch := make(chan State, size)

	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.State()
	c.subMu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			c.subMu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// consume forwards the events of one stream until the attempt is no longer active.
func (c *Controller) consume(gen uint64, events <-chan Event) {
	for ev := range events {
		if !c.handle(gen, ev) {
			return
		}
	}
	c.handleClosed(gen)
}

// handle applies a single stream event. It returns false once the attempt is no longer active.
func (c *Controller) handle(gen uint64, ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(gen) {
		return false
	}

	cur := c.State()
	if ev.Err != nil {
		c.logger.Debug("location source reported a failure", slog.String("attempt", cur.AttemptID.String()),
			logger.Err(ev.Err))
		c.finishLocked(cur, StatusFailed, ev.Err)
		return false
	}

	next := cur
	next.Received++
	sample := ev.Sample
	if !sample.Valid() {
		next.Dropped++
		c.logger.Debug("dropping invalid sample", slog.Float64("latitude", sample.Latitude),
			slog.Float64("longitude", sample.Longitude), slog.Float64("accuracy", sample.AccuracyMeters))
		c.publishLocked(next)
		return true
	}
	if !c.accepts(cur.Best, sample) {
		c.publishLocked(next)
		return true
	}

	next.Best = &sample
	next.Accepted++
	c.logger.Debug("sample accepted", slog.String("attempt", cur.AttemptID.String()),
		slog.Float64("accuracy", sample.AccuracyMeters), slog.String("source", sample.Source))
	if sample.AccuracyMeters < c.opts.excellentThreshold {
		c.finishLocked(next, StatusSucceeded, nil)
		return false
	}
	c.publishLocked(next)
	return true
}

// accepts implements the sample acceptance policy. The first sample is always accepted, later
// ones only below the accept threshold. Unless strict improvement is enabled, a later sample
// may be less accurate than the current best.
func (c *Controller) accepts(best *Sample, s Sample) bool {
	if best == nil {
		return true
	}
	if s.AccuracyMeters >= c.opts.acceptThreshold {
		return false
	}
	if c.opts.strictImprovement && s.AccuracyMeters >= best.AccuracyMeters {
		return false
	}
	return true
}

// handleClosed handles a stream that ended on its own.
func (c *Controller) handleClosed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(gen) {
		return
	}
	c.finishLocked(c.State(), StatusFailed, ErrStreamClosed)
}

// expire is the deadline callback.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(gen) {
		return
	}

	cur := c.State()
	if cur.HasBest() {
		c.finishLocked(cur, StatusSucceeded, nil)
		return
	}
	c.finishLocked(cur, StatusFailed, ErrDeadline)
}

func (c *Controller) activeLocked(gen uint64) bool {
	return c.attempt != nil && c.attempt.gen == gen
}

// stopLocked releases the stream and timer of the running attempt. Because the attempt is
// detached here, each stream and timer is stopped exactly once.
func (c *Controller) stopLocked() {
	if c.attempt == nil {
		return
	}
	c.attempt.timer.Stop()
	c.attempt.cancel()
	c.attempt = nil
}

// finishLocked moves the running attempt into a terminal state.
func (c *Controller) finishLocked(next State, status Status, err error) {
	a := c.attempt
	c.stopLocked()

	next.Status = status
	next.Err = err
	next.Error = Classify(err)
	next.FinishedAt = time.Now()
	c.publishLocked(next)
	if a != nil {
		close(a.done)
	}

	attrs := []any{
		slog.String("attempt", next.AttemptID.String()), slog.String("status", status.String()),
		slog.Duration("elapsed", next.Elapsed()), slog.Int("received", next.Received),
		slog.Int("accepted", next.Accepted),
	}
	if next.HasBest() {
		attrs = append(attrs, slog.Float64("accuracy", next.Best.AccuracyMeters))
	}
	if err != nil && !errors.Is(err, ErrUnsupported) {
		attrs = append(attrs, logger.Err(err))
	}
	c.logger.Info("location acquisition finished", attrs...)
}

// failLocked fails an attempt that never started searching.
func (c *Controller) failLocked(base State, done chan struct{}, err error) {
	base.Status = StatusFailed
	base.Err = err
	base.Error = Classify(err)
	base.FinishedAt = base.StartedAt
	c.publishLocked(base)
	close(done)
}

func (c *Controller) publishLocked(next State) {
	c.state.Store(&next)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- next:
		default:
			// Drop the oldest snapshot so the latest one is never lost.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
}
