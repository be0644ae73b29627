// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package scheduler runs a generic interval task with overlap prevention,
// in the style of the ticker loop in Aman-CERP-amanmcp's
// internal/watcher/polling.go, generalised away from file-polling into a
// reusable primitive (spec.md §4.B) used both by the pressure-driven
// concurrency monitor and by any periodic maintenance sweep.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nskitch/atlas/internal/logger"
)

// TickFunc is the unit of work a Scheduler runs on each interval.
type TickFunc func(ctx context.Context) error

// minInterval is the configurable clamp floor from spec.md §4.B.
const minInterval = 10 * time.Millisecond

// Scheduler runs TickFunc on a fixed interval. At most one tick executes at
// any instant; a tick still running when the next interval fires is skipped,
// not queued.
type Scheduler struct {
	fn  TickFunc
	min time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown atomic.Bool
	ticking  atomic.Bool
}

// New builds a Scheduler around fn. minIntervalOverride, if non-zero,
// replaces the default 10ms floor.
func New(fn TickFunc, minIntervalOverride time.Duration) *Scheduler {
	m := minInterval
	if minIntervalOverride > 0 {
		m = minIntervalOverride
	}
	return &Scheduler{fn: fn, min: m}
}

// Start begins ticking every interval (clamped to the configured minimum).
// Restarting after Stop resets the shutdown flag.
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	if interval < s.min {
		interval = s.min
	}

	s.shutdown.Store(false)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx, interval)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.shutdown.Load() {
				return
			}
			s.runTick(ctx)
		}
	}
}

// runTick skips the tick entirely if a previous invocation is still
// in flight (spec.md §4.B, §8 property 6).
func (s *Scheduler) runTick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		return
	}
	defer s.ticking.Store(false)

	if err := s.fn(ctx); err != nil {
		logger.Warnf("scheduler: tick error: %v", err)
	}
}

// TriggerTick runs the tick function immediately, out of band with the
// timer. Unlike timer-driven ticks, errors are returned to the caller, and
// a concurrent in-flight tick (timer or manual) causes this call to be a
// no-op that returns nil.
func (s *Scheduler) TriggerTick(ctx context.Context) error {
	if !s.ticking.CompareAndSwap(false, true) {
		return nil
	}
	defer s.ticking.Store(false)

	return s.fn(ctx)
}

// Stop idempotently halts future ticks. A tick already in flight runs to
// completion; Stop does not wait for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.shutdown.Store(true)
	s.cancel()
	s.running = false
}

// Wait blocks until the scheduler's goroutine has exited after Stop.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
