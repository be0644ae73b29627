// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package pipeline implements the adaptive parallel stage of spec.md §4.C:
// a streaming map whose concurrency tracks measured OS pressure. The worker
// pool shape is grounded on the teacher's internal/worker/tagger.go
// (TaggerPool), generalised from a fixed workerCount to a concurrency
// ceiling the monitor loop (internal/scheduler) can move at runtime without
// losing in-flight items, and on Aman-CERP-amanmcp's errgroup-based fan-out
// style for cancellation-aware spawning.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/pressure"
	"github.com/nskitch/atlas/internal/scheduler"
)

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Options configures one adaptive_parallel run (spec.md §4.C).
type Options struct {
	Initial    int
	Min        int
	Max        int
	MonitorMs  int // monitor interval, milliseconds
	Prober     *pressure.Prober
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Result pairs a transform's output with any error it returned. It carries
// no reference to the source item's position — the stage yields results in
// completion order (spec.md §4.C).
type Result[R any] struct {
	Value R
	Err   error
}

// Run streams every item read from src through fn with concurrency bounded
// to [opts.Min, opts.Max], starting at clamp(opts.Initial). It returns a
// channel of results in completion order; exactly one Result is produced
// per spawned fn call, and until ctx is cancelled every item read from src
// is spawned (spec.md §8 property 5 — no drops).
//
// Cancelling ctx stops pending spawns (src stops being read, and an item
// already read but still waiting for a slot is not run and yields no
// Result) but in-flight fn calls are allowed to finish; Run's output
// channel closes once every spawned call has returned.
func Run[T, R any](ctx context.Context, src <-chan T, fn func(context.Context, T) (R, error), opts Options) <-chan Result[R] {
	initial := clamp(opts.Initial, opts.Min, opts.Max)
	sem := newAdjustableSemaphore(initial)

	out := make(chan Result[R])
	var wg sync.WaitGroup

	var monitorSched *scheduler.Scheduler
	if opts.Prober != nil {
		monitorSched = startMonitor(ctx, sem, opts)
	}

	go func() {
		defer close(out)
		defer func() {
			if monitorSched != nil {
				monitorSched.Stop()
			}
		}()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case item, ok := <-src:
				if !ok {
					break loop
				}
				if err := sem.acquire(ctx); err != nil {
					break loop
				}
				wg.Add(1)
				go func(item T) {
					defer wg.Done()
					defer sem.release()
					v, err := fn(ctx, item)
					out <- Result[R]{Value: v, Err: err}
				}(item)
			}
		}
		wg.Wait()
	}()

	return out
}

// startMonitor launches a scheduler.Scheduler that samples pressure every
// opts.MonitorMs and retargets sem's limit per the policy in spec.md §4.C:
// critical -> min, warning -> floor(current*0.7) clamped to min, nominal ->
// current+1 capped at max.
func startMonitor(ctx context.Context, sem *adjustableSemaphore, opts Options) *scheduler.Scheduler {
	interval := opts.MonitorMs
	if interval <= 0 {
		interval = 30000
	}

	current := clamp(opts.Initial, opts.Min, opts.Max)
	var mu sync.Mutex

	tick := func(tickCtx context.Context) error {
		cap := opts.Prober.Assess(tickCtx)

		mu.Lock()
		defer mu.Unlock()

		var next int
		switch cap.PressureLevel {
		case pressure.Critical:
			next = opts.Min
		case pressure.Warning:
			next = current * 7 / 10
			if next < opts.Min {
				next = opts.Min
			}
		default:
			next = current + 1
			if next > opts.Max {
				next = opts.Max
			}
		}

		if next != current {
			logger.Debugf("pipeline: adaptive concurrency %d -> %d (pressure=%s)", current, next, cap.PressureLevel)
			current = next
			sem.setLimit(next)
		}
		return nil
	}

	s := scheduler.New(tick, 0)
	s.Start(msToDuration(interval))
	return s
}
