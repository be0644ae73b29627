// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_SkipsOverlappingTick(t *testing.T) {
	var running int32
	var maxConcurrent int32
	var ticks int32

	fn := func(ctx context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		time.Sleep(60 * time.Millisecond)
		atomic.AddInt32(&ticks, 1)
		atomic.AddInt32(&running, -1)
		return nil
	}

	s := New(fn, time.Millisecond)
	s.Start(20 * time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	s.Stop()
	s.Wait()

	if atomic.LoadInt32(&maxConcurrent) > 1 {
		t.Errorf("observed %d concurrent ticks, want at most 1", maxConcurrent)
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := New(func(ctx context.Context) error { return nil }, time.Millisecond)
	s.Start(10 * time.Millisecond)
	s.Stop()
	s.Stop() // must not panic or block
	s.Wait()
}

func TestScheduler_TriggerTickPropagatesErrors(t *testing.T) {
	wantErr := errTest{}
	s := New(func(ctx context.Context) error { return wantErr }, time.Millisecond)

	if err := s.TriggerTick(context.Background()); err != wantErr {
		t.Errorf("TriggerTick error = %v, want %v", err, wantErr)
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
