// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package pipeline

import (
	"context"
	"sync"
)

// adjustableSemaphore is a counting semaphore whose limit can change while
// holders are waiting, which golang.org/x/sync/semaphore.Weighted does not
// support. spec.md §5 requires the adaptive stage to reconstitute its
// concurrency ceiling mid-stream without dropping items in flight; this
// primitive is what makes that possible without tearing down goroutines.
type adjustableSemaphore struct {
	mu      sync.Mutex
	limit   int
	cur     int
	waiters []chan struct{}
}

func newAdjustableSemaphore(limit int) *adjustableSemaphore {
	return &adjustableSemaphore{limit: limit}
}

// acquire blocks until a slot is available or ctx is cancelled.
func (s *adjustableSemaphore) acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.cur < s.limit {
		s.cur++
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		s.removeWaiter(ch)
		return ctx.Err()
	}
}

func (s *adjustableSemaphore) removeWaiter(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == ch {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
	// Already handed a token in release(); consume it so it isn't lost.
	select {
	case <-ch:
		s.cur--
		s.wakeWaitersLocked()
	default:
	}
}

// release returns a slot. If a waiter is queued, the slot transfers to it
// directly rather than being reopened for new acquirers, preserving
// first-in-first-out fairness.
func (s *adjustableSemaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur--
	s.wakeWaitersLocked()
}

// setLimit changes the ceiling; any newly freed capacity is handed to
// queued waiters immediately.
func (s *adjustableSemaphore) setLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = n
	s.wakeWaitersLocked()
}

func (s *adjustableSemaphore) wakeWaitersLocked() {
	for s.cur < s.limit && len(s.waiters) > 0 {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.cur++
		close(ch)
	}
}
