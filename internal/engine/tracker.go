package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Tracker counts descriptors that have been dispatched but not yet
// released. It observes completion; it never gates dispatch.
type Tracker struct {
	wg   sync.WaitGroup
	live atomic.Int64
}

func (t *Tracker) add() {
	t.live.Add(1)
	t.wg.Add(1)
}

func (t *Tracker) done() {
	t.live.Add(-1)
	t.wg.Done()
}

// Live returns the number of unreleased descriptors.
func (t *Tracker) Live() int64 {
	return t.live.Load()
}

// Wait blocks until every tracked descriptor is released or ctx is done.
// Returning early does not stop any task.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
