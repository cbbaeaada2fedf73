package engine

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Dispatcher schedules tasks without waiting for them. Go returns nil once
// the task is scheduled; a non-nil error means the task will never run.
// Returning retry.ErrExhausted asks the caller to back off and try again.
type Dispatcher interface {
	Go(task func()) error
}

// DispatchMode selects a Dispatcher implementation.
type DispatchMode string

const (
	// DispatchSpawn starts one goroutine per task with no cap.
	DispatchSpawn DispatchMode = "spawn"
	// DispatchPool runs tasks on a fixed number of workers.
	DispatchPool DispatchMode = "pool"
	// DispatchInline runs each task in the dispatching goroutine.
	DispatchInline DispatchMode = "inline"
)

// ParseDispatchMode parses a mode name. The empty string means spawn.
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch DispatchMode(s) {
	case "", DispatchSpawn:
		return DispatchSpawn, nil
	case DispatchPool:
		return DispatchPool, nil
	case DispatchInline:
		return DispatchInline, nil
	default:
		return "", fmt.Errorf("unknown dispatcher %q (want spawn, pool or inline)", s)
	}
}

// DefaultWorkers is the pool size used when none is configured.
func DefaultWorkers() int {
	return min(runtime.NumCPU()*2, 32)
}

// SpawnDispatcher runs every task on its own goroutine. Fan-out grows with
// the width of the tree.
type SpawnDispatcher struct{}

func (SpawnDispatcher) Go(task func()) error {
	go task()
	return nil
}

// InlineDispatcher runs the task before Go returns, turning the
// replication into a sequential depth-first walk.
type InlineDispatcher struct{}

func (InlineDispatcher) Go(task func()) error {
	task()
	return nil
}

// PoolDispatcher runs tasks on a fixed set of workers fed by an unbounded
// FIFO queue. Go never blocks, so a task running on a worker can dispatch
// its children without deadlocking the pool.
type PoolDispatcher struct {
	cond   *sync.Cond
	group  errgroup.Group
	queue  []func()
	mu     sync.Mutex
	closed bool
}

// NewPoolDispatcher starts workers goroutines. workers <= 0 means
// DefaultWorkers.
func NewPoolDispatcher(workers int) *PoolDispatcher {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	p := &PoolDispatcher{}
	p.cond = sync.NewCond(&p.mu)
	for range workers {
		p.group.Go(p.work)
	}
	return p
}

// Go enqueues task. It fails with ErrDispatcherClosed after Close.
func (p *PoolDispatcher) Go(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrDispatcherClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// Close stops accepting tasks, lets the workers drain the queue, and waits
// for them to exit.
func (p *PoolDispatcher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return p.group.Wait()
}

func (p *PoolDispatcher) work() error {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return nil
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		task()
	}
}
