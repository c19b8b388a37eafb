// Package tasks runs periodic background work with single-slot admission:
// a tick that fires while the previous run is still in flight is dropped
// instead of piling up a second concurrent run.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/logging"
)

// Supervisor drives one recurring task. It owns a worker goroutine with a
// queue of size one; the ticker enqueues non-blockingly, so overlapping
// ticks are dropped deterministically rather than guarded by a flag.
type Supervisor struct {
	name     string
	interval time.Duration
	log      logging.Logger

	dropped atomic.Int64
	runs    atomic.Int64

	startOnce sync.Once
	done      chan struct{}
}

// NewSupervisor creates a supervisor for a task identified by name in logs.
func NewSupervisor(name string, interval time.Duration, log logging.Logger) *Supervisor {
	if log == nil {
		log = logging.NewLogger()
	}
	return &Supervisor{
		name:     name,
		interval: interval,
		log:      log.WithFields(logging.String("task", name)),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker and worker goroutines. The task runs once
// immediately, then on every tick with a free slot, until ctx is cancelled.
// Task errors are logged and never stop the loop.
func (s *Supervisor) Start(ctx context.Context, fn func(context.Context) error) {
	s.startOnce.Do(func() {
		queue := make(chan struct{}, 1)
		queue <- struct{}{}

		go s.tickLoop(ctx, queue)
		go s.workLoop(ctx, queue, fn)
	})
}

func (s *Supervisor) tickLoop(ctx context.Context, queue chan<- struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case queue <- struct{}{}:
			default:
				s.dropped.Add(1)
				s.log.Debug("tick dropped, previous run still in flight")
			}
		}
	}
}

func (s *Supervisor) workLoop(ctx context.Context, queue <-chan struct{}, fn func(context.Context) error) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-queue:
			s.runs.Add(1)
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("background task failed", logging.Error(err))
			}
		}
	}
}

// Done is closed once the worker loop has exited after cancellation.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Runs reports how many times the task has executed.
func (s *Supervisor) Runs() int64 {
	return s.runs.Load()
}

// Dropped reports how many ticks were discarded because a run was in flight.
func (s *Supervisor) Dropped() int64 {
	return s.dropped.Load()
}
