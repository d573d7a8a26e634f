// Package scheduler implements a tick-based periodic collection scheduler.
// Every tick runs all sections of the registry and hands the concatenated
// output to the registered callbacks. The scheduler does NOT ship data
// itself.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Collector produces one cycle of agent output.
type Collector interface {
	CollectAll(ctx context.Context) string
}

// Scheduler manages periodic section collection.
type Scheduler struct {
	collector Collector
	interval  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	onOutput []func(string)
	cycles   int
}

// New creates a new Scheduler over the given collector.
func New(collector Collector, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		collector: collector,
		interval:  interval,
		logger:    logger.Named("scheduler"),
	}
}

// OnOutput adds a callback invoked with the output of every cycle.
// Callbacks run in registration order on the scheduler goroutine.
func (s *Scheduler) OnOutput(fn func(string)) {
	s.mu.Lock()
	s.onOutput = append(s.onOutput, fn)
	s.mu.Unlock()
}

// Cycles returns the number of completed cycles.
func (s *Scheduler) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// Start runs a cycle immediately and then on every tick. It blocks until
// the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce collects one cycle and delivers it.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	output := s.collector.CollectAll(ctx)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.cycles++
	callbacks := append(([]func(string))(nil), s.onOutput...)
	s.mu.Unlock()

	s.logger.Debug("Collected sections",
		zap.Int("bytes", len(output)),
		zap.Duration("elapsed", time.Since(start)))

	for _, fn := range callbacks {
		fn(output)
	}
}
