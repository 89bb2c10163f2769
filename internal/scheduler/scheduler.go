// Package scheduler triggers world ticks at a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"ecosim/internal/config"
	"ecosim/internal/model"
)

// TickProcessor runs a single tick.
type TickProcessor interface {
	ProcessTick(ctx context.Context, tick int64) model.TickResult
}

// Scheduler owns the tick counter and calls the processor once per interval.
type Scheduler struct {
	logger    *slog.Logger
	processor TickProcessor
	interval  time.Duration
	maxTicks  int64

	next atomic.Int64

	// OnResult, when set, receives every tick result.
	OnResult func(model.TickResult)
}

// New creates a Scheduler starting at cfg.StartTick.
func New(logger *slog.Logger, processor TickProcessor, cfg config.SchedulerConfig) *Scheduler {
	interval := time.Duration(cfg.TickIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	s := &Scheduler{logger: logger, processor: processor, interval: interval, maxTicks: cfg.MaxTicks}
	s.next.Store(cfg.StartTick)
	return s
}

// Next returns the tick that will be processed next.
func (s *Scheduler) Next() int64 {
	return s.next.Load()
}

// Run processes ticks until ctx is cancelled or maxTicks ticks have run (0 means unbounded).
// A tick in progress always completes.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("Scheduler started", "tick", s.Next(), "interval", s.interval, "maxTicks", s.maxTicks)

	var ran int64
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped", "tick", s.Next())
			return ctx.Err()
		case <-ticker.C:
			tick := s.next.Load()
			res := s.processor.ProcessTick(context.WithoutCancel(ctx), tick)
			s.next.Add(1)
			ran++
			if res.Failed() {
				s.logger.Warn("Tick finished with errors", "tick", tick, "errors", len(res.Errors))
			}
			if s.OnResult != nil {
				s.OnResult(res)
			}
			if s.maxTicks > 0 && ran >= s.maxTicks {
				s.logger.Info("Scheduler reached tick limit", "ticks", ran)
				return nil
			}
		}
	}
}
