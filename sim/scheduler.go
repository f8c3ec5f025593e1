package sim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrRunning = errors.New("scheduler already running")

// Ticker advances a simulation by one step.
type Ticker interface {
	Tick(ctx context.Context) TickReport
}

// Scheduler drives a Ticker on a fixed interval. Ticks never overlap and a
// stop waits for the tick in flight.
type Scheduler struct {
	ticker   Ticker
	interval time.Duration
	log      *slog.Logger
	onTick   func(TickReport)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type SchedulerOption func(*Scheduler)

// OnTick registers fn to receive every report produced by the loop.
func OnTick(fn func(TickReport)) SchedulerOption {
	return func(s *Scheduler) { s.onTick = fn }
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func NewScheduler(t Ticker, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		ticker:   t,
		interval: interval,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Step runs one tick synchronously.
func (s *Scheduler) Step(ctx context.Context) TickReport {
	r := s.ticker.Tick(ctx)
	if s.onTick != nil {
		s.onTick(r)
	}
	return r
}

// Start begins ticking in the background until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	go s.loop(ctx, s.done)

	s.log.Info("scheduler started", "interval", s.interval)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		// a loop ended by its context is no longer running; a newer Start
		// owns the flag once done has been replaced
		s.mu.Lock()
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a stop requested mid-tick lets the tick finish
			s.Step(context.WithoutCancel(ctx))
		}
	}
}

// Stop halts the loop and waits for the tick in flight. It is safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
