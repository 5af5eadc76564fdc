package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vanderhaka/jarve-agency-sub002/internal/clock"
)

// DefaultInterval is how often the scheduler sweeps.
const DefaultInterval = 5 * time.Minute

// Sweeper runs one reconciliation sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// SweepStatus is the outcome of the most recent scheduled sweep.
type SweepStatus struct {
	Running  bool        `json:"running"`
	LastRun  time.Time   `json:"last_run"`
	Result   SweepResult `json:"result"`
	LastErr  string      `json:"last_error,omitempty"`
	RunCount int         `json:"run_count"`
}

// Scheduler runs Sweep on a fixed interval until its context is cancelled.
type Scheduler struct {
	sweeper   Sweeper
	interval  time.Duration
	logger    *slog.Logger
	clock     clock.Clock
	triggerCh chan struct{}

	mu     sync.Mutex
	status SweepStatus
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock sets the time source LastRun is stamped from.
func WithSchedulerClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// NewScheduler creates a scheduler. interval <= 0 means DefaultInterval.
func NewScheduler(s Sweeper, interval time.Duration, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	sch := &Scheduler{
		sweeper:   s,
		interval:  interval,
		logger:    logger,
		clock:     clock.System{},
		triggerCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(sch)
	}
	return sch
}

// Run sweeps once immediately and then on every tick. It returns when ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

// Trigger asks for a sweep as soon as the current one, if any, finishes.
// It never blocks; a trigger while one is already queued is dropped.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the state of the most recent sweep.
func (s *Scheduler) Status() SweepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	res, err := s.sweeper.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled sweep failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.LastRun = s.clock.Now()
	s.status.Result = res
	s.status.RunCount++
	s.status.LastErr = ""
	if err != nil {
		s.status.LastErr = err.Error()
	}
}
