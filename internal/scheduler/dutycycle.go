package scheduler

import (
	"context"
	"sync"
	"time"

	"alertrelay/internal/config"
	"alertrelay/internal/logger"
	"alertrelay/internal/mailbox"
	"alertrelay/internal/pipeline"
	apperrors "alertrelay/pkg/errors"
	"alertrelay/pkg/metrics"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseActive    Phase = "active"
	PhaseQuiescent Phase = "quiescent"
)

// CycleRunner runs one scan cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, criteria mailbox.Criteria) (pipeline.CycleSummary, error)
}

// CriteriaFunc builds the search criteria for a cycle starting at now.
type CriteriaFunc func(now time.Time) mailbox.Criteria

// LookbackCriteria selects messages from local midnight lookbackDays days before now onwards.
func LookbackCriteria(lookbackDays int, loc *time.Location, unseenOnly bool) CriteriaFunc {
	return func(now time.Time) mailbox.Criteria {
		local := now.In(loc)
		y, m, d := local.Date()
		return mailbox.Criteria{
			Since:      time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, -lookbackDays),
			UnseenOnly: unseenOnly,
		}
	}
}

// DutyCycle alternates an active window, in which a cycle runs every poll interval, with a
// quiescent sleep. It stops only when its context is cancelled.
type DutyCycle struct {
	runner   CycleRunner
	criteria CriteriaFunc
	window   time.Duration
	poll     time.Duration
	rest     time.Duration
	clock    Clock
	logger   logger.Logger

	mu          sync.RWMutex
	phase       Phase
	phaseSince  time.Time
	windowCount int
}

func NewDutyCycle(runner CycleRunner, criteria CriteriaFunc, cfg config.ScheduleConfig, clock Clock, log logger.Logger) *DutyCycle {
	if clock == nil {
		clock = RealClock()
	}
	return &DutyCycle{
		runner:   runner,
		criteria: criteria,
		window:   cfg.ActiveWindow(),
		poll:     cfg.PollInterval(),
		rest:     cfg.QuiescentSleep(),
		clock:    clock,
		logger:   log,
		phase:    PhaseIdle,
	}
}

// Run loops until ctx is cancelled and then returns nil. Cycle errors and panics are logged
// and never end the loop.
func (s *DutyCycle) Run(ctx context.Context) error {
	for {
		windowEnd := s.clock.Now().Add(s.window)
		s.enter(PhaseActive)
		s.logger.InfowCtx(ctx, "Active window started",
			"window", s.window,
			"poll_interval", s.poll,
		)

		for s.clock.Now().Before(windowEnd) {
			s.runOnce(ctx)
			if err := s.clock.Sleep(ctx, s.poll); err != nil {
				return s.stopped(ctx)
			}
		}

		s.enter(PhaseQuiescent)
		s.logger.InfowCtx(ctx, "Active window finished, resting", "sleep", s.rest)
		if err := s.clock.Sleep(ctx, s.rest); err != nil {
			return s.stopped(ctx)
		}
	}
}

func (s *DutyCycle) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.RecoverPanic(r)
			metrics.ScanCyclesTotal.WithLabelValues("panic").Inc()
			s.logger.ErrorwCtx(ctx, "Scan cycle panicked", "error", err)
		}
	}()

	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunCycle(ctx, s.criteria(s.clock.Now())); err != nil && ctx.Err() == nil {
		s.logger.ErrorwCtx(ctx, "Scan cycle aborted, retrying next poll",
			"error", err,
			"code", apperrors.Code(err),
		)
	}
}

func (s *DutyCycle) stopped(ctx context.Context) error {
	s.enter(PhaseIdle)
	s.logger.InfowCtx(ctx, "Duty cycle stopped")
	return nil
}

func (s *DutyCycle) enter(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.phaseSince = s.clock.Now()
	if p == PhaseActive {
		s.windowCount++
	}
	s.mu.Unlock()
	metrics.SetSchedulerPhase(p == PhaseActive)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Phase   Phase     `json:"phase"`
	Since   time.Time `json:"since,omitzero"`
	Windows int       `json:"windows"`
}

func (s *DutyCycle) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{Phase: s.phase, Since: s.phaseSince, Windows: s.windowCount}
}
