// Package scheduler drives account cycles on a fixed interval or a cron
// expression, optionally gated on market hours. Accounts are isolated: one
// account's failure never blocks another's cycle or stops the schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"autotrader/internal/broker"
	"autotrader/internal/config"
	"autotrader/internal/engine"
	"autotrader/internal/metrics"
)

// CycleRunner is one account's cycle, dispatched per tick.
type CycleRunner interface {
	Account() string
	RunCycle(ctx context.Context) engine.CycleResult
}

// MarketClock reports whether the market is open. Nil disables the gate's
// live check and falls back to the local session window.
type MarketClock interface {
	Clock(ctx context.Context) (broker.Clock, error)
}

type Scheduler struct {
	runners       []CycleRunner
	clock         MarketClock
	schedule      config.Schedule
	extendedHours bool
	workers       int
	location      *time.Location
	log           zerolog.Logger
}

func New(runners []CycleRunner, clock MarketClock, schedule config.Schedule, extendedHours bool, workers int, log zerolog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Scheduler{
		runners:       runners,
		clock:         clock,
		schedule:      schedule,
		extendedHours: extendedHours,
		workers:       workers,
		location:      loc,
		log:           log.With().Str("component", "scheduler").Logger(),
	}
}

// Run executes one tick immediately, then on cadence until ctx is cancelled.
// Cancellation stops future ticks; in-flight cycles run on a detached context
// so an order submission is never interrupted mid-flight.
func (s *Scheduler) Run(ctx context.Context) error {
	cycleCtx := context.WithoutCancel(ctx)

	s.log.Info().Msg("running initial cycle")
	s.tick(cycleCtx)

	if s.schedule.Cron != "" {
		return s.runCron(ctx, cycleCtx)
	}
	return s.runInterval(ctx, cycleCtx)
}

func (s *Scheduler) runInterval(ctx, cycleCtx context.Context) error {
	interval := time.Duration(s.schedule.IntervalMinutes) * time.Minute
	s.log.Info().Dur("interval", interval).Msg("scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(cycleCtx)
		}
	}
}

func (s *Scheduler) runCron(ctx, cycleCtx context.Context) error {
	c := cron.New(cron.WithLocation(s.location))
	if _, err := c.AddFunc(s.schedule.Cron, func() { s.tick(cycleCtx) }); err != nil {
		// Unreachable after config validation, but fail loud if it slips through.
		return err
	}
	s.log.Info().Str("cron", s.schedule.Cron).Str("timezone", s.location.String()).Msg("scheduler started")

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done() // let an in-flight tick finish
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// tick dispatches every account to the worker pool and waits for all of them.
func (s *Scheduler) tick(ctx context.Context) {
	if s.schedule.MarketHoursOnly && !s.marketOpen(ctx) {
		s.log.Info().Msg("market closed, skipping cycle")
		metrics.SkippedTicksTotal.Inc()
		return
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for _, runner := range s.runners {
		wg.Add(1)
		sem <- struct{}{}
		go func(r CycleRunner) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if p := recover(); p != nil {
					s.log.Error().Str("account", r.Account()).Interface("panic", p).Msg("cycle panicked")
				}
			}()
			result := r.RunCycle(ctx)
			s.log.Info().
				Str("account", result.Account).
				Int("signals", result.SignalsEvaluated).
				Int("orders", result.OrdersPlaced).
				Int("errors", len(result.Errors)).
				Msg("account cycle finished")
		}(runner)
	}
	wg.Wait()
}

func (s *Scheduler) marketOpen(ctx context.Context) bool {
	if s.clock != nil {
		clock, err := s.clock.Clock(ctx)
		if err == nil {
			if s.extendedHours {
				// The brokerage clock covers the regular session only; the
				// extended session needs the wider local window.
				return sessionOpen(time.Now().UTC(), true)
			}
			return clock.IsOpen
		}
		s.log.Warn().Err(err).Msg("clock unavailable, using local session window")
	}
	return sessionOpen(time.Now().UTC(), s.extendedHours)
}

// sessionOpen approximates the US equity session from UTC wall-clock time.
// The windows are conservative to cover both EST and EDT: 13:30-21:00 UTC for
// the regular session, 09:00-23:59 UTC for the extended session.
func sessionOpen(now time.Time, extended bool) bool {
	minutes := now.Hour()*60 + now.Minute()
	if extended {
		return minutes >= 9*60 && minutes <= 23*60+59
	}
	return minutes >= 13*60+30 && minutes <= 21*60
}
