// Package scheduler drives the pipeline: a fixed-interval poll loop for game
// synchronization and cron-driven roster sweeps.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"gridirondb/internal/config"
	"gridirondb/internal/pipeline"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// rosterSweepTimeout bounds one full pass over every roster-due team.
const rosterSweepTimeout = 10 * time.Minute

// Scheduler manages the background loops. Poll cycles run serially: a cycle
// that overruns the interval simply delays the next tick rather than stacking
// concurrent sweeps.
type Scheduler struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	cron     *cron.Cron
	ticker   *time.Ticker
	stopChan chan struct{}
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *config.Config, p *pipeline.Pipeline) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		pipeline: p,
		cron:     cron.New(),
		stopChan: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	// Roster sweeps are cheap when nothing is due, so the cron cadence can
	// be much tighter than the per-team refresh interval.
	if _, err := s.cron.AddFunc(s.cfg.RosterSweepCron, func() {
		s.runRosterSweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule roster sweep: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.RosterSweepCron).
		Dur("refresh_interval", s.cfg.RosterRefreshInterval).
		Msg("Roster sweep scheduled")

	s.ticker = time.NewTicker(s.cfg.PollInterval)
	log.Info().
		Dur("interval", s.cfg.PollInterval).
		Msg("Game polling started")

	go s.pollLoop(ctx)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")

	if s.cron != nil {
		s.cron.Stop()
	}

	if s.ticker != nil {
		s.ticker.Stop()
	}

	close(s.stopChan)
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Context cancelled, stopping game polling")
			return
		case <-s.stopChan:
			log.Info().Msg("Stop signal received, stopping game polling")
			return
		case <-s.ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()

	if _, err := s.pipeline.RunCycle(cycleCtx); err != nil {
		log.Error().Err(err).Msg("Poll cycle failed")
	}
}

func (s *Scheduler) runRosterSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, rosterSweepTimeout)
	defer cancel()

	if _, err := s.pipeline.RefreshRosters(sweepCtx); err != nil {
		log.Error().Err(err).Msg("Roster sweep failed")
	}
}
