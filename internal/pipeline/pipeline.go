// Package pipeline keeps storage converged with the feed. Each poll cycle
// syncs the published schedule, polls every tracked game, applies new plays
// strictly above the per-game watermark, rewrites corrected plays, and walks
// games through Scheduled -> InProgress -> Final exactly once. Roster
// refreshes run on their own persisted cadence.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gridirondb/internal/cache"
	"gridirondb/internal/feed"
	"gridirondb/internal/metrics"
	"gridirondb/internal/models"
)

// Options tunes the pipeline. Zero values fall back to defaults.
type Options struct {
	// PollConcurrency caps how many games sync at once within a cycle.
	PollConcurrency int

	// GapRetryBudget is how many consecutive cycles a game may reject its
	// snapshot for missing committed plays before the gap escalates to an
	// error instead of a quiet retry.
	GapRetryBudget int

	// RosterInterval is the per-team roster refresh cadence.
	RosterInterval time.Duration

	// EnablePlayerStats controls whether stat events are extracted and
	// written. Play and drive sync is unaffected.
	EnablePlayerStats bool
}

// Pipeline drives feed synchronization against the store.
type Pipeline struct {
	store  Store
	source feed.Source
	cache  *cache.Cache // optional

	pollConcurrency int
	gapBudget       int
	rosterInterval  time.Duration
	statsEnabled    bool

	mu         sync.Mutex
	gapStreaks map[string]int
	inFlight   map[string]bool
}

// New creates a pipeline. The cache may be nil.
func New(store Store, source feed.Source, c *cache.Cache, opts Options) *Pipeline {
	if opts.PollConcurrency <= 0 {
		opts.PollConcurrency = 4
	}
	if opts.GapRetryBudget <= 0 {
		opts.GapRetryBudget = 3
	}
	if opts.RosterInterval <= 0 {
		opts.RosterInterval = 12 * time.Hour
	}

	return &Pipeline{
		store:           store,
		source:          source,
		cache:           c,
		pollConcurrency: opts.PollConcurrency,
		gapBudget:       opts.GapRetryBudget,
		rosterInterval:  opts.RosterInterval,
		statsEnabled:    opts.EnablePlayerStats,
		gapStreaks:      make(map[string]int),
		inFlight:        make(map[string]bool),
	}
}

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	GamesPolled  int
	PlaysApplied int
	StatsApplied int
	Corrections  int
	Finalized    int
	SequenceGaps int
	FeedErrors   int
	SyncErrors   int
	Duration     time.Duration
}

// RunCycle performs one full poll cycle: schedule sync, then a bounded
// concurrent sweep over every tracked game whose start time has passed.
// Per-game failures are counted and logged but never abort the cycle; only a
// failure to list tracked games does.
func (p *Pipeline) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	report := &CycleReport{}

	state, err := p.source.CurrentState(ctx)
	if err != nil {
		report.FeedErrors++
		metrics.RecordError("pipeline", "current_state")
		log.Warn().Err(err).Msg("Current state unavailable, skipping schedule sync")
	} else if err := p.syncSchedule(ctx, state); err != nil {
		report.FeedErrors++
		metrics.RecordError("pipeline", "schedule")
		log.Warn().Err(err).Msg("Schedule sync failed")
	}

	games, err := p.store.TrackedGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked games: %w", err)
	}

	active := 0
	for _, g := range games {
		if g.IsActive() {
			active++
		}
	}
	metrics.TrackedGames.Set(float64(len(games)))
	metrics.ActiveGames.Set(float64(active))

	now := time.Now()
	sem := make(chan struct{}, p.pollConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, g := range games {
		if g.IsScheduled() && now.Before(g.StartTime) {
			continue
		}
		// One poll per game at a time, even when a caller overlaps cycles.
		if !p.claim(g.GameID) {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(g *models.Game) {
			defer wg.Done()
			defer func() { <-sem }()
			defer p.release(g.GameID)

			res := p.syncGame(ctx, g)

			mu.Lock()
			defer mu.Unlock()
			report.GamesPolled++
			report.PlaysApplied += res.plays
			report.StatsApplied += res.stats
			report.Corrections += res.corrections
			if res.finalized {
				report.Finalized++
			}
			if res.gap {
				report.SequenceGaps++
			}
			switch res.outcome {
			case "unavailable", "malformed":
				report.FeedErrors++
			}
			if res.err != nil {
				report.SyncErrors++
			}
		}(g)
	}
	wg.Wait()

	report.Duration = time.Since(start)
	clean := report.FeedErrors == 0 && report.SyncErrors == 0
	metrics.RecordCycle(report.Duration.Seconds(), clean)

	log.Info().
		Int("games_polled", report.GamesPolled).
		Int("plays_applied", report.PlaysApplied).
		Int("stats_applied", report.StatsApplied).
		Int("corrections", report.Corrections).
		Int("finalized", report.Finalized).
		Int("sequence_gaps", report.SequenceGaps).
		Int("feed_errors", report.FeedErrors).
		Int("sync_errors", report.SyncErrors).
		Dur("duration", report.Duration).
		Msg("Poll cycle complete")

	return report, nil
}

// syncSchedule records the calendar position and upserts the current week's
// published schedule. Schedule rows never touch live state on games that have
// already progressed, so running this every cycle is safe.
func (p *Pipeline) syncSchedule(ctx context.Context, state *feed.CurrentState) error {
	if err := p.store.SetCurrentState(ctx, state.SeasonYear, state.SeasonPhase, state.Week); err != nil {
		return fmt.Errorf("failed to record current state: %w", err)
	}
	if p.cache != nil {
		if err := p.cache.SetCurrentState(ctx, state.SeasonYear, state.SeasonPhase, state.Week); err != nil {
			log.Debug().Err(err).Msg("Failed to cache current state")
		}
	}

	rows, err := p.source.Schedule(ctx, state.SeasonYear, state.SeasonPhase, state.Week)
	if err != nil {
		return fmt.Errorf("failed to fetch schedule: %w", err)
	}

	games := make([]*models.Game, 0, len(rows))
	for _, row := range rows {
		games = append(games, &models.Game{
			GameID:      row.GameID,
			SeasonYear:  row.SeasonYear,
			SeasonPhase: row.SeasonPhase,
			Week:        row.Week,
			StartTime:   row.StartTime,
			HomeTeam:    row.HomeTeam,
			AwayTeam:    row.AwayTeam,
			Status:      models.StatusScheduled,
		})
	}
	if err := p.store.UpsertSchedule(ctx, games); err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}

	log.Debug().
		Int("season", state.SeasonYear).
		Str("phase", string(state.SeasonPhase)).
		Int("week", state.Week).
		Int("games", len(games)).
		Msg("Schedule synchronized")
	return nil
}
