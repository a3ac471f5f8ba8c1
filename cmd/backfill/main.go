// Command backfill loads complete historical seasons through the COPY fast
// path. It walks the published schedule week by week, fetches each game's
// full snapshot, and bulk-inserts plays and stat events. Games that already
// hold committed plays are skipped, so reruns only fill the holes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gridirondb/internal/config"
	"gridirondb/internal/feed"
	"gridirondb/internal/models"
	"gridirondb/internal/pipeline"
	"gridirondb/internal/repository"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		seasonFlag = flag.Int("season", 0, "season year to load (required)")
		phaseFlag  = flag.String("phase", "REG", "season phase: PRE, REG or POST")
		weekFlag   = flag.Int("week", -1, "single week to load (default: every week in the phase)")
		statsFlag  = flag.Bool("stats", true, "load per-play stat events")
	)
	flag.Parse()

	if *seasonFlag == 0 {
		fmt.Fprintln(os.Stderr, "backfill: -season is required")
		flag.Usage()
		os.Exit(2)
	}
	phase, err := models.ParseSeasonPhase(*phaseFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -phase")
	}

	ctx := context.Background()
	cfg := config.MustLoad()

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx, *statsFlag); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate schema")
	}

	client := feed.NewClient(cfg.FeedBaseURL, cfg.FeedAPIKey, cfg.FeedTimeout)
	store := pipeline.NewDBStore(db)

	weeks := phaseWeeks(phase)
	if *weekFlag >= 0 {
		weeks = []int{*weekFlag}
	}

	log.Info().
		Int("season", *seasonFlag).
		Str("phase", string(phase)).
		Ints("weeks", weeks).
		Bool("stats", *statsFlag).
		Msg("Starting backfill")

	start := time.Now()
	var loaded, skipped, failed, playsTotal, statsTotal int

	for _, week := range weeks {
		rows, err := client.Schedule(ctx, *seasonFlag, phase, week)
		if err != nil {
			log.Error().Err(err).Int("week", week).Msg("Failed to fetch schedule")
			failed++
			continue
		}
		if len(rows) == 0 {
			continue
		}
		log.Info().Int("week", week).Int("games", len(rows)).Msg("Loading week")

		for _, row := range rows {
			if existing, err := db.Games.Get(ctx, row.GameID); err == nil && existing.PlayWatermark > 0 {
				log.Debug().Str("game_id", row.GameID).Msg("Game already loaded, skipping")
				skipped++
				continue
			}

			snap, err := client.GameSnapshot(ctx, row.GameID)
			if err != nil {
				log.Error().Err(err).Str("game_id", row.GameID).Msg("Failed to fetch game snapshot")
				failed++
				continue
			}

			game := &models.Game{
				GameID:      row.GameID,
				SeasonYear:  row.SeasonYear,
				SeasonPhase: row.SeasonPhase,
				Week:        row.Week,
				StartTime:   row.StartTime,
				HomeTeam:    row.HomeTeam,
				AwayTeam:    row.AwayTeam,
				Status:      models.StatusScheduled,
			}

			plays, stats, err := store.BulkLoadGame(ctx, game, snap, *statsFlag)
			if err != nil {
				log.Error().Err(err).Str("game_id", row.GameID).Msg("Failed to load game")
				failed++
				continue
			}

			loaded++
			playsTotal += plays
			statsTotal += stats
			log.Debug().
				Str("game_id", row.GameID).
				Int("plays", plays).
				Int("stats", stats).
				Msg("Game loaded")
		}
	}

	log.Info().
		Int("loaded", loaded).
		Int("skipped", skipped).
		Int("failed", failed).
		Int("plays", playsTotal).
		Int("stat_events", statsTotal).
		Dur("duration", time.Since(start)).
		Msg("Backfill complete")

	if failed > 0 {
		os.Exit(1)
	}
}

// phaseWeeks returns every week number the phase can carry. Preseason starts
// at week 0 (the Hall of Fame game); weeks that were never played come back
// as empty schedules and are skipped.
func phaseWeeks(phase models.SeasonPhase) []int {
	first, last := 1, 18
	switch phase {
	case models.PhasePreseason:
		first, last = 0, 4
	case models.PhasePostseason:
		first, last = 1, 4
	}

	weeks := make([]int, 0, last-first+1)
	for w := first; w <= last; w++ {
		weeks = append(weeks, w)
	}
	return weeks
}
