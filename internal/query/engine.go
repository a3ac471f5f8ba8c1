package query

import (
	"context"
	"fmt"
	"time"

	"gridirondb/internal/metrics"
	"gridirondb/internal/models"
	"gridirondb/internal/repository"
)

// Engine compiles criteria and executes the resulting plans against the
// store. One method per result shape; every method validates before it
// queries, so an invalid criteria never reaches the pool.
type Engine struct {
	db *repository.Database
}

// NewEngine creates a query engine backed by the given database.
func NewEngine(db *repository.Database) *Engine {
	return &Engine{db: db}
}

// Games returns the games matching the criteria.
func (e *Engine) Games(ctx context.Context, c Criteria) ([]*models.Game, error) {
	plan, err := Compile(c, ShapeGames)
	if err != nil {
		return nil, err
	}
	defer observe(ShapeGames, time.Now())

	rows, err := e.db.Pool.Query(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		var g models.Game
		err := rows.Scan(
			&g.GameID, &g.SeasonYear, &g.SeasonPhase, &g.Week, &g.StartTime,
			&g.HomeTeam, &g.AwayTeam, &g.HomeScore, &g.AwayScore, &g.Status,
			&g.Finalizing, &g.PlayWatermark, &g.CreatedAt, &g.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		games = append(games, &g)
	}
	return games, rows.Err()
}

// Drives returns the drives matching the criteria.
func (e *Engine) Drives(ctx context.Context, c Criteria) ([]*models.Drive, error) {
	plan, err := Compile(c, ShapeDrives)
	if err != nil {
		return nil, err
	}
	defer observe(ShapeDrives, time.Now())

	rows, err := e.db.Pool.Query(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query drives: %w", err)
	}
	defer rows.Close()

	var drives []*models.Drive
	for rows.Next() {
		var d models.Drive
		err := rows.Scan(
			&d.GameID, &d.DriveID, &d.PosTeam, &d.StartField, &d.EndField,
			&d.Result, &d.PlayCount, &d.YardsGained, &d.FirstDowns,
			&d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drive row: %w", err)
		}
		drives = append(drives, &d)
	}
	return drives, rows.Err()
}

// Plays returns the plays matching the criteria.
func (e *Engine) Plays(ctx context.Context, c Criteria) ([]*models.Play, error) {
	plan, err := Compile(c, ShapePlays)
	if err != nil {
		return nil, err
	}
	defer observe(ShapePlays, time.Now())

	rows, err := e.db.Pool.Query(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var plays []*models.Play
	for rows.Next() {
		var p models.Play
		err := rows.Scan(
			&p.GameID, &p.PlayID, &p.DriveID, &p.Quarter, &p.PosTeam,
			&p.Down, &p.YardsToGo, &p.Yardline, &p.Note, &p.Description,
			&p.ContentHash, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan play row: %w", err)
		}
		plays = append(plays, &p)
	}
	return plays, rows.Err()
}

// PlayerStats returns the raw statistical events matching the criteria.
func (e *Engine) PlayerStats(ctx context.Context, c Criteria) ([]*models.PlayStat, error) {
	plan, err := Compile(c, ShapeStats)
	if err != nil {
		return nil, err
	}
	defer observe(ShapeStats, time.Now())

	rows, err := e.db.Pool.Query(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query player stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.PlayStat
	for rows.Next() {
		var s models.PlayStat
		err := rows.Scan(&s.GameID, &s.PlayID, &s.PlayerID, &s.Team, &s.Category, &s.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stat row: %w", err)
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// PlayerTotals returns one row per player with every category summed over
// the events that match the criteria.
func (e *Engine) PlayerTotals(ctx context.Context, c Criteria) ([]*models.PlayerTotals, error) {
	plan, err := Compile(c, ShapeTotals)
	if err != nil {
		return nil, err
	}
	defer observe(ShapeTotals, time.Now())

	rows, err := e.db.Pool.Query(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query player totals: %w", err)
	}
	defer rows.Close()

	var totals []*models.PlayerTotals
	for rows.Next() {
		var playerID string
		sums := make([]int64, len(models.StatCategories))
		dest := make([]any, 0, len(sums)+1)
		dest = append(dest, &playerID)
		for i := range sums {
			dest = append(dest, &sums[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan totals row: %w", err)
		}

		t := &models.PlayerTotals{PlayerID: playerID, Totals: make(map[models.StatCategory]int64)}
		for i, cat := range models.StatCategories {
			if sums[i] != 0 {
				t.Totals[cat] = sums[i]
			}
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func observe(shape Shape, start time.Time) {
	metrics.QueryDuration.WithLabelValues(shape.String()).Observe(time.Since(start).Seconds())
}
